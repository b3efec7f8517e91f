package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/internal/audio"
	"github.com/sastrawinata/wicara/internal/capture"
	"github.com/sastrawinata/wicara/internal/client"
	"github.com/sastrawinata/wicara/internal/config"
	"github.com/sastrawinata/wicara/internal/protocol"
	"github.com/sastrawinata/wicara/internal/record"
)

func main() {
	configPath := flag.String("config", "", "path to client config YAML")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	engine := capture.Probe(cfg.Audio.Device, logger)
	strategy, err := record.New(record.Kind(cfg.Recording.Strategy), logger)
	if err != nil {
		logger.Fatal("Unknown recording strategy", zap.Error(err))
	}

	session := client.NewRecordingSession(engine, strategy, logger)
	recordCfg := record.Config{
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		ChunkDuration:  cfg.Audio.ChunkDuration,
		GateThreshold:  cfg.Recording.GateThreshold,
		SilenceTimeout: cfg.Recording.SilenceTimeout,
		MaxDuration:    cfg.Recording.MaxDuration,
		Overflow:       overflowPolicy(cfg.Recording.Overflow),
	}
	if err := session.Initialize(recordCfg); err != nil {
		logger.Fatal("Failed to initialize recording", zap.Error(err))
	}

	uplink, err := client.Dial(cfg.Server.URL, cfg.Server.Token, logger)
	if err != nil {
		logger.Fatal("Failed to connect", zap.Error(err))
	}
	defer uplink.Close()

	if err := uplink.StartSession(cfg.Session.TargetLanguage, cfg.Session.AutoDetectLanguage); err != nil {
		logger.Fatal("Failed to start session", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := session.Start(ctx); err != nil {
		logger.Fatal("Failed to start recording", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var sessionID string
	var utterance []float32
	chunks := session.Chunks()

	flush := func() {
		if len(utterance) == 0 {
			return
		}
		pcm := audio.PCM16ToBytes(audio.Float32ToPCM16(utterance))
		if err := uplink.SendAudio(pcm); err != nil {
			logger.Error("Failed to send utterance", zap.Error(err))
		} else {
			logger.Info("Utterance sent", zap.Int("samples", len(utterance)))
		}
		utterance = utterance[:0]
	}

	for {
		select {
		case <-quit:
			logger.Info("Shutting down")
			session.Stop()
			flush()
			if sessionID != "" {
				uplink.EndSession(sessionID)
			}
			return

		case <-uplink.Done():
			logger.Warn("Connection lost")
			session.Stop()
			return

		case chunk, ok := <-chunks:
			if !ok {
				// The recording stopped; a nil channel keeps this case quiet
				// until a restart hands out a fresh one.
				flush()
				chunks = nil
				continue
			}
			utterance = append(utterance, chunk.Samples...)

		case event := <-session.Events():
			switch event.Kind {
			case record.EventSilence:
				// The speaker finished; ship the utterance.
				flush()
			case record.EventTimeout:
				logger.Info("Recording auto-stopped", zap.String("reason", event.Reason))
				flush()
				session.Acknowledge()
				if err := session.Start(ctx); err != nil {
					logger.Error("Failed to restart recording", zap.Error(err))
				} else {
					chunks = session.Chunks()
				}
			}

		case err := <-session.Errors():
			if err != nil {
				logger.Error("Recording error", zap.Error(err))
			}

		case env, ok := <-uplink.Inbound():
			if !ok {
				continue
			}
			sessionID = handleServerMessage(env, sessionID, logger)
		}
	}
}

func handleServerMessage(env *protocol.Envelope, sessionID string, logger *zap.Logger) string {
	switch env.Type {
	case protocol.MessageTypeSessionReady:
		logger.Info("Connected")

	case protocol.MessageTypeSessionStarted:
		var started protocol.SessionStartedPayload
		if err := env.DecodePayload(&started); err == nil {
			logger.Info("Session started", zap.String("sessionID", started.SessionID))
			return started.SessionID
		}

	case protocol.MessageTypeTranscriptPartial, protocol.MessageTypeTranscriptFinal:
		var tp protocol.TranscriptPayload
		if err := env.DecodePayload(&tp); err == nil {
			marker := "…"
			if tp.Final {
				marker = "✓"
			}
			fmt.Printf("\r[you %s] %s\n", marker, tp.Text)
		}

	case protocol.MessageTypeAssistantDelta:
		var dp protocol.AssistantDeltaPayload
		if err := env.DecodePayload(&dp); err == nil {
			fmt.Print(dp.Text)
		}

	case protocol.MessageTypeAssistantDone:
		fmt.Println()

	case protocol.MessageTypeError:
		var ep protocol.ErrorPayload
		if err := env.DecodePayload(&ep); err == nil {
			logger.Warn("Server error", zap.String("code", ep.Code), zap.String("message", ep.Message))
		}
	}
	return sessionID
}

func overflowPolicy(name string) audio.OverflowPolicy {
	switch name {
	case "drop_newest":
		return audio.DropNewest
	case "expand":
		return audio.Expand
	case "stop":
		return audio.StopOnOverflow
	default:
		return audio.DropOldest
	}
}
