package transcription

import (
	"context"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/domain/repositories"
)

const defaultLanguage = "id-ID"

// GoogleTranscription implements TranscriptionService for Google Cloud
// Speech-to-Text. Partial hypotheses are forwarded as non-final transcripts;
// the stream ends after the final result.
type GoogleTranscription struct {
	logger *zap.Logger
}

// NewGoogle creates a Google Cloud transcription adapter. Credentials come
// from the application default credentials chain.
func NewGoogle(logger *zap.Logger) *GoogleTranscription {
	return &GoogleTranscription{logger: logger}
}

// Transcribe recognizes one complete utterance and streams results.
func (g *GoogleTranscription) Transcribe(ctx context.Context, audioData []byte, config repositories.AudioConfig) (<-chan repositories.Transcript, error) {
	if len(audioData) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	language := config.Language
	if language == "" {
		// The v1 API has no true auto-detect; fall back to the default locale
		// and let alternative language codes cover the rest.
		language = defaultLanguage
	}
	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:        encoding,
		SampleRateHertz: int32(config.SampleRate),
		LanguageCode:    language,
	}
	if config.AutoDetectLanguage {
		recognitionConfig.AlternativeLanguageCodes = []string{"en-US", "id-ID"}
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  true, // partial hypotheses feed the live transcript
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audioData,
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send audio data: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to close send stream: %w", err)
	}

	results := make(chan repositories.Transcript, 8)
	go g.receiveResults(ctx, client, stream, results)
	return results, nil
}

func (g *GoogleTranscription) receiveResults(ctx context.Context, client *speech.Client, stream speechpb.Speech_StreamingRecognizeClient, results chan<- repositories.Transcript) {
	defer close(results)
	defer client.Close()

	var final repositories.Transcript
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			if final.Text != "" {
				final.Final = true
				g.deliver(ctx, results, final)
			}
			return
		}
		if err != nil {
			g.logger.Error("Failed to receive transcription response", zap.Error(err))
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			best := result.Alternatives[0]
			if result.IsFinal {
				final = repositories.Transcript{
					Text:       best.Transcript,
					Confidence: float64(best.Confidence),
				}
				continue
			}
			g.deliver(ctx, results, repositories.Transcript{
				Text:       best.Transcript,
				Confidence: float64(best.Confidence),
			})
		}
	}
}

func (g *GoogleTranscription) deliver(ctx context.Context, results chan<- repositories.Transcript, t repositories.Transcript) {
	select {
	case results <- t:
	case <-ctx.Done():
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "", "WAV", "LINEAR16", "pcm":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
