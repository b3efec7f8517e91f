package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg := LoadServer(zap.NewNop())
	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.SessionStore != "memory" {
		t.Errorf("SessionStore = %s, want memory", cfg.SessionStore)
	}
	if cfg.SessionMaxIdle != 30*time.Minute {
		t.Errorf("SessionMaxIdle = %v", cfg.SessionMaxIdle)
	}
}

func TestLoadServerFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_MAX_IDLE", "10m")
	t.Setenv("SUMMARIZE_THRESHOLD", "40")

	cfg := LoadServer(zap.NewNop())
	if cfg.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Port)
	}
	if cfg.SessionMaxIdle != 10*time.Minute {
		t.Errorf("SessionMaxIdle = %v, want 10m", cfg.SessionMaxIdle)
	}
	if cfg.SummarizeThreshold != 40 {
		t.Errorf("SummarizeThreshold = %d, want 40", cfg.SummarizeThreshold)
	}
}

func TestLoadClientDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d", cfg.Audio.SampleRate)
	}
	if cfg.Recording.Strategy != "voice_activated" {
		t.Errorf("Strategy = %s", cfg.Recording.Strategy)
	}
}

func TestLoadClientFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	content := `
server:
  url: ws://example.test/ws
audio:
  sample_rate: 48000
  chunk_duration: 200ms
recording:
  strategy: continuous
  silence_timeout: 2s
session:
  target_language: en-US
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.Server.URL != "ws://example.test/ws" {
		t.Errorf("URL = %s", cfg.Server.URL)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("SampleRate = %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.ChunkDuration != 200*time.Millisecond {
		t.Errorf("ChunkDuration = %v", cfg.Audio.ChunkDuration)
	}
	if cfg.Recording.SilenceTimeout != 2*time.Second {
		t.Errorf("SilenceTimeout = %v", cfg.Recording.SilenceTimeout)
	}
	if cfg.Session.TargetLanguage != "en-US" {
		t.Errorf("TargetLanguage = %s", cfg.Session.TargetLanguage)
	}
	// Unset fields keep their defaults.
	if cfg.Audio.Channels != 1 {
		t.Errorf("Channels = %d, want default 1", cfg.Audio.Channels)
	}
}
