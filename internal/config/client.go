package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Client holds the capture-side configuration, loaded from a YAML file.
type Client struct {
	Server struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"server"`

	Audio struct {
		Device        string        `yaml:"device"`
		SampleRate    int           `yaml:"sample_rate"`
		Channels      int           `yaml:"channels"`
		ChunkDuration time.Duration `yaml:"chunk_duration"`
	} `yaml:"audio"`

	Recording struct {
		Strategy       string        `yaml:"strategy"`
		GateThreshold  float64       `yaml:"gate_threshold"`
		SilenceTimeout time.Duration `yaml:"silence_timeout"`
		MaxDuration    time.Duration `yaml:"max_duration"`
		Overflow       string        `yaml:"overflow"`
	} `yaml:"recording"`

	Session struct {
		TargetLanguage     string `yaml:"target_language"`
		AutoDetectLanguage bool   `yaml:"auto_detect_language"`
	} `yaml:"session"`
}

// LoadClient parses a client config file, applying defaults for anything the
// file leaves out.
func LoadClient(path string) (Client, error) {
	var cfg Client
	cfg.Server.URL = "ws://localhost:8080/ws"
	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.ChunkDuration = 100 * time.Millisecond
	cfg.Recording.Strategy = "voice_activated"
	cfg.Recording.SilenceTimeout = 5 * time.Second

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
