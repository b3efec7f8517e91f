package repositories

import "context"

// TranscriptionService abstracts streaming speech recognition services
type TranscriptionService interface {
	// Transcribe starts recognition over a complete utterance and streams
	// partial hypotheses followed by one final transcript. The channel is
	// closed after the final result or on context cancellation.
	Transcribe(ctx context.Context, audioData []byte, config AudioConfig) (<-chan Transcript, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
	// AutoDetectLanguage lets the backend pick when Language is empty.
	AutoDetectLanguage bool `json:"auto_detect_language"`
}

// Transcript is one recognition result. Non-final results are revisable
// hypotheses; exactly one final result ends the stream.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
}
