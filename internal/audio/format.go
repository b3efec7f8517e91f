package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Supported format bounds. Anything outside fails fast with a typed error
// instead of being silently clamped.
const (
	MinSampleRate = 8000
	MaxSampleRate = 96000
	MinChannels   = 1
	MaxChannels   = 2
)

// FormatError reports an unsupported audio format parameter.
type FormatError struct {
	Field string
	Value int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported %s: %d", e.Field, e.Value)
}

// ValidateFormat checks sample rate and channel count against supported bounds.
func ValidateFormat(sampleRate, channels int) error {
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return &FormatError{Field: "sample rate", Value: sampleRate}
	}
	if channels < MinChannels || channels > MaxChannels {
		return &FormatError{Field: "channel count", Value: channels}
	}
	return nil
}

// Float32ToPCM16 converts normalized float samples to 16-bit PCM. Inputs are
// clamped to [-1, 1] before scaling: +1.0 maps to 32767, -1.0 to -32768.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s >= 0 {
			out[i] = int16(s * 32767)
		} else {
			out[i] = int16(s * 32768)
		}
	}
	return out
}

// PCM16ToFloat32 converts 16-bit PCM samples back to normalized floats by
// dividing by 32768.
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// PCM16ToBytes serializes samples as little-endian byte pairs, the layout used
// for binary frames on the wire.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 parses little-endian byte pairs into samples. A trailing odd
// byte is ignored.
func BytesToPCM16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// Resample converts mono samples between two rates using linear
// interpolation. Total duration is preserved within rounding error.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if err := ValidateFormat(fromRate, 1); err != nil {
		return nil, err
	}
	if err := ValidateFormat(toRate, 1); err != nil {
		return nil, err
	}
	if fromRate == toRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	outLen := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out, nil
}

// MonoToStereo duplicates each sample into an interleaved stereo stream.
func MonoToStereo(samples []float32) []float32 {
	out := make([]float32, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages interleaved stereo pairs into a mono stream.
func StereoToMono(samples []float32) []float32 {
	n := len(samples) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM data. Channel
// count and sample rate live in fixed fields so the container is
// self-describing.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

const wavHeaderSize = 44

// EncodeWAV frames PCM-16 samples in a WAV container.
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if err := ValidateFormat(sampleRate, channels); err != nil {
		return nil, err
	}

	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV parses a WAV container back into PCM-16 samples plus its declared
// sample rate and channel count.
func DecodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, 0, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	buf := bytes.NewReader(data)
	var header wavHeader
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, 0, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != 16 {
		return nil, 0, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	if err := ValidateFormat(int(header.SampleRate), int(header.NumChannels)); err != nil {
		return nil, 0, 0, err
	}

	numSamples := int(header.Subchunk2Size) / 2
	if numSamples <= 0 {
		return nil, 0, 0, fmt.Errorf("no audio data found")
	}

	samples := make([]int16, numSamples)
	if err := binary.Read(buf, binary.LittleEndian, samples); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}
	return samples, int(header.SampleRate), int(header.NumChannels), nil
}
