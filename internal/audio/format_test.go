package audio

import (
	"math"
	"testing"
	"time"
)

func TestPCM16RoundTripStability(t *testing.T) {
	// pcm16(float32(pcm16(s))) must equal pcm16(s) within 1 LSB.
	inputs := []float32{-1, -0.999, -0.5, -0.25, -0.001, 0, 0.001, 0.25, 0.5, 0.999, 1}
	for i := -100; i <= 100; i++ {
		inputs = append(inputs, float32(i)/100)
	}

	for _, s := range inputs {
		first := Float32ToPCM16([]float32{s})[0]
		back := PCM16ToFloat32([]int16{first})[0]
		second := Float32ToPCM16([]float32{back})[0]

		diff := int(first) - int(second)
		if diff < -1 || diff > 1 {
			t.Errorf("round trip for %f drifted: %d -> %d", s, first, second)
		}
	}
}

func TestPCM16Clamping(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{2.0, 32767},
		{-2.0, -32768},
		{1.0, 32767},
		{-1.0, -32768},
		{100, 32767},
		{-100, -32768},
	}
	for _, c := range cases {
		got := Float32ToPCM16([]float32{c.in})[0]
		if got != c.want {
			t.Errorf("Float32ToPCM16(%f) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestPCM16ByteSerialization(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	data := PCM16ToBytes(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(data))
	}
	back := BytesToPCM16(data)
	for i, s := range samples {
		if back[i] != s {
			t.Errorf("sample %d: got %d, want %d", i, back[i], s)
		}
	}
}

func TestResamplePreservesDuration(t *testing.T) {
	cases := []struct {
		from, to int
	}{
		{16000, 48000},
		{48000, 16000},
		{44100, 16000},
		{8000, 96000},
	}
	for _, c := range cases {
		// One second of audio.
		in := make([]float32, c.from)
		for i := range in {
			in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / float64(c.from)))
		}
		out, err := Resample(in, c.from, c.to)
		if err != nil {
			t.Fatalf("Resample(%d->%d): %v", c.from, c.to, err)
		}
		if out == nil {
			t.Fatalf("Resample(%d->%d) returned nil", c.from, c.to)
		}
		inDur := float64(len(in)) / float64(c.from)
		outDur := float64(len(out)) / float64(c.to)
		if math.Abs(inDur-outDur) > 0.001 {
			t.Errorf("Resample(%d->%d) duration %fs, want %fs", c.from, c.to, outDur, inDur)
		}
	}
}

func TestResampleRejectsUnsupportedRates(t *testing.T) {
	in := make([]float32, 100)
	if _, err := Resample(in, 4000, 16000); err == nil {
		t.Error("expected error for 4kHz source rate")
	}
	if _, err := Resample(in, 16000, 192000); err == nil {
		t.Error("expected error for 192kHz target rate")
	}
}

func TestChannelConversion(t *testing.T) {
	mono := []float32{0.1, 0.2, 0.3}
	stereo := MonoToStereo(mono)
	if len(stereo) != 6 {
		t.Fatalf("expected 6 stereo samples, got %d", len(stereo))
	}
	back := StereoToMono(stereo)
	if len(back) != 3 {
		t.Fatalf("expected 3 mono samples, got %d", len(back))
	}
	for i := range mono {
		if math.Abs(float64(back[i]-mono[i])) > 1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, back[i], mono[i])
		}
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	data, err := EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, rate, channels, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if channels != 1 {
		t.Errorf("expected 1 channel, got %d", channels)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, s := range samples {
		if decoded[i] != s {
			t.Errorf("sample %d: got %d, want %d", i, decoded[i], s)
		}
	}
}

func TestWAVRejectsInvalidFormats(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 7000, 1); err == nil {
		t.Error("expected error for unsupported sample rate")
	}
	if _, err := EncodeWAV([]int16{1}, 16000, 3); err == nil {
		t.Error("expected error for unsupported channel count")
	}
	if _, _, _, err := DecodeWAV([]byte("not a wav")); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestValidateFormat(t *testing.T) {
	if err := ValidateFormat(16000, 1); err != nil {
		t.Errorf("16kHz mono should be valid: %v", err)
	}
	if err := ValidateFormat(96000, 2); err != nil {
		t.Errorf("96kHz stereo should be valid: %v", err)
	}
	if err := ValidateFormat(7999, 1); err == nil {
		t.Error("7999Hz should be rejected")
	}
	if err := ValidateFormat(16000, 0); err == nil {
		t.Error("0 channels should be rejected")
	}
}

func TestChunkAssemblerDeterministicSize(t *testing.T) {
	asm, err := NewChunkAssembler(16000, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewChunkAssembler failed: %v", err)
	}
	if asm.ChunkSamples() != 1600 {
		t.Fatalf("expected 1600 samples per chunk, got %d", asm.ChunkSamples())
	}
}

func TestChunkAssemblerCarryOver(t *testing.T) {
	asm, err := NewChunkAssembler(16000, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewChunkAssembler failed: %v", err)
	}

	// Frames of 700 samples do not divide the 1600-sample chunk evenly, so
	// the assembler has to carry partial frames forward.
	const frameSize = 700
	var emitted int
	var totalIn int
	now := time.Now()
	for seq := uint64(0); seq < 10; seq++ {
		samples := make([]float32, frameSize)
		for i := range samples {
			samples[i] = 0.5
		}
		totalIn += frameSize
		chunks := asm.Add(Frame{
			Samples:    samples,
			SampleRate: 16000,
			Channels:   1,
			Seq:        seq,
			Timestamp:  now,
		}, true)
		for _, c := range chunks {
			if len(c.Samples) != 1600 {
				t.Errorf("chunk %d has %d samples, want 1600", c.Seq, len(c.Samples))
			}
			emitted++
		}
	}

	// 7000 samples in: 4 full chunks out, 600 carried, nothing dropped.
	if emitted != 4 {
		t.Errorf("expected 4 chunks, got %d", emitted)
	}
	if asm.Pending() != totalIn-4*1600 {
		t.Errorf("expected %d pending samples, got %d", totalIn-4*1600, asm.Pending())
	}

	tail := asm.Flush()
	if tail == nil {
		t.Fatal("expected a trailing chunk from Flush")
	}
	if len(tail.Samples) != totalIn-4*1600 {
		t.Errorf("trailing chunk has %d samples, want %d", len(tail.Samples), totalIn-4*1600)
	}
	if asm.Pending() != 0 {
		t.Errorf("expected empty carry after Flush, got %d", asm.Pending())
	}
}

func TestChunkAssemblerSpeechFlag(t *testing.T) {
	asm, err := NewChunkAssembler(16000, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewChunkAssembler failed: %v", err)
	}

	loud := make([]float32, 1600)
	for i := range loud {
		loud[i] = 0.8
	}
	chunks := asm.Add(Frame{Samples: loud, SampleRate: 16000, Channels: 1, Timestamp: time.Now()}, true)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].Speech {
		t.Error("chunk from speech-tagged frame should carry the speech flag")
	}
	if chunks[0].Energy <= 0 {
		t.Error("chunk energy should be positive")
	}
	if math.Abs(chunks[0].Peak-0.8) > 1e-6 {
		t.Errorf("chunk peak = %f, want 0.8", chunks[0].Peak)
	}

	quiet := make([]float32, 1600)
	chunks = asm.Add(Frame{Samples: quiet, SampleRate: 16000, Channels: 1, Timestamp: time.Now()}, false)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Speech {
		t.Error("chunk from silence-tagged frame should not carry the speech flag")
	}
}

func TestChunkAssemblerRejectsBadDuration(t *testing.T) {
	if _, err := NewChunkAssembler(16000, 1, 5*time.Millisecond); err == nil {
		t.Error("expected error for 5ms chunk duration")
	}
	if _, err := NewChunkAssembler(16000, 1, 6*time.Second); err == nil {
		t.Error("expected error for 6s chunk duration")
	}
}
