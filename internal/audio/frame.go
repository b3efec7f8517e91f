package audio

import (
	"fmt"
	"math"
	"time"
)

// Chunk duration bounds. The default is small enough for low-latency
// streaming while keeping per-message overhead reasonable.
const (
	DefaultChunkDuration = 100 * time.Millisecond
	MinChunkDuration     = 10 * time.Millisecond
	MaxChunkDuration     = 5000 * time.Millisecond
)

// OverflowPolicy decides what happens when a bounded audio buffer is full.
// The producer never blocks; it applies the policy instead.
type OverflowPolicy int

const (
	DropOldest OverflowPolicy = iota
	DropNewest
	Expand
	StopOnOverflow
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	case Expand:
		return "expand"
	case StopOnOverflow:
		return "stop_on_overflow"
	}
	return "unknown"
}

// Frame is a fixed-length vector of normalized samples emitted by a capture
// engine. Frames are immutable once emitted; ownership passes to the
// consumer.
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Seq        uint64
	Timestamp  time.Time
}

// Duration returns the playback time covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	frames := len(f.Samples) / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root-mean-square energy of the frame, in [0, 1].
func (f Frame) RMS() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}

// Chunk aggregates consecutive frames into the unit sent over the wire.
type Chunk struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Energy     float64 // RMS over the whole chunk
	Peak       float64 // largest absolute sample value
	Speech     bool    // dominant VAD flag over contributing frames
	Seq        uint64
	Start      time.Time
	Duration   time.Duration
}

// ChunkAssembler groups frames into fixed-duration chunks. The chunk sample
// count is deterministic given the sample rate and configured duration;
// partial trailing frames are carried over to the next chunk, never dropped
// or duplicated.
type ChunkAssembler struct {
	sampleRate    int
	channels      int
	chunkSamples  int
	carry         []float32
	carrySpeech   int // samples in carry tagged as speech
	carryStart    time.Time
	seq           uint64
	chunkDuration time.Duration
}

// NewChunkAssembler validates the format and duration and returns an
// assembler producing chunks of exactly sampleRate*duration samples per
// channel.
func NewChunkAssembler(sampleRate, channels int, duration time.Duration) (*ChunkAssembler, error) {
	if err := ValidateFormat(sampleRate, channels); err != nil {
		return nil, err
	}
	if duration == 0 {
		duration = DefaultChunkDuration
	}
	if duration < MinChunkDuration || duration > MaxChunkDuration {
		return nil, fmt.Errorf("chunk duration %v out of range [%v, %v]", duration, MinChunkDuration, MaxChunkDuration)
	}
	perChannel := int(int64(sampleRate) * int64(duration) / int64(time.Second))
	return &ChunkAssembler{
		sampleRate:    sampleRate,
		channels:      channels,
		chunkSamples:  perChannel * channels,
		chunkDuration: duration,
	}, nil
}

// ChunkSamples returns the deterministic per-chunk sample count.
func (a *ChunkAssembler) ChunkSamples() int {
	return a.chunkSamples
}

// Add appends a frame and returns all chunks completed by it. The speech flag
// tags the frame's samples; a chunk is marked as speech when the majority of
// its samples came from speech-tagged frames.
func (a *ChunkAssembler) Add(frame Frame, speech bool) []Chunk {
	if len(a.carry) == 0 {
		a.carryStart = frame.Timestamp
	}
	a.carry = append(a.carry, frame.Samples...)
	if speech {
		a.carrySpeech += len(frame.Samples)
	}

	var chunks []Chunk
	for len(a.carry) >= a.chunkSamples {
		samples := make([]float32, a.chunkSamples)
		copy(samples, a.carry[:a.chunkSamples])

		var sum, peak float64
		for _, s := range samples {
			v := float64(s)
			sum += v * v
			if av := math.Abs(v); av > peak {
				peak = av
			}
		}

		speechSamples := a.carrySpeech
		if speechSamples > a.chunkSamples {
			speechSamples = a.chunkSamples
		}

		chunks = append(chunks, Chunk{
			Samples:    samples,
			SampleRate: a.sampleRate,
			Channels:   a.channels,
			Energy:     math.Sqrt(sum / float64(len(samples))),
			Peak:       peak,
			Speech:     speechSamples*2 > a.chunkSamples,
			Seq:        a.seq,
			Start:      a.carryStart,
			Duration:   a.chunkDuration,
		})
		a.seq++

		a.carry = a.carry[a.chunkSamples:]
		a.carrySpeech -= speechSamples
		if a.carrySpeech < 0 {
			a.carrySpeech = 0
		}
		a.carryStart = a.carryStart.Add(a.chunkDuration)
	}
	return chunks
}

// Pending returns the number of carried-over samples awaiting the next chunk.
func (a *ChunkAssembler) Pending() int {
	return len(a.carry)
}

// Flush emits any carried-over samples as a final short chunk, or nil if the
// carry is empty. Used when a recording stops mid-chunk.
func (a *ChunkAssembler) Flush() *Chunk {
	if len(a.carry) == 0 {
		return nil
	}
	samples := make([]float32, len(a.carry))
	copy(samples, a.carry)

	var sum, peak float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		if av := math.Abs(v); av > peak {
			peak = av
		}
	}
	frames := len(samples) / a.channels
	chunk := &Chunk{
		Samples:    samples,
		SampleRate: a.sampleRate,
		Channels:   a.channels,
		Energy:     math.Sqrt(sum / float64(len(samples))),
		Peak:       peak,
		Speech:     a.carrySpeech*2 > len(samples),
		Seq:        a.seq,
		Start:      a.carryStart,
		Duration:   time.Duration(frames) * time.Second / time.Duration(a.sampleRate),
	}
	a.seq++
	a.carry = nil
	a.carrySpeech = 0
	return chunk
}
