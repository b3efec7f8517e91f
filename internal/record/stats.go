package record

import (
	"math"
	"sync"

	"github.com/sastrawinata/wicara/internal/audio"
)

// statsAccumulator tracks running recording quality counters. Level moments
// are accumulated per chunk so the consistency term of the quality score can
// be derived without keeping history.
type statsAccumulator struct {
	mu sync.Mutex

	levelSum   float64
	levelSqSum float64
	peak       float64

	emitted   uint64
	speech    uint64
	dropped   uint64
	overflows uint64
	errors    uint64
}

func (s *statsAccumulator) recordChunk(chunk audio.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted++
	s.levelSum += chunk.Energy
	s.levelSqSum += chunk.Energy * chunk.Energy
	if chunk.Peak > s.peak {
		s.peak = chunk.Peak
	}
	if chunk.Speech {
		s.speech++
	}
}

func (s *statsAccumulator) recordDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
	s.overflows++
}

func (s *statsAccumulator) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (s *statsAccumulator) snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		PeakLevel:     s.peak,
		ChunksEmitted: s.emitted,
		ChunksDropped: s.dropped,
		Overflows:     s.overflows,
		Errors:        s.errors,
	}
	if s.emitted == 0 {
		return stats
	}

	n := float64(s.emitted)
	mean := s.levelSum / n
	stats.AverageLevel = mean
	stats.VoiceActivePct = float64(s.speech) / n * 100

	// Quality blends level consistency (low variance relative to the mean)
	// with the error-free ratio of the session.
	consistency := 1.0
	if mean > 0 {
		variance := s.levelSqSum/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		consistency = 1 - math.Min(1, math.Sqrt(variance)/mean)
	}
	errorFree := n / (n + float64(s.errors)*10)
	stats.QualityScore = 0.7*consistency + 0.3*errorFree
	return stats
}
