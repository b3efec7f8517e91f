package capture

import (
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// Probe selects a capture backend once at session start: the hardware engine
// when a backend context can be initialized, otherwise the synthetic
// fallback. The choice is not re-probed per call.
func Probe(deviceName string, logger *zap.Logger) Engine {
	probeCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		logger.Warn("Audio backend unavailable, falling back to synthetic capture",
			zap.Error(err))
		return NewSynthetic(Silence())
	}
	_ = probeCtx.Uninit()
	probeCtx.Free()

	return NewMalgo(deviceName, logger)
}
