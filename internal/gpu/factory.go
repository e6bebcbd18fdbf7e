package gpu

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	BackendCPU    = "cpu"
	BackendWebGPU = "webgpu"

	// PreferenceAuto selects the first usable GPU, else the CPU.
	PreferenceAuto = "auto"
)

// ErrNoGPU is returned when a GPU device was requested but none can be used.
var ErrNoGPU = errors.New("no GPU device available")

// NewDevice creates and initializes a device for the given preference.
// "auto" tries the GPU first and falls back to the CPU.
func NewDevice(logger *zap.Logger, preference string, workers int) (Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch preference {
	case "", PreferenceAuto:
		dev, err := initGPU(logger)
		if err == nil {
			logger.Info("Using WebGPU device", zap.String("name", dev.GetDeviceInfo().Name))
			return dev, nil
		}
		logger.Info("Using CPU device", zap.String("reason", err.Error()))
		return initCPU(logger, workers)
	case BackendCPU:
		return initCPU(logger, workers)
	case BackendWebGPU:
		return initGPU(logger)
	default:
		return nil, fmt.Errorf("unknown device preference: %s", preference)
	}
}

func initCPU(logger *zap.Logger, workers int) (Device, error) {
	dev := NewCPUDevice(logger.Named("cpu"), workers)
	if err := dev.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize CPU device: %w", err)
	}
	return dev, nil
}

func initGPU(logger *zap.Logger) (Device, error) {
	dev := newGPUDevice(logger)
	if dev == nil || !dev.IsAvailable() {
		return nil, ErrNoGPU
	}
	if err := dev.Initialize(); err != nil {
		_ = dev.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrNoGPU, err)
	}
	return dev, nil
}
