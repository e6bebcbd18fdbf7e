//go:build !webgpu

package gpu

import "go.uber.org/zap"

// newGPUDevice returns nil: without the webgpu tag only the CPU device exists.
func newGPUDevice(logger *zap.Logger) Device {
	logger.Debug("compiled without GPU support")
	return nil
}
