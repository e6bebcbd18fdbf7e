//go:build webgpu

package gpu

import "go.uber.org/zap"

// newGPUDevice returns the WebGPU device when the binary was built with the
// webgpu tag.
func newGPUDevice(logger *zap.Logger) Device {
	return NewWebGPUDevice(logger.Named("webgpu"))
}
