package gpu

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager handles device selection and lifecycle
type Manager struct {
	device Device
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewManager creates a new manager and selects a device for preference.
func NewManager(logger *zap.Logger, preference string, workers int) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		logger: logger,
	}

	if err := m.detectAndInitialize(preference, workers); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) detectAndInitialize(preference string, workers int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, err := NewDevice(m.logger, preference, workers)
	if err != nil {
		return fmt.Errorf("failed to select device: %w", err)
	}
	m.device = dev
	return nil
}

// GetDevice returns the current device
func (m *Manager) GetDevice() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// Wrap binds a buffer of size floats to host on the current device.
func (m *Manager) Wrap(size int, host []float32) *Buffer {
	return Wrap(m.GetDevice(), size, host)
}

// GetDeviceInfo returns device information from the current device
func (m *Manager) GetDeviceInfo() DeviceInfo {
	dev := m.GetDevice()
	if dev == nil {
		return DeviceInfo{Name: "No device available"}
	}
	return dev.GetDeviceInfo()
}

// IsGPUAvailable returns true if a GPU device is active
func (m *Manager) IsGPUAvailable() bool {
	dev := m.GetDevice()
	if dev == nil {
		return false
	}
	_, isCPU := dev.(*CPUDevice)
	return !isCPU
}

// Cleanup releases resources held by the current device
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Cleanup(); err != nil {
			return err
		}
		m.device = nil
	}
	return nil
}

// GetBackendType returns a string describing the current backend type
func (m *Manager) GetBackendType() string {
	dev := m.GetDevice()
	if dev == nil {
		return "none"
	}
	return dev.GetDeviceInfo().Backend
}

// IsHost reports whether dev runs kernels on the host.
func IsHost(dev Device) bool {
	_, ok := dev.(*CPUDevice)
	return ok
}
