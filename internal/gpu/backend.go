package gpu

import "errors"

var (
	// ErrNotInitialized is returned when a device is used before Initialize.
	ErrNotInitialized = errors.New("device not initialized")
	// ErrHostOnlyKernel is returned when a kernel without a shader is sent to a GPU.
	ErrHostOnlyKernel = errors.New("kernel has no device program")
	// ErrForeignMemory is returned when memory allocated by one device is bound on another.
	ErrForeignMemory = errors.New("memory was not allocated by this device")
)

// DeviceInfo contains information about the compute device
type DeviceInfo struct {
	Name              string `json:"name"`
	Backend           string `json:"backend"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes
	AvailableMemory   int64  `json:"availableMemory"` // in bytes
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
	ComputeUnits      int    `json:"computeUnits"`
	MaxWorkgroupSize  int    `json:"maxWorkgroupSize"`
	// WorkgroupMemory is the shared memory available to one work-group, in bytes.
	WorkgroupMemory int `json:"workgroupMemory"`
}

// Memory is one device-side allocation of float32 values.
type Memory interface {
	Len() int
	// Write copies src into device memory. It blocks until the data is visible
	// to later dispatches.
	Write(src []float32) error
	// Read copies device memory into dst. It blocks until dst is filled.
	Read(dst []float32) error
	Release() error
}

// Kernel is one compute program. A kernel carries a WGSL source for GPU devices
// and a Go body for the CPU device; both compute the same thing.
type Kernel struct {
	Name string
	// Key identifies the compiled program; kernels with equal keys share a pipeline.
	Key string
	// WGSL is the shader source. Empty for host-only kernels.
	WGSL          string
	WorkgroupSize int
	Groups        int
	// Run executes one work-group on the host. args are the bound memories in
	// binding order.
	Run func(group int, args [][]float32)
}

// Device defines the interface for compute devices.
//
// Implementation notes:
// - Dispatch and transfers block until their results are visible
// - A device is driven by one goroutine; Memory values are not shared across devices
// - Cleanup releases every pipeline the device compiled
type Device interface {
	// Initialize prepares the device for use. Calling it twice is a no-op.
	Initialize() error

	// Cleanup releases any resources held by the device.
	Cleanup() error

	// IsAvailable checks if the device can be used without heavy initialization.
	IsAvailable() bool

	// GetDeviceInfo returns information about the device.
	GetDeviceInfo() DeviceInfo

	// Allocate reserves device memory for n float32 values.
	Allocate(n int) (Memory, error)

	// Dispatch runs k over its work-groups with args bound in order.
	Dispatch(k *Kernel, args ...Memory) error
}
