package gpu

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	cpuMaxWorkgroupSize = 256
	cpuWorkgroupMemory  = 32 * 1024
)

// CPUDevice implements Device on the host. Device memory is a separate float32
// array, so transfers are real copies and a kernel never sees host arrays.
// Work-groups of a dispatch run concurrently on up to workers goroutines.
type CPUDevice struct {
	logger      *zap.Logger
	workers     int
	mu          sync.Mutex
	initialized bool
}

// NewCPUDevice creates a new CPU device. workers <= 0 uses GOMAXPROCS.
func NewCPUDevice(logger *zap.Logger, workers int) *CPUDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPUDevice{
		logger:  logger,
		workers: workers,
	}
}

// Initialize prepares the CPU device for use
func (c *CPUDevice) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Info("CPU device initialized", zap.Int("workers", c.workers))
	return nil
}

// Cleanup marks the device unusable. Host memory is left to the garbage collector.
func (c *CPUDevice) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	return nil
}

// IsAvailable checks if the device is available (always true for CPU)
func (c *CPUDevice) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for CPU
func (c *CPUDevice) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:              fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		Backend:           BackendCPU,
		TotalMemory:       getTotalSystemMemory(),
		AvailableMemory:   getAvailableSystemMemory(),
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
		ComputeUnits:      c.workers,
		MaxWorkgroupSize:  cpuMaxWorkgroupSize,
		WorkgroupMemory:   cpuWorkgroupMemory,
	}
}

func (c *CPUDevice) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Allocate reserves n floats of simulated device memory
func (c *CPUDevice) Allocate(n int) (Memory, error) {
	if !c.ready() {
		return nil, fmt.Errorf("CPU device: %w", ErrNotInitialized)
	}
	if n < 0 {
		return nil, fmt.Errorf("CPU device: negative allocation size %d", n)
	}
	return &hostMemory{data: make([]float32, n)}, nil
}

// Dispatch runs every work-group of k and waits for all of them.
func (c *CPUDevice) Dispatch(k *Kernel, args ...Memory) error {
	if !c.ready() {
		return fmt.Errorf("CPU device: %w", ErrNotInitialized)
	}
	if k.Run == nil {
		return fmt.Errorf("kernel %s has no host body", k.Name)
	}
	bound := make([][]float32, len(args))
	for i, arg := range args {
		mem, ok := arg.(*hostMemory)
		if !ok {
			return fmt.Errorf("kernel %s argument %d: %w", k.Name, i, ErrForeignMemory)
		}
		if mem.data == nil {
			return fmt.Errorf("kernel %s argument %d: memory released", k.Name, i)
		}
		bound[i] = mem.data
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for group := 0; group < k.Groups; group++ {
		group := group
		g.Go(func() error {
			k.Run(group, bound)
			return nil
		})
	}
	return g.Wait()
}

type hostMemory struct {
	data []float32
}

func (m *hostMemory) Len() int { return len(m.data) }

func (m *hostMemory) Write(src []float32) error {
	if m.data == nil {
		return fmt.Errorf("write to released memory")
	}
	if len(src) != len(m.data) {
		return fmt.Errorf("write size mismatch: memory holds %d, got %d", len(m.data), len(src))
	}
	copy(m.data, src)
	return nil
}

func (m *hostMemory) Read(dst []float32) error {
	if m.data == nil {
		return fmt.Errorf("read from released memory")
	}
	if len(dst) != len(m.data) {
		return fmt.Errorf("read size mismatch: memory holds %d, got %d", len(m.data), len(dst))
	}
	copy(dst, m.data)
	return nil
}

func (m *hostMemory) Release() error {
	m.data = nil
	return nil
}

// getTotalSystemMemory returns total system memory in bytes
func getTotalSystemMemory() int64 {
	// Return a default value for now
	// In a real implementation, this would query system memory
	return 8 * 1024 * 1024 * 1024 // 8GB
}

// getAvailableSystemMemory returns available system memory in bytes
func getAvailableSystemMemory() int64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return getTotalSystemMemory() - int64(stats.Sys)
}
