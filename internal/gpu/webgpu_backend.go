//go:build webgpu

package gpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"go.uber.org/zap"
)

const (
	webgpuMaxWorkgroupSize = 256
	webgpuWorkgroupMemory  = 16 * 1024
	webgpuMaxGroupsPerDim  = 65535
	webgpuMapPolls         = 10000
)

// WebGPUDevice implements Device on a WebGPU adapter. Kernels run their WGSL
// source; compiled pipelines are cached by kernel key until Cleanup.
type WebGPUDevice struct {
	logger      *zap.Logger
	mu          sync.Mutex
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	name        string
	driver      string
	groupMemory int
	maxGroups   int
	pipelines   map[string]*wgpu.ComputePipeline
	initialized bool
}

// NewWebGPUDevice creates a new WebGPU device. No adapter is requested until Initialize.
func NewWebGPUDevice(logger *zap.Logger) *WebGPUDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebGPUDevice{
		logger:    logger,
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}
}

// IsAvailable reports whether an instance can be created.
func (w *WebGPUDevice) IsAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.initialized {
		return true
	}
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return false
	}
	instance.Release()
	return true
}

// Initialize requests an adapter, preferring high performance, then low power,
// then whatever the platform offers.
func (w *WebGPUDevice) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.initialized {
		return nil
	}

	w.instance = wgpu.CreateInstance(nil)
	if w.instance == nil {
		return fmt.Errorf("failed to create WebGPU instance")
	}

	var err error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		w.adapter, err = w.instance.RequestAdapter(opts)
		if err == nil && w.adapter != nil {
			break
		}
		w.logger.Debug("adapter request failed, falling back", zap.Error(err))
	}
	if w.adapter == nil {
		w.instance.Release()
		w.instance = nil
		return fmt.Errorf("all adapter requests failed: %v", err)
	}

	w.device, err = w.adapter.RequestDevice(nil)
	if err != nil {
		w.adapter.Release()
		w.instance.Release()
		w.adapter, w.instance = nil, nil
		return fmt.Errorf("failed to request device: %w", err)
	}
	w.queue = w.device.GetQueue()
	info := w.adapter.GetInfo()
	limits := w.adapter.GetLimits()
	w.name = strings.TrimSpace(info.Name)
	w.driver = strings.TrimSpace(info.DriverDescription)
	w.groupMemory = int(limits.Limits.MaxComputeWorkgroupStorageSize)
	w.maxGroups = int(limits.Limits.MaxComputeWorkgroupsPerDimension)
	if w.maxGroups <= 0 {
		w.maxGroups = webgpuMaxGroupsPerDim
	}
	w.initialized = true
	w.logger.Info("WebGPU device initialized",
		zap.String("adapter", w.name),
		zap.String("driver", w.driver),
		zap.Int("workgroupMemory", w.groupMemory),
	)
	return nil
}

// Cleanup releases pipelines, the device and the adapter.
func (w *WebGPUDevice) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, p := range w.pipelines {
		p.Release()
		delete(w.pipelines, key)
	}
	w.queue = nil
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
	if w.adapter != nil {
		w.adapter.Release()
		w.adapter = nil
	}
	if w.instance != nil {
		w.instance.Release()
		w.instance = nil
	}
	w.initialized = false
	return nil
}

// GetDeviceInfo returns information about the adapter.
func (w *WebGPUDevice) GetDeviceInfo() DeviceInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	name, memory := "WebGPU (uninitialized)", webgpuWorkgroupMemory
	if w.initialized {
		name = w.name
		if w.groupMemory > 0 {
			memory = w.groupMemory
		}
	}
	return DeviceInfo{
		Name:              name,
		Backend:           BackendWebGPU,
		ComputeCapability: "WGSL",
		DriverVersion:     w.driver,
		MaxWorkgroupSize:  webgpuMaxWorkgroupSize,
		WorkgroupMemory:   memory,
	}
}

// Allocate creates a storage buffer for n floats.
func (w *WebGPUDevice) Allocate(n int) (Memory, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.initialized {
		return nil, fmt.Errorf("WebGPU device: %w", ErrNotInitialized)
	}
	size := uint64(4 * n)
	if size == 0 {
		size = 4
	}
	buf, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "convbackprop_storage",
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}
	return &webgpuMemory{owner: w, buf: buf, n: n}, nil
}

func (w *WebGPUDevice) pipeline(k *Kernel) (*wgpu.ComputePipeline, error) {
	if p, ok := w.pipelines[k.Key]; ok {
		return p, nil
	}
	module, err := w.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          k.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: k.WGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile kernel %s: %w", k.Name, err)
	}
	defer module.Release()

	p, err := w.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   k.Name,
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline %s: %w", k.Name, err)
	}
	w.pipelines[k.Key] = p
	w.logger.Debug("compiled kernel", zap.String("kernel", k.Name), zap.String("key", k.Key))
	return p, nil
}

// Dispatch encodes one compute pass, submits it and waits for the queue.
// Group counts above the per-dimension limit are folded into a second dimension;
// shaders recover the flat group index from num_workgroups.
func (w *WebGPUDevice) Dispatch(k *Kernel, args ...Memory) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.initialized {
		return fmt.Errorf("WebGPU device: %w", ErrNotInitialized)
	}
	if k.WGSL == "" {
		return fmt.Errorf("kernel %s: %w", k.Name, ErrHostOnlyKernel)
	}
	if k.Groups == 0 {
		return nil
	}

	p, err := w.pipeline(k)
	if err != nil {
		return err
	}

	entries := make([]wgpu.BindGroupEntry, len(args))
	for i, arg := range args {
		mem, ok := arg.(*webgpuMemory)
		if !ok || mem.owner != w {
			return fmt.Errorf("kernel %s argument %d: %w", k.Name, i, ErrForeignMemory)
		}
		entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), Buffer: mem.buf, Size: mem.buf.GetSize()}
	}
	layout := p.GetBindGroupLayout(0)
	defer layout.Release()
	bg, err := w.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.Name + "_bind",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group for %s: %w", k.Name, err)
	}
	defer bg.Release()

	enc, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	defer enc.Release()

	gx, gy := k.Groups, 1
	if gx > w.maxGroups {
		gy = (gx + w.maxGroups - 1) / w.maxGroups
		gx = w.maxGroups
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(uint32(gx), uint32(gy), 1)
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish command: %w", err)
	}
	defer cmd.Release()
	w.queue.Submit(cmd)
	w.device.Poll(true, nil)
	return nil
}

type webgpuMemory struct {
	owner *WebGPUDevice
	buf   *wgpu.Buffer
	n     int
}

func (m *webgpuMemory) Len() int { return m.n }

func (m *webgpuMemory) Write(src []float32) error {
	if m.buf == nil {
		return fmt.Errorf("write to released memory")
	}
	if len(src) != m.n {
		return fmt.Errorf("write size mismatch: memory holds %d, got %d", m.n, len(src))
	}
	if m.n == 0 {
		return nil
	}
	m.owner.mu.Lock()
	defer m.owner.mu.Unlock()
	m.owner.queue.WriteBuffer(m.buf, 0, wgpu.ToBytes(src))
	m.owner.device.Poll(true, nil)
	return nil
}

// Read copies through a staging buffer and blocks until the map completes.
func (m *webgpuMemory) Read(dst []float32) error {
	if m.buf == nil {
		return fmt.Errorf("read from released memory")
	}
	if len(dst) != m.n {
		return fmt.Errorf("read size mismatch: memory holds %d, got %d", m.n, len(dst))
	}
	if m.n == 0 {
		return nil
	}
	w := m.owner
	w.mu.Lock()
	defer w.mu.Unlock()

	size := uint64(4 * m.n)
	staging, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "convbackprop_staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create staging buffer: %w", err)
	}
	defer staging.Release()
	defer staging.Destroy()

	enc, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	enc.CopyBufferToBuffer(m.buf, 0, staging, 0, size)
	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("failed to finish command: %w", err)
	}
	w.queue.Submit(cmd)
	cmd.Release()

	done := false
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		done = true
	})
	if err != nil {
		return fmt.Errorf("MapAsync failed: %w", err)
	}
	for i := 0; i < webgpuMapPolls && !done; i++ {
		w.device.Poll(true, nil)
	}
	if !done {
		return fmt.Errorf("staging buffer map did not complete")
	}
	if mapErr != nil {
		return mapErr
	}
	copy(dst, wgpu.FromBytes[float32](staging.GetMappedRange(0, uint(size))))
	staging.Unmap()
	return nil
}

func (m *webgpuMemory) Release() error {
	if m.buf == nil {
		return nil
	}
	m.buf.Destroy()
	m.buf.Release()
	m.buf = nil
	return nil
}
