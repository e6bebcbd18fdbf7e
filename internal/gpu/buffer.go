package gpu

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/convbackprop/internal/metrics"
)

// Buffer pairs a host float32 array with at most one device allocation of the
// same length.
//
// A Buffer starts unbound. CreateOnDevice or CopyToDevice allocates device
// storage; Release frees it again. Transfers copy in place and never replace
// the host slice.
type Buffer struct {
	device Device
	host   []float32
	mem    Memory
}

// Wrap binds a buffer of size floats to host. No device memory is allocated.
func Wrap(device Device, size int, host []float32) *Buffer {
	if size < 0 || len(host) < size {
		panic(fmt.Sprintf("gpu: cannot wrap %d floats over a host array of %d", size, len(host)))
	}
	return &Buffer{device: device, host: host[:size:size]}
}

// Size is the number of floats in the buffer.
func (b *Buffer) Size() int { return len(b.host) }

// Host returns the wrapped host array.
func (b *Buffer) Host() []float32 { return b.host }

// OnDevice reports whether device storage exists.
func (b *Buffer) OnDevice() bool { return b.mem != nil }

// Memory returns the device allocation. It panics when the buffer is unbound.
func (b *Buffer) Memory() Memory {
	if b.mem == nil {
		panic("gpu: buffer has no device storage")
	}
	return b.mem
}

// CreateOnDevice allocates device storage if the buffer has none. The contents
// are undefined until written by a transfer or a kernel.
func (b *Buffer) CreateOnDevice() error {
	if b.mem != nil {
		return nil
	}
	mem, err := b.device.Allocate(len(b.host))
	if err != nil {
		return fmt.Errorf("failed to allocate %d floats on device: %w", len(b.host), err)
	}
	b.mem = mem
	metrics.DeviceMemoryUsedBytes.Add(float64(4 * len(b.host)))
	return nil
}

// CopyToDevice writes the host contents to device storage, allocating it first
// when needed.
func (b *Buffer) CopyToDevice() error {
	if err := b.CreateOnDevice(); err != nil {
		return err
	}
	if err := b.mem.Write(b.host); err != nil {
		return fmt.Errorf("failed to copy buffer to device: %w", err)
	}
	recordTransfer(metrics.DirectionToDevice, len(b.host))
	return nil
}

// CopyToHost overwrites the host contents with device storage. Calling it on a
// buffer without device storage is a programming error and panics.
func (b *Buffer) CopyToHost() error {
	if err := b.Memory().Read(b.host); err != nil {
		return fmt.Errorf("failed to copy buffer to host: %w", err)
	}
	recordTransfer(metrics.DirectionToHost, len(b.host))
	return nil
}

// Release frees device storage. The buffer returns to the unbound state and
// may be allocated again.
func (b *Buffer) Release() error {
	if b.mem == nil {
		return nil
	}
	err := b.mem.Release()
	b.mem = nil
	metrics.DeviceMemoryUsedBytes.Sub(float64(4 * len(b.host)))
	return err
}

// ReleaseAll releases every buffer and joins the errors. Nil buffers are skipped.
func ReleaseAll(buffers ...*Buffer) error {
	var errs []error
	for _, b := range buffers {
		if b == nil {
			continue
		}
		if err := b.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recordTransfer(direction string, floats int) {
	metrics.BufferTransfers.WithLabelValues(direction).Inc()
	metrics.BufferTransferBytes.WithLabelValues(direction).Add(float64(4 * floats))
}
