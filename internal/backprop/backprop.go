// Package backprop computes the errors a convolutional layer passes to the layer
// before it, with several interchangeable kernels.
//
// Every variant implements the same transposed convolution:
//
//	out[n][p][y][x] = sum over f, u, v of weights[f][p][u][v] * errors[n][f][y-u+half][x-v+half]
//
// where only error positions inside the output image contribute. Variants differ
// in traversal order and memory access, never in result beyond float rounding.
package backprop

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/dimensions"
	"github.com/fxnlabs/convbackprop/internal/gpu"
	"github.com/fxnlabs/convbackprop/internal/metrics"
)

var (
	// ErrUnknownVariant is returned for an instance id with no implementation.
	ErrUnknownVariant = errors.New("unknown backprop errors instance")
	// ErrHostOnly is returned when a host-only variant is built for a GPU device.
	ErrHostOnly = errors.New("backprop errors instance runs only on a host device")
)

// BackpropErrors computes errors for the upstream layer.
//
// All buffers must already hold their data on the device; output only needs
// device storage. input is part of the contract but no variant reads it, and
// the activation derivative is left to the caller.
type BackpropErrors interface {
	Name() string
	BackpropErrors(batchSize int, input, errors, weights, output *gpu.Buffer) error
}

// kernelVariant holds what every variant is bound to and runs the dispatch.
type kernelVariant struct {
	name    string
	device  gpu.Device
	dim     dimensions.LayerDimensions
	fn      activation.Function
	logger  *zap.Logger
	build   func(batchSize int) *gpu.Kernel
	kernels map[int]*gpu.Kernel
}

func (v *kernelVariant) Name() string { return v.name }

func (v *kernelVariant) BackpropErrors(batchSize int, input, errs, weights, output *gpu.Buffer) error {
	if batchSize <= 0 {
		return fmt.Errorf("%s: batch size must be positive, got %d", v.name, batchSize)
	}
	if err := checkSize("errors", errs, v.dim.OutputSizeFor(batchSize)); err != nil {
		return fmt.Errorf("%s: %w", v.name, err)
	}
	if err := checkSize("weights", weights, v.dim.FiltersSize()); err != nil {
		return fmt.Errorf("%s: %w", v.name, err)
	}
	if err := checkSize("output", output, v.dim.InputSizeFor(batchSize)); err != nil {
		return fmt.Errorf("%s: %w", v.name, err)
	}

	k, ok := v.kernels[batchSize]
	if !ok {
		k = v.build(batchSize)
		v.kernels[batchSize] = k
	}

	start := time.Now()
	if err := v.device.Dispatch(k, errs.Memory(), weights.Memory(), output.Memory()); err != nil {
		return fmt.Errorf("%s dispatch failed: %w", v.name, err)
	}
	elapsed := time.Since(start)

	metrics.KernelDispatches.WithLabelValues(v.name, v.device.GetDeviceInfo().Backend).Inc()
	metrics.KernelDuration.WithLabelValues(v.name).Observe(float64(elapsed.Microseconds()) / 1000)
	if elapsed > 0 {
		metrics.KernelGFLOPS.WithLabelValues(v.name).Set(FLOPs(v.dim, batchSize) / elapsed.Seconds() / 1e9)
	}
	v.logger.Debug("backprop errors dispatched",
		zap.String("variant", v.name),
		zap.Int("batchSize", batchSize),
		zap.Int("groups", k.Groups),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func checkSize(name string, buf *gpu.Buffer, want int) error {
	if buf == nil {
		return fmt.Errorf("%s buffer is nil", name)
	}
	if buf.Size() < want {
		return fmt.Errorf("%s buffer holds %d floats, need %d", name, buf.Size(), want)
	}
	return nil
}

// FLOPs is the multiply-add count of one backprop-errors pass, counting two
// operations per weight-error product over the valid region.
func FLOPs(dim dimensions.LayerDimensions, batchSize int) float64 {
	o := float64(dim.OutputImageSize())
	k := float64(dim.FilterSize())
	return 2 * float64(batchSize) * float64(dim.NumFilters()) * float64(dim.InputPlanes()) * o * o * k * k
}

// groupsFor returns the number of work-groups needed to cover items.
func groupsFor(items, workgroupSize int) int {
	return (items + workgroupSize - 1) / workgroupSize
}
