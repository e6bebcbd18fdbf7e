package backprop

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/dimensions"
	"github.com/fxnlabs/convbackprop/internal/gpu"
)

// Instance ids accepted by InstanceSpecific.
const (
	Naive   = 0
	Cached  = 1
	Scatter = 2
	Gemm    = 3
)

// MaxGatherFilterSize is the largest filter InstanceForDimensions sends to the
// cached gather kernel. Larger filters make each work-item's reduction long
// enough that the scatter kernel's single pass over the errors wins.
const MaxGatherFilterSize = 7

var variantNames = map[int]string{
	Naive:   "naive",
	Cached:  "cached",
	Scatter: "scatter",
	Gemm:    "gemm",
}

// Variants returns every known instance id in ascending order.
func Variants() []int {
	return []int{Naive, Cached, Scatter, Gemm}
}

// VariantName returns the name of an instance id, or "" when unknown.
func VariantName(id int) string {
	return variantNames[id]
}

// InstanceSpecific builds the variant with the given id. Unknown ids, invalid
// dimensions and host-only variants on a GPU are configuration errors.
func InstanceSpecific(id int, device gpu.Device, dim dimensions.LayerDimensions, fn activation.Function, logger *zap.Logger) (BackpropErrors, error) {
	if err := dim.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if fn == nil {
		fn = activation.Linear{}
	}

	g := newGeometry(dim)
	var build func(key string, g geometry, batchSize int) *gpu.Kernel
	switch id {
	case Naive:
		build = naiveKernel
	case Cached:
		build = cachedKernel
	case Scatter:
		build = scatterKernel
	case Gemm:
		if !gpu.IsHost(device) {
			return nil, fmt.Errorf("%w: %s on %s", ErrHostOnly, variantNames[id], device.GetDeviceInfo().Name)
		}
		build = gemmKernel
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, id)
	}

	name := variantNames[id]
	options := dim.BuildOptionsString()
	return &kernelVariant{
		name:   name,
		device: device,
		dim:    dim,
		fn:     fn,
		logger: logger.Named("backprop").With(zap.String("variant", name), zap.String("activation", fn.Name())),
		build: func(batchSize int) *gpu.Kernel {
			return build(fmt.Sprintf("%s %s -D gBatchSize=%d", name, options, batchSize), g, batchSize)
		},
		kernels: make(map[int]*gpu.Kernel),
	}, nil
}

// InstanceForDimensions picks a variant from the geometry: the cached gather
// kernel when the filter is at most MaxGatherFilterSize and one error plane
// plus one filter slice fit in the device's work-group memory, otherwise the
// scatter kernel.
func InstanceForDimensions(device gpu.Device, dim dimensions.LayerDimensions, fn activation.Function, logger *zap.Logger) (BackpropErrors, error) {
	return InstanceSpecific(ChooseVariant(device.GetDeviceInfo(), dim), device, dim, fn, logger)
}

// ChooseVariant returns the id InstanceForDimensions would build.
func ChooseVariant(info gpu.DeviceInfo, dim dimensions.LayerDimensions) int {
	if dim.FilterSize() <= MaxGatherFilterSize && cachedFits(newGeometry(dim), info.WorkgroupMemory) {
		return Cached
	}
	return Scatter
}
