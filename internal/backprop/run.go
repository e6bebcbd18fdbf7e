package backprop

import (
	"fmt"

	"github.com/fxnlabs/convbackprop/internal/dimensions"
	"github.com/fxnlabs/convbackprop/internal/gpu"
)

// Compute runs v once over host arrays: it uploads errors and weights, dispatches
// and returns the upstream errors. Device storage is released before returning.
func Compute(v BackpropErrors, device gpu.Device, dim dimensions.LayerDimensions, batchSize int, input, errs, weights []float32) (out []float32, err error) {
	inputBuf := gpu.Wrap(device, dim.InputSizeFor(batchSize), input)
	errorsBuf := gpu.Wrap(device, dim.OutputSizeFor(batchSize), errs)
	weightsBuf := gpu.Wrap(device, dim.FiltersSize(), weights)
	outBuf := gpu.Wrap(device, dim.InputSizeFor(batchSize), make([]float32, dim.InputSizeFor(batchSize)))
	defer func() {
		if releaseErr := gpu.ReleaseAll(inputBuf, errorsBuf, weightsBuf, outBuf); releaseErr != nil && err == nil {
			err = fmt.Errorf("failed to release buffers: %w", releaseErr)
		}
	}()

	for _, buf := range []*gpu.Buffer{inputBuf, errorsBuf, weightsBuf} {
		if err := buf.CopyToDevice(); err != nil {
			return nil, err
		}
	}
	if err := outBuf.CreateOnDevice(); err != nil {
		return nil, err
	}
	if err := v.BackpropErrors(batchSize, inputBuf, errorsBuf, weightsBuf, outBuf); err != nil {
		return nil, err
	}
	if err := outBuf.CopyToHost(); err != nil {
		return nil, err
	}
	return outBuf.Host(), nil
}
