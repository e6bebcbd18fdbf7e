package net

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/backprop"
	"github.com/fxnlabs/convbackprop/internal/dimensions"
	"github.com/fxnlabs/convbackprop/internal/gpu"
)

// AutoVariant lets the dispatcher pick the backprop kernel from the geometry.
const AutoVariant = -1

// ConvolutionalMaker describes a convolutional layer. Setters return updated copies.
type ConvolutionalMaker struct {
	numFilters int
	filterSize int
	padZeros   bool
	biased     bool
	fn         activation.Function
	variant    int
}

// Convolutional starts a maker for one 1x1 linear filter with an automatically
// chosen backprop kernel.
func Convolutional() ConvolutionalMaker {
	return ConvolutionalMaker{numFilters: 1, filterSize: 1, fn: activation.Linear{}, variant: AutoVariant}
}

func (m ConvolutionalMaker) NumFilters(n int) ConvolutionalMaker          { m.numFilters = n; return m }
func (m ConvolutionalMaker) FilterSize(n int) ConvolutionalMaker          { m.filterSize = n; return m }
func (m ConvolutionalMaker) PadZeros(pad bool) ConvolutionalMaker         { m.padZeros = pad; return m }
func (m ConvolutionalMaker) Biased(biased bool) ConvolutionalMaker        { m.biased = biased; return m }
func (m ConvolutionalMaker) Fn(fn activation.Function) ConvolutionalMaker { m.fn = fn; return m }

// Variant selects a backprop kernel by instance id, or AutoVariant.
func (m ConvolutionalMaker) Variant(id int) ConvolutionalMaker { m.variant = id; return m }

// ConvolutionalLayer convolves the previous layer's results with its filters
// and applies an activation.
type ConvolutionalLayer struct {
	prev    Layer
	dim     dimensions.LayerDimensions
	fn      activation.Function
	device  gpu.Device
	kernel  backprop.BackpropErrors
	logger  *zap.Logger
	weights []float32
	bias    []float32

	batchSize int
	results   []float32
	gradZ     []float32
	upstream  []float32
	gradW     []float32

	inputBuf    *gpu.Buffer
	errorsBuf   *gpu.Buffer
	weightsBuf  *gpu.Buffer
	upstreamBuf *gpu.Buffer
}

func newConvolutionalLayer(prev Layer, m ConvolutionalMaker, device gpu.Device, logger *zap.Logger) (*ConvolutionalLayer, error) {
	dim := dimensions.New().
		SetInputPlanes(prev.OutputPlanes()).
		SetInputImageSize(prev.OutputImageSize()).
		SetNumFilters(m.numFilters).
		SetFilterSize(m.filterSize).
		SetPadZeros(m.padZeros).
		SetBiased(m.biased)

	var (
		kernel backprop.BackpropErrors
		err    error
	)
	if m.variant == AutoVariant {
		kernel, err = backprop.InstanceForDimensions(device, dim, m.fn, logger)
	} else {
		kernel, err = backprop.InstanceSpecific(m.variant, device, dim, m.fn, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build convolutional layer: %w", err)
	}

	l := &ConvolutionalLayer{
		prev:    prev,
		dim:     dim,
		fn:      m.fn,
		device:  device,
		kernel:  kernel,
		logger:  logger,
		weights: make([]float32, dim.FiltersSize()),
		gradW:   make([]float32, dim.FiltersSize()),
	}
	if m.biased {
		l.bias = make([]float32, dim.NumFilters())
	}
	l.weightsBuf = gpu.Wrap(device, len(l.weights), l.weights)
	logger.Debug("convolutional layer created",
		zap.Stringer("dimensions", dim),
		zap.String("kernel", kernel.Name()),
		zap.String("activation", m.fn.Name()),
	)
	return l, nil
}

func (l *ConvolutionalLayer) Dimensions() dimensions.LayerDimensions { return l.dim }
func (l *ConvolutionalLayer) Kernel() backprop.BackpropErrors        { return l.kernel }
func (l *ConvolutionalLayer) ResultsSize() int                       { return len(l.results) }
func (l *ConvolutionalLayer) Results() []float32                     { return l.results }
func (l *ConvolutionalLayer) WeightsSize() int                       { return len(l.weights) }
func (l *ConvolutionalLayer) Weights() []float32                     { return l.weights }
func (l *ConvolutionalLayer) Bias() []float32                        { return l.bias }
func (l *ConvolutionalLayer) OutputPlanes() int                      { return l.dim.NumFilters() }
func (l *ConvolutionalLayer) OutputImageSize() int                   { return l.dim.OutputImageSize() }

func (l *ConvolutionalLayer) setBatchSize(batchSize int) error {
	if err := gpu.ReleaseAll(l.inputBuf, l.errorsBuf, l.upstreamBuf); err != nil {
		return err
	}
	l.batchSize = batchSize
	l.results = make([]float32, l.dim.OutputSizeFor(batchSize))
	l.gradZ = make([]float32, l.dim.OutputSizeFor(batchSize))
	l.upstream = make([]float32, l.dim.InputSizeFor(batchSize))

	l.inputBuf = gpu.Wrap(l.device, l.dim.InputSizeFor(batchSize), l.prev.Results())
	l.errorsBuf = gpu.Wrap(l.device, len(l.gradZ), l.gradZ)
	l.upstreamBuf = gpu.Wrap(l.device, len(l.upstream), l.upstream)
	return l.upstreamBuf.CreateOnDevice()
}

// forward computes results from the previous layer's results.
func (l *ConvolutionalLayer) forward() {
	in := l.prev.Results()
	planes, size := l.dim.InputPlanes(), l.dim.InputImageSize()
	fs, osz, half := l.dim.FilterSize(), l.dim.OutputImageSize(), l.dim.HalfFilterSize()
	for n := 0; n < l.batchSize; n++ {
		for f := 0; f < l.dim.NumFilters(); f++ {
			for oy := 0; oy < osz; oy++ {
				for ox := 0; ox < osz; ox++ {
					var sum float32
					for p := 0; p < planes; p++ {
						for u := 0; u < fs; u++ {
							y := oy + u - half
							if y < 0 || y >= size {
								continue
							}
							for v := 0; v < fs; v++ {
								x := ox + v - half
								if x < 0 || x >= size {
									continue
								}
								sum += l.weights[((f*planes+p)*fs+u)*fs+v] * in[((n*planes+p)*size+y)*size+x]
							}
						}
					}
					if l.bias != nil {
						sum += l.bias[f]
					}
					l.results[((n*l.dim.NumFilters()+f)*osz+oy)*osz+ox] = l.fn.Calc(sum)
				}
			}
		}
	}
}

// backward takes the loss gradient with respect to this layer's results,
// updates weights by gradient descent and, when withUpstream is set, returns
// the gradient with respect to the previous layer's results. Upstream errors
// are computed with the weights as they were before the update.
func (l *ConvolutionalLayer) backward(gradOut []float32, learningRate float32, withUpstream bool) ([]float32, error) {
	if len(gradOut) != len(l.results) {
		return nil, fmt.Errorf("gradient size mismatch: expected %d, got %d", len(l.results), len(gradOut))
	}
	for i, g := range gradOut {
		l.gradZ[i] = g * l.fn.CalcDerivative(l.results[i])
	}

	var upstream []float32
	if withUpstream {
		if err := l.backpropErrors(); err != nil {
			return nil, err
		}
		upstream = l.upstream
	}

	l.calcWeightGradients()
	for i, g := range l.gradW {
		l.weights[i] -= learningRate * g
	}
	if l.bias != nil {
		osq := l.dim.OutputImageSize() * l.dim.OutputImageSize()
		for f := range l.bias {
			var g float32
			for n := 0; n < l.batchSize; n++ {
				for _, e := range l.gradZ[(n*l.dim.NumFilters()+f)*osq:][:osq] {
					g += e
				}
			}
			l.bias[f] -= learningRate * g
		}
	}
	return upstream, nil
}

func (l *ConvolutionalLayer) backpropErrors() error {
	for _, buf := range []*gpu.Buffer{l.inputBuf, l.errorsBuf, l.weightsBuf} {
		if err := buf.CopyToDevice(); err != nil {
			return err
		}
	}
	if err := l.kernel.BackpropErrors(l.batchSize, l.inputBuf, l.errorsBuf, l.weightsBuf, l.upstreamBuf); err != nil {
		return err
	}
	return l.upstreamBuf.CopyToHost()
}

// calcWeightGradients sums the weight gradient over the batch.
func (l *ConvolutionalLayer) calcWeightGradients() {
	in := l.prev.Results()
	planes, size := l.dim.InputPlanes(), l.dim.InputImageSize()
	fs, osz, half := l.dim.FilterSize(), l.dim.OutputImageSize(), l.dim.HalfFilterSize()
	filters := l.dim.NumFilters()
	for f := 0; f < filters; f++ {
		for p := 0; p < planes; p++ {
			for u := 0; u < fs; u++ {
				for v := 0; v < fs; v++ {
					var sum float32
					for n := 0; n < l.batchSize; n++ {
						for oy := 0; oy < osz; oy++ {
							y := oy + u - half
							if y < 0 || y >= size {
								continue
							}
							for ox := 0; ox < osz; ox++ {
								x := ox + v - half
								if x < 0 || x >= size {
									continue
								}
								sum += l.gradZ[((n*filters+f)*osz+oy)*osz+ox] * in[((n*planes+p)*size+y)*size+x]
							}
						}
					}
					l.gradW[((f*planes+p)*fs+u)*fs+v] = sum
				}
			}
		}
	}
}

// Close releases the layer's device storage.
func (l *ConvolutionalLayer) Close() error {
	return gpu.ReleaseAll(l.inputBuf, l.errorsBuf, l.upstreamBuf, l.weightsBuf)
}
