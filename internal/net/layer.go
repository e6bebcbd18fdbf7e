// Package net is a minimal convolutional network used to drive the backprop
// kernels end to end: an input layer, convolutional layers and a square loss.
// Forward passes and weight updates run on the host; errors for the upstream
// layer are computed on the device by a backprop kernel.
package net

// Layer is one stage of a NeuralNet. Sizes cover the whole batch.
type Layer interface {
	ResultsSize() int
	Results() []float32
	WeightsSize() int
	// Weights returns the layer's weights. The slice is owned by the layer and
	// may be modified in place.
	Weights() []float32
	OutputPlanes() int
	OutputImageSize() int
}

// InputLayer holds the batch fed to the network.
type InputLayer struct {
	planes    int
	imageSize int
	results   []float32
}

func (l *InputLayer) setBatchSize(batchSize int) {
	l.results = make([]float32, batchSize*l.planes*l.imageSize*l.imageSize)
}

func (l *InputLayer) ResultsSize() int     { return len(l.results) }
func (l *InputLayer) Results() []float32   { return l.results }
func (l *InputLayer) WeightsSize() int     { return 0 }
func (l *InputLayer) Weights() []float32   { return nil }
func (l *InputLayer) OutputPlanes() int    { return l.planes }
func (l *InputLayer) OutputImageSize() int { return l.imageSize }
