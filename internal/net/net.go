package net

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/gpu"
)

var (
	// ErrNoLoss is returned when loss or backprop is requested without a loss layer.
	ErrNoLoss = errors.New("network has no loss layer")
	// ErrBatchSizeUnset is returned when the network is run before SetBatchSize.
	ErrBatchSizeUnset = errors.New("batch size not set")
)

// NeuralNet is an input layer followed by convolutional layers and an optional
// square loss layer.
type NeuralNet struct {
	device    gpu.Device
	logger    *zap.Logger
	input     *InputLayer
	layers    []Layer
	convs     []*ConvolutionalLayer
	loss      *SquareLossLayer
	batchSize int
}

// New creates a network whose input has planes planes of imageSize x imageSize.
func New(device gpu.Device, planes, imageSize int, logger *zap.Logger) *NeuralNet {
	if logger == nil {
		logger = zap.NewNop()
	}
	input := &InputLayer{planes: planes, imageSize: imageSize}
	return &NeuralNet{
		device: device,
		logger: logger.Named("net"),
		input:  input,
		layers: []Layer{input},
	}
}

func (n *NeuralNet) last() Layer { return n.layers[len(n.layers)-1] }

// AddConvolutional appends a convolutional layer.
func (n *NeuralNet) AddConvolutional(m ConvolutionalMaker) error {
	if n.loss != nil {
		return fmt.Errorf("cannot add a layer after the loss layer")
	}
	l, err := newConvolutionalLayer(n.last(), m, n.device, n.logger)
	if err != nil {
		return err
	}
	n.layers = append(n.layers, l)
	n.convs = append(n.convs, l)
	return nil
}

// AddSquareLoss appends the loss layer. It must come last.
func (n *NeuralNet) AddSquareLoss() error {
	if n.loss != nil {
		return fmt.Errorf("network already has a loss layer")
	}
	n.loss = &SquareLossLayer{prev: n.last()}
	n.layers = append(n.layers, n.loss)
	return nil
}

// SetBatchSize sizes every layer for batchSize examples.
func (n *NeuralNet) SetBatchSize(batchSize int) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	n.batchSize = batchSize
	n.input.setBatchSize(batchSize)
	for _, l := range n.convs {
		if err := l.setBatchSize(batchSize); err != nil {
			return err
		}
	}
	if n.loss != nil {
		n.loss.setBatchSize(batchSize)
	}
	return nil
}

// Layers returns every layer, input first.
func (n *NeuralNet) Layers() []Layer { return n.layers }

// ConvolutionalLayers returns the trainable layers in order.
func (n *NeuralNet) ConvolutionalLayers() []*ConvolutionalLayer { return n.convs }

// Propagate runs the forward pass on input.
func (n *NeuralNet) Propagate(input []float32) error {
	if n.batchSize == 0 {
		return ErrBatchSizeUnset
	}
	if len(input) != n.input.ResultsSize() {
		return fmt.Errorf("input size mismatch: expected %d, got %d", n.input.ResultsSize(), len(input))
	}
	copy(n.input.results, input)
	for _, l := range n.convs {
		l.forward()
	}
	return nil
}

// CalcLoss scores the last forward pass against expected.
func (n *NeuralNet) CalcLoss(expected []float32) (float64, error) {
	if n.loss == nil {
		return 0, ErrNoLoss
	}
	return n.loss.CalcLoss(expected)
}

// BackProp propagates the loss gradient for expected back through every
// convolutional layer, updating weights at learningRate as it goes.
func (n *NeuralNet) BackProp(learningRate float32, expected []float32) error {
	if n.loss == nil {
		return ErrNoLoss
	}
	if n.batchSize == 0 {
		return ErrBatchSizeUnset
	}
	grad, err := n.loss.calcGradients(expected)
	if err != nil {
		return err
	}
	for i := len(n.convs) - 1; i >= 0; i-- {
		grad, err = n.convs[i].backward(grad, learningRate, i > 0)
		if err != nil {
			return fmt.Errorf("backprop through layer %d: %w", i+1, err)
		}
	}
	return nil
}

// Close releases device storage held by every layer.
func (n *NeuralNet) Close() error {
	var errs []error
	for _, l := range n.convs {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}
