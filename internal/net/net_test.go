package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/backprop"
	"github.com/fxnlabs/convbackprop/internal/gpu"
	"github.com/fxnlabs/convbackprop/internal/randomizer"
)

func newDevice(t *testing.T) gpu.Device {
	t.Helper()
	dev := gpu.NewCPUDevice(zap.NewNop(), 2)
	require.NoError(t, dev.Initialize())
	t.Cleanup(func() { _ = dev.Cleanup() })
	return dev
}

func TestForward(t *testing.T) {
	dev := newDevice(t)
	n := New(dev, 1, 3, zap.NewNop())
	require.NoError(t, n.AddConvolutional(Convolutional().FilterSize(2)))
	require.NoError(t, n.SetBatchSize(1))
	defer n.Close()

	conv := n.ConvolutionalLayers()[0]
	copy(conv.Weights(), []float32{1, 0, 0, -1})
	require.NoError(t, n.Propagate([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}))
	assert.Equal(t, []float32{1 - 5, 2 - 6, 4 - 8, 5 - 9}, conv.Results())
	assert.Equal(t, 2, conv.OutputImageSize())
}

func TestForward_PaddedBiased(t *testing.T) {
	dev := newDevice(t)
	n := New(dev, 1, 2, zap.NewNop())
	require.NoError(t, n.AddConvolutional(Convolutional().FilterSize(3).PadZeros(true).Biased(true)))
	require.NoError(t, n.SetBatchSize(1))
	defer n.Close()

	conv := n.ConvolutionalLayers()[0]
	for i := range conv.Weights() {
		conv.Weights()[i] = 1
	}
	conv.Bias()[0] = 0.5
	require.NoError(t, n.Propagate([]float32{1, 2, 3, 4}))
	// every 3x3 window around a 2x2 image covers all four pixels
	assert.Equal(t, []float32{10.5, 10.5, 10.5, 10.5}, conv.Results())
}

func TestBackProp_SingleWeight(t *testing.T) {
	dev := newDevice(t)
	n := New(dev, 1, 1, zap.NewNop())
	require.NoError(t, n.AddConvolutional(Convolutional().Biased(true)))
	require.NoError(t, n.AddSquareLoss())
	require.NoError(t, n.SetBatchSize(1))
	defer n.Close()

	conv := n.ConvolutionalLayers()[0]
	conv.Weights()[0] = 2
	conv.Bias()[0] = 1

	require.NoError(t, n.Propagate([]float32{3}))
	loss, err := n.CalcLoss([]float32{5})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, loss, 1e-9) // 0.5 * (7-5)^2

	require.NoError(t, n.BackProp(0.1, []float32{5}))
	assert.InDelta(t, 1.4, conv.Weights()[0], 1e-6)
	assert.InDelta(t, 0.8, conv.Bias()[0], 1e-6)
}

func TestBackProp_VariantsAgree(t *testing.T) {
	const (
		planes    = 2
		imageSize = 5
		batchSize = 3
	)
	dev := newDevice(t)

	r := randomizer.New(11)
	input := make([]float32, batchSize*planes*imageSize*imageSize)
	r.Symmetric(input, 1)
	expected := make([]float32, batchSize*2*imageSize*imageSize)
	r.Symmetric(expected, 1)
	w1 := make([]float32, 3*planes*9)
	r.Symmetric(w1, 0.5)
	w2 := make([]float32, 2*3*9)
	r.Symmetric(w2, 0.5)

	trained := make(map[int][]float32)
	for _, id := range backprop.Variants() {
		n := New(dev, planes, imageSize, zap.NewNop())
		maker := Convolutional().FilterSize(3).PadZeros(true).Fn(activation.Tanh{}).Variant(id)
		require.NoError(t, n.AddConvolutional(maker.NumFilters(3)))
		require.NoError(t, n.AddConvolutional(maker.NumFilters(2)))
		require.NoError(t, n.AddSquareLoss())
		require.NoError(t, n.SetBatchSize(batchSize))

		convs := n.ConvolutionalLayers()
		assert.Equal(t, backprop.VariantName(id), convs[1].Kernel().Name())
		copy(convs[0].Weights(), w1)
		copy(convs[1].Weights(), w2)

		require.NoError(t, n.Propagate(input))
		require.NoError(t, n.BackProp(0.01, expected))
		trained[id] = append([]float32(nil), convs[0].Weights()...)
		require.NoError(t, n.Close())
	}

	for _, id := range backprop.Variants()[1:] {
		mismatches, err := backprop.Compare(trained[backprop.Naive], trained[id], backprop.Tolerance{Abs: 1e-5, Rel: 1e-3})
		require.NoError(t, err)
		assert.Empty(t, mismatches, "variant %s", backprop.VariantName(id))
	}
}

func TestErrors(t *testing.T) {
	dev := newDevice(t)

	t.Run("batch size unset", func(t *testing.T) {
		n := New(dev, 1, 1, nil)
		require.NoError(t, n.AddConvolutional(Convolutional()))
		assert.ErrorIs(t, n.Propagate([]float32{1}), ErrBatchSizeUnset)
	})

	t.Run("no loss layer", func(t *testing.T) {
		n := New(dev, 1, 1, nil)
		require.NoError(t, n.AddConvolutional(Convolutional()))
		require.NoError(t, n.SetBatchSize(1))
		_, err := n.CalcLoss([]float32{1})
		assert.ErrorIs(t, err, ErrNoLoss)
		assert.ErrorIs(t, n.BackProp(0.1, []float32{1}), ErrNoLoss)
	})

	t.Run("input size mismatch", func(t *testing.T) {
		n := New(dev, 1, 2, nil)
		require.NoError(t, n.AddConvolutional(Convolutional()))
		require.NoError(t, n.SetBatchSize(1))
		assert.Error(t, n.Propagate([]float32{1, 2}))
	})

	t.Run("layer after loss", func(t *testing.T) {
		n := New(dev, 1, 1, nil)
		require.NoError(t, n.AddSquareLoss())
		assert.Error(t, n.AddConvolutional(Convolutional()))
		assert.Error(t, n.AddSquareLoss())
	})

	t.Run("filter larger than unpadded input", func(t *testing.T) {
		n := New(dev, 1, 2, nil)
		assert.Error(t, n.AddConvolutional(Convolutional().FilterSize(3)))
	})

	t.Run("unknown variant", func(t *testing.T) {
		n := New(dev, 1, 2, nil)
		err := n.AddConvolutional(Convolutional().Variant(42))
		assert.ErrorIs(t, err, backprop.ErrUnknownVariant)
	})
}

func TestLayerSizes(t *testing.T) {
	dev := newDevice(t)
	n := New(dev, 2, 4, nil)
	require.NoError(t, n.AddConvolutional(Convolutional().NumFilters(3).FilterSize(3)))
	require.NoError(t, n.AddSquareLoss())
	require.NoError(t, n.SetBatchSize(5))
	defer n.Close()

	layers := n.Layers()
	require.Len(t, layers, 3)
	assert.Equal(t, 5*2*16, layers[0].ResultsSize())
	assert.Equal(t, 0, layers[0].WeightsSize())
	assert.Equal(t, 5*3*4, layers[1].ResultsSize())
	assert.Equal(t, 3*2*9, layers[1].WeightsSize())
	assert.Equal(t, layers[1].ResultsSize(), layers[2].ResultsSize())
	assert.Nil(t, layers[2].Weights())
}
