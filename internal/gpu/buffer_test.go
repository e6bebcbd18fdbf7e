package gpu

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/metrics"
)

func newTestDevice(t *testing.T) Device {
	t.Helper()
	dev := NewCPUDevice(zap.NewNop(), 2)
	require.NoError(t, dev.Initialize())
	t.Cleanup(func() { _ = dev.Cleanup() })
	return dev
}

func TestBuffer_RoundTrip(t *testing.T) {
	dev := newTestDevice(t)

	values := []float32{0, 1, -1, 3.25, float32(math.Pi), math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(-1))}
	src := Wrap(dev, len(values), append([]float32(nil), values...))
	require.NoError(t, src.CopyToDevice())

	fresh := make([]float32, len(values))
	dst := &Buffer{device: dev, host: fresh, mem: src.Memory()}
	require.NoError(t, dst.CopyToHost())

	for i := range values {
		assert.Equal(t, math.Float32bits(values[i]), math.Float32bits(fresh[i]), "index %d", i)
	}
}

func TestBuffer_States(t *testing.T) {
	dev := newTestDevice(t)
	host := []float32{1, 2, 3, 4, 5}

	buf := Wrap(dev, 4, host)
	assert.Equal(t, 4, buf.Size())
	assert.False(t, buf.OnDevice())

	t.Run("copy to host before allocation panics", func(t *testing.T) {
		assert.Panics(t, func() { _ = buf.CopyToHost() })
		assert.Panics(t, func() { buf.Memory() })
	})

	t.Run("copy to device allocates", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.BufferTransfers.WithLabelValues(metrics.DirectionToDevice))
		require.NoError(t, buf.CopyToDevice())
		assert.True(t, buf.OnDevice())
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.BufferTransfers.WithLabelValues(metrics.DirectionToDevice)))
	})

	t.Run("host array is never reallocated", func(t *testing.T) {
		hostPtr := &buf.Host()[0]
		buf.Host()[0] = 10
		require.NoError(t, buf.CopyToDevice())
		buf.Host()[0] = 0
		require.NoError(t, buf.CopyToHost())
		assert.Same(t, hostPtr, &buf.Host()[0])
		assert.Equal(t, float32(10), host[0])
		assert.Equal(t, float32(5), host[4], "element past the wrapped size is untouched")
	})

	t.Run("create on device is idempotent", func(t *testing.T) {
		mem := buf.Memory()
		require.NoError(t, buf.CreateOnDevice())
		assert.Same(t, mem, buf.Memory())
	})

	t.Run("release", func(t *testing.T) {
		require.NoError(t, buf.Release())
		assert.False(t, buf.OnDevice())
		require.NoError(t, buf.Release())
		require.NoError(t, buf.CreateOnDevice())
		assert.True(t, buf.OnDevice())
	})
}

func TestWrap_TooSmall(t *testing.T) {
	dev := newTestDevice(t)
	assert.Panics(t, func() { Wrap(dev, 3, make([]float32, 2)) })
}

func TestReleaseAll(t *testing.T) {
	dev := newTestDevice(t)
	a := Wrap(dev, 2, make([]float32, 2))
	b := Wrap(dev, 2, make([]float32, 2))
	require.NoError(t, a.CreateOnDevice())
	require.NoError(t, b.CopyToDevice())

	require.NoError(t, ReleaseAll(a, nil, b))
	assert.False(t, a.OnDevice())
	assert.False(t, b.OnDevice())
}

func TestBuffer_AllocateOnUninitializedDevice(t *testing.T) {
	dev := NewCPUDevice(zap.NewNop(), 1)
	buf := Wrap(dev, 2, make([]float32, 2))
	err := buf.CopyToDevice()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, buf.OnDevice())
}
