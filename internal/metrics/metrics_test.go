package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestKernelMetrics(t *testing.T) {
	t.Run("KernelDispatches", func(t *testing.T) {
		before := testutil.ToFloat64(KernelDispatches.WithLabelValues("naive", "cpu"))
		KernelDispatches.WithLabelValues("naive", "cpu").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(KernelDispatches.WithLabelValues("naive", "cpu")))
	})

	t.Run("KernelDuration", func(t *testing.T) {
		assert.NotPanics(t, func() {
			KernelDuration.WithLabelValues("scatter").Observe(1.5)
		})
	})

	t.Run("KernelGFLOPS", func(t *testing.T) {
		KernelGFLOPS.WithLabelValues("cached").Set(12.5)
		assert.Equal(t, 12.5, testutil.ToFloat64(KernelGFLOPS.WithLabelValues("cached")))
	})

	t.Run("DeviceMemoryUsedBytes", func(t *testing.T) {
		DeviceMemoryUsedBytes.Set(1073741824) // 1GB
		assert.Equal(t, float64(1073741824), testutil.ToFloat64(DeviceMemoryUsedBytes))
	})
}

func TestBufferMetrics(t *testing.T) {
	before := testutil.ToFloat64(BufferTransfers.WithLabelValues(DirectionToHost))
	BufferTransfers.WithLabelValues(DirectionToHost).Inc()
	BufferTransferBytes.WithLabelValues(DirectionToHost).Add(64)
	assert.Equal(t, before+1, testutil.ToFloat64(BufferTransfers.WithLabelValues(DirectionToHost)))
}

func TestTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	timer, err := NewTimer(reg)
	require.NoError(t, err)

	clock := time.Unix(0, 0)
	timer.now = func() time.Time { return clock }
	timer.Reset()

	clock = clock.Add(10 * time.Millisecond)
	timer.TimeCheck("after init")
	clock = clock.Add(30 * time.Millisecond)
	timer.TimeCheck("after backprop")
	clock = clock.Add(20 * time.Millisecond)
	timer.TimeCheck("after backprop")

	cps := timer.Checkpoints()
	require.Len(t, cps, 2)
	assert.Equal(t, "after init", cps[0].Name)
	assert.Equal(t, 10*time.Millisecond, cps[0].Elapsed)
	assert.Equal(t, 1, cps[0].Count)
	assert.Equal(t, "after backprop", cps[1].Name)
	assert.Equal(t, 50*time.Millisecond, cps[1].Elapsed)
	assert.Equal(t, 2, cps[1].Count)

	count, err := testutil.GatherAndCount(reg, "timer_checkpoint_duration_ms")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Run("dump", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		timer.Dump(zap.New(core))
		assert.Equal(t, 2, logs.FilterMessage("timer checkpoint").Len())
		assert.Equal(t, 1, logs.FilterMessage("timer total").Len())
	})

	t.Run("shared registry", func(t *testing.T) {
		other, err := NewTimer(reg)
		require.NoError(t, err)
		assert.Empty(t, other.Checkpoints())
	})

	t.Run("private registry", func(t *testing.T) {
		_, err := NewTimer(nil)
		require.NoError(t, err)
	})
}

func BenchmarkMetricsObservation(b *testing.B) {
	b.Run("ObserveDuration", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			KernelDuration.WithLabelValues("naive").Observe(float64(i % 1000))
		}
	})

	b.Run("TimeCheck", func(b *testing.B) {
		timer, err := NewTimer(nil)
		require.NoError(b, err)
		for i := 0; i < b.N; i++ {
			timer.TimeCheck("loop")
		}
	})
}
