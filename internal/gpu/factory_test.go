package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDevice(t *testing.T) {
	t.Run("auto always yields a device", func(t *testing.T) {
		dev, err := NewDevice(zap.NewNop(), PreferenceAuto, 2)
		require.NoError(t, err)
		defer dev.Cleanup()
		assert.True(t, dev.IsAvailable())
		assert.NotEmpty(t, dev.GetDeviceInfo().Name)
	})

	t.Run("cpu", func(t *testing.T) {
		dev, err := NewDevice(zap.NewNop(), BackendCPU, 3)
		require.NoError(t, err)
		defer dev.Cleanup()
		assert.True(t, IsHost(dev))
		assert.Equal(t, 3, dev.GetDeviceInfo().ComputeUnits)
	})

	t.Run("unknown preference", func(t *testing.T) {
		_, err := NewDevice(zap.NewNop(), "tpu", 1)
		assert.Error(t, err)
	})
}

func TestManager(t *testing.T) {
	m, err := NewManager(zap.NewNop(), BackendCPU, 1)
	require.NoError(t, err)

	assert.Equal(t, BackendCPU, m.GetBackendType())
	assert.False(t, m.IsGPUAvailable())
	assert.Contains(t, m.GetDeviceInfo().Name, "CPU")

	buf := m.Wrap(2, []float32{1, 2})
	require.NoError(t, buf.CopyToDevice())
	require.NoError(t, buf.Release())

	require.NoError(t, m.Cleanup())
	assert.Nil(t, m.GetDevice())
	assert.Equal(t, "none", m.GetBackendType())
	assert.Equal(t, "No device available", m.GetDeviceInfo().Name)
}
