package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/convbackprop/fixtures"
)

const testConfig = `
logger:
  verbosity: error
device:
  preference: cpu
  workers: 2
layer:
  inputPlanes: 2
  inputImageSize: 3
  numFilters: 2
  filterSize: 3
  padZeros: true
  activation: relu
batchSize: 2
compare:
  instances: [0, 1]
  samples: 4
perf:
  instance: -1
  iterations: 2
gradcheck:
  imageSize: 1
  filterSize: 1
  learningRate: 0.1
  iterations: 5
  inputRange: 0.5
  weightRange: 0.5
  padZeros: false
  activation: tanh
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"convbackprop", "--config", configPath}, args...))
	return out.String(), err
}

func TestCompareCommand(t *testing.T) {
	t.Run("configured layer", func(t *testing.T) {
		out, err := run(t, "compare")
		require.NoError(t, err)
		assert.Contains(t, out, "results[0]=")
		assert.Contains(t, out, "SAME")
		assert.NotContains(t, out, "DIFF")
	})

	t.Run("fixture", func(t *testing.T) {
		out, err := run(t, "compare", "--fixture", "valid_5c3", "--instances", "0", "--instances", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "results[3]=")
	})

	t.Run("different summation orders agree", func(t *testing.T) {
		out, err := run(t, "compare", "--fixture", "kgsgo_32c5mini", "--instances", "2", "--instances", "3")
		require.NoError(t, err)
		assert.NotContains(t, out, "DIFF")
	})

	t.Run("unknown fixture", func(t *testing.T) {
		_, err := run(t, "compare", "--fixture", "nope")
		assert.ErrorContains(t, err, "unknown fixture")
	})

	t.Run("one instance", func(t *testing.T) {
		_, err := run(t, "compare", "--instances", "2")
		assert.ErrorContains(t, err, "exactly two instances")
	})
}

func TestPerfCommand(t *testing.T) {
	_, err := run(t, "perf", "--fixture", "kgsgo_32c5mini2")
	require.NoError(t, err)

	_, err = run(t, "perf", "--instance", "3", "--iterations", "1")
	require.NoError(t, err)

	_, err = run(t, "perf", "--iterations", "0")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "ratio/change")
	assert.Contains(t, out, "tolerance 0.01")
	assert.NotContains(t, out, "FAIL")

	_, err = run(t, "check", "--instance", "7")
	assert.Error(t, err)
}

func TestDeviceCommand(t *testing.T) {
	out, err := run(t, "device")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:            cpu")
	assert.Contains(t, out, "Kernel for config:  cached")
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "init", "--output", path)
	require.NoError(t, err)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, written)

	_, err = run(t, "init", "--output", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init", "--output", path, "--force")
	assert.NoError(t, err)
}

func TestInvalidConfig(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run([]string{"convbackprop", "--config", "../../fixtures/tests/invalid_config/config.yaml", "device"})
	assert.Error(t, err)

	err = newApp().Run([]string{"convbackprop", "--config", "missing.yaml", "device"})
	assert.Error(t, err)
}
