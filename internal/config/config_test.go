package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fxnlabs/convbackprop/fixtures"
	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/backprop"
	"github.com/fxnlabs/convbackprop/internal/dimensions"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "console", config.Logger.Encoding)
		assert.Equal(t, "cpu", config.Device.Preference)
		assert.Equal(t, 4, config.Device.Workers)
		assert.Equal(t, 2, config.Layer.InputPlanes)
		assert.Equal(t, "tanh", config.Layer.Activation)
		assert.False(t, config.Layer.Biased)
		assert.Equal(t, 4, config.BatchSize)
		assert.Equal(t, [2]int{backprop.Naive, backprop.Gemm}, config.Compare.Instances)
		assert.Equal(t, int64(42), config.Compare.Seed)
		assert.Equal(t, -1, config.Perf.Instance)
		assert.Equal(t, float32(0.1), config.Gradcheck.LearningRate)
		assert.Equal(t, backprop.Scatter, config.Gradcheck.Instance)
		assert.NoError(t, config.Validate())
	})

	t.Run("omitted keys keep defaults", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)

		assert.Equal(t, 1, config.Gradcheck.NumPlanes)
		assert.Equal(t, 1, config.Gradcheck.BatchSize)
		assert.Equal(t, int64(0), config.Gradcheck.Seed)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})
}

func TestTemplateMatchesDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, fixtures.ConfigTemplate, 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, Default(), config)

	var fromTemplate Config
	require.NoError(t, yaml.Unmarshal(fixtures.ConfigTemplate, &fromTemplate))
	assert.Equal(t, Default(), &fromTemplate)
}

func TestDefault(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())

	dim := config.Layer.Dimensions()
	assert.Equal(t, 19, dim.OutputImageSize())
	assert.Equal(t, 2, dim.HalfFilterSize())
	assert.Equal(t, 32*32*25, dim.FiltersSize())

	assert.Equal(t, float32(backprop.DefaultDataRange), config.Compare.Range)
	assert.Equal(t, 40, config.Perf.Iterations)

	opts, err := config.Gradcheck.Options()
	require.NoError(t, err)
	assert.Equal(t, activation.ReLU{}, opts.Activation)
	assert.Equal(t, 5, opts.ImageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{name: "encoding", mutate: func(c *Config) { c.Logger.Encoding = "xml" }, contains: "logger.encoding"},
		{name: "preference", mutate: func(c *Config) { c.Device.Preference = "cuda" }, contains: "device.preference"},
		{name: "workers", mutate: func(c *Config) { c.Device.Workers = -2 }, contains: "device.workers"},
		{name: "layer", mutate: func(c *Config) { c.Layer.NumFilters = 0 }, contains: "layer"},
		{name: "activation", mutate: func(c *Config) { c.Layer.Activation = "softsign" }, contains: "layer.activation"},
		{name: "batch size", mutate: func(c *Config) { c.BatchSize = 0 }, contains: "batchSize"},
		{name: "compare instance", mutate: func(c *Config) { c.Compare.Instances[1] = 9 }, contains: "compare.instances"},
		{name: "compare range", mutate: func(c *Config) { c.Compare.Range = 0 }, contains: "compare.range"},
		{name: "perf iterations", mutate: func(c *Config) { c.Perf.Iterations = 0 }, contains: "perf.iterations"},
		{name: "perf instance", mutate: func(c *Config) { c.Perf.Instance = 5 }, contains: "perf.instance"},
		{name: "gradcheck activation", mutate: func(c *Config) { c.Gradcheck.Activation = "softsign" }, contains: "gradcheck.activation"},
		{name: "gradcheck learning rate", mutate: func(c *Config) { c.Gradcheck.LearningRate = 0 }, contains: "learningRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	t.Run("unfit filter", func(t *testing.T) {
		config := Default()
		config.Layer.PadZeros = false
		config.Layer.FilterSize = 25
		assert.ErrorIs(t, config.Validate(), dimensions.ErrInvalid)
	})

	t.Run("unknown instance", func(t *testing.T) {
		config := Default()
		config.Compare.Instances[0] = -3
		assert.ErrorIs(t, config.Validate(), backprop.ErrUnknownVariant)
	})
}
