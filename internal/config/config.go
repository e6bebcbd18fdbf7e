package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/backprop"
	"github.com/fxnlabs/convbackprop/internal/dimensions"
	"github.com/fxnlabs/convbackprop/internal/gpu"
	"github.com/fxnlabs/convbackprop/internal/gradcheck"
	"github.com/fxnlabs/convbackprop/internal/net"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Encoding  string `yaml:"encoding"`
	} `yaml:"logger"`
	Device struct {
		// Preference is auto, cpu or webgpu.
		Preference string `yaml:"preference"`
		Workers    int    `yaml:"workers"`
	} `yaml:"device"`
	Layer     LayerConfig `yaml:"layer"`
	BatchSize int         `yaml:"batchSize"`
	Compare   struct {
		Instances [2]int `yaml:"instances"`
		Seed      int64  `yaml:"seed"`
		Samples   int    `yaml:"samples"`
		// Range bounds the random data compare and perf run on.
		Range float32 `yaml:"range"`
	} `yaml:"compare"`
	Perf struct {
		// Instance is a backprop instance id, or -1 to let the dispatcher choose.
		Instance   int `yaml:"instance"`
		Iterations int `yaml:"iterations"`
	} `yaml:"perf"`
	Gradcheck GradcheckConfig `yaml:"gradcheck"`
}

type LayerConfig struct {
	InputPlanes    int    `yaml:"inputPlanes"`
	InputImageSize int    `yaml:"inputImageSize"`
	NumFilters     int    `yaml:"numFilters"`
	FilterSize     int    `yaml:"filterSize"`
	PadZeros       bool   `yaml:"padZeros"`
	Biased         bool   `yaml:"biased"`
	Activation     string `yaml:"activation"`
}

func (l LayerConfig) Dimensions() dimensions.LayerDimensions {
	return dimensions.New().
		SetInputPlanes(l.InputPlanes).
		SetInputImageSize(l.InputImageSize).
		SetNumFilters(l.NumFilters).
		SetFilterSize(l.FilterSize).
		SetPadZeros(l.PadZeros).
		SetBiased(l.Biased)
}

type GradcheckConfig struct {
	ImageSize    int     `yaml:"imageSize"`
	FilterSize   int     `yaml:"filterSize"`
	NumPlanes    int     `yaml:"numPlanes"`
	BatchSize    int     `yaml:"batchSize"`
	LearningRate float32 `yaml:"learningRate"`
	Iterations   int     `yaml:"iterations"`
	Seed         int64   `yaml:"seed"`
	InputRange   float32 `yaml:"inputRange"`
	WeightRange  float32 `yaml:"weightRange"`
	PadZeros     bool    `yaml:"padZeros"`
	Activation   string  `yaml:"activation"`
	Instance     int     `yaml:"instance"`
}

// Options converts the section into verifier options.
func (g GradcheckConfig) Options() (gradcheck.Options, error) {
	fn, err := activation.FromName(g.Activation)
	if err != nil {
		return gradcheck.Options{}, err
	}
	return gradcheck.Options{
		Seed:         g.Seed,
		ImageSize:    g.ImageSize,
		FilterSize:   g.FilterSize,
		NumPlanes:    g.NumPlanes,
		BatchSize:    g.BatchSize,
		PadZeros:     g.PadZeros,
		Activation:   fn,
		LearningRate: g.LearningRate,
		Iterations:   g.Iterations,
		InputRange:   g.InputRange,
		WeightRange:  g.WeightRange,
		Variant:      g.Instance,
	}, nil
}

// Default returns the 19x19, 32-plane, 5x5 geometry used for comparisons and
// timing, with a padded 5x5 ReLU gradient check.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Logger.Encoding = "json"
	c.Device.Preference = gpu.PreferenceAuto
	c.Layer = LayerConfig{
		InputPlanes:    32,
		InputImageSize: 19,
		NumFilters:     32,
		FilterSize:     5,
		PadZeros:       true,
		Biased:         true,
		Activation:     "relu",
	}
	c.BatchSize = 128
	c.Compare.Instances = [2]int{backprop.Cached, backprop.Scatter}
	c.Compare.Samples = 10
	c.Compare.Range = backprop.DefaultDataRange
	c.Perf.Instance = backprop.Cached
	c.Perf.Iterations = 40

	opts := gradcheck.DefaultOptions()
	c.Gradcheck = GradcheckConfig{
		ImageSize:    opts.ImageSize,
		FilterSize:   opts.FilterSize,
		NumPlanes:    opts.NumPlanes,
		BatchSize:    opts.BatchSize,
		LearningRate: opts.LearningRate,
		Iterations:   opts.Iterations,
		Seed:         opts.Seed,
		InputRange:   opts.InputRange,
		WeightRange:  opts.WeightRange,
		PadZeros:     opts.PadZeros,
		Activation:   opts.Activation.Name(),
		Instance:     net.AutoVariant,
	}
	return &c
}

// LoadConfig reads path over Default, so omitted keys keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports every setting no command could run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Logger.Encoding {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logger.encoding: unknown encoding %q", c.Logger.Encoding))
	}
	switch c.Device.Preference {
	case "", gpu.PreferenceAuto, gpu.BackendCPU, gpu.BackendWebGPU:
	default:
		errs = append(errs, fmt.Errorf("device.preference: unknown preference %q", c.Device.Preference))
	}
	if c.Device.Workers < 0 {
		errs = append(errs, fmt.Errorf("device.workers: must not be negative"))
	}
	if err := c.Layer.Dimensions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("layer: %w", err))
	}
	if _, err := activation.FromName(c.Layer.Activation); err != nil {
		errs = append(errs, fmt.Errorf("layer.activation: %w", err))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batchSize: must be positive, got %d", c.BatchSize))
	}
	for _, id := range c.Compare.Instances {
		if backprop.VariantName(id) == "" {
			errs = append(errs, fmt.Errorf("compare.instances: %w: %d", backprop.ErrUnknownVariant, id))
		}
	}
	if c.Compare.Samples < 0 {
		errs = append(errs, fmt.Errorf("compare.samples: must not be negative"))
	}
	if c.Compare.Range <= 0 {
		errs = append(errs, fmt.Errorf("compare.range: must be positive, got %g", c.Compare.Range))
	}
	if c.Perf.Instance != net.AutoVariant && backprop.VariantName(c.Perf.Instance) == "" {
		errs = append(errs, fmt.Errorf("perf.instance: %w: %d", backprop.ErrUnknownVariant, c.Perf.Instance))
	}
	if c.Perf.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("perf.iterations: must be positive, got %d", c.Perf.Iterations))
	}
	if c.Gradcheck.Instance != net.AutoVariant && backprop.VariantName(c.Gradcheck.Instance) == "" {
		errs = append(errs, fmt.Errorf("gradcheck.instance: %w: %d", backprop.ErrUnknownVariant, c.Gradcheck.Instance))
	}
	if opts, err := c.Gradcheck.Options(); err != nil {
		errs = append(errs, fmt.Errorf("gradcheck.activation: %w", err))
	} else if err := opts.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gradcheck: %w", err))
	}
	return errors.Join(errs...)
}
