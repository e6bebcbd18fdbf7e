// Package gradcheck verifies the backprop path numerically. A two-layer network
// takes one gradient-descent step per iteration; for a small learning rate the
// loss must drop by about |ΔW|²/lr, where ΔW is the weight change of the step.
package gradcheck

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/gpu"
	"github.com/fxnlabs/convbackprop/internal/metrics"
	"github.com/fxnlabs/convbackprop/internal/net"
	"github.com/fxnlabs/convbackprop/internal/randomizer"
)

// Options describes the fixture network and how long to train it.
type Options struct {
	Seed         int64
	ImageSize    int
	FilterSize   int
	NumPlanes    int
	BatchSize    int
	PadZeros     bool
	Activation   activation.Function
	LearningRate float32
	Iterations   int
	// InputRange bounds the input and expected values, WeightRange the weights.
	InputRange  float32
	WeightRange float32
	// Variant is the backprop instance id, or net.AutoVariant.
	Variant int
}

// DefaultOptions checks a padded 5x5 image through two 3x3 ReLU layers.
func DefaultOptions() Options {
	return Options{
		ImageSize:    5,
		FilterSize:   3,
		NumPlanes:    1,
		BatchSize:    1,
		PadZeros:     true,
		Activation:   activation.ReLU{},
		LearningRate: 1e-4,
		Iterations:   20,
		InputRange:   2,
		WeightRange:  2,
		Variant:      net.AutoVariant,
	}
}

// Validate rejects options no network can be built from.
func (o Options) Validate() error {
	var errs []error
	if o.ImageSize <= 0 {
		errs = append(errs, fmt.Errorf("imageSize must be positive, got %d", o.ImageSize))
	}
	if o.FilterSize <= 0 {
		errs = append(errs, fmt.Errorf("filterSize must be positive, got %d", o.FilterSize))
	}
	if o.NumPlanes <= 0 {
		errs = append(errs, fmt.Errorf("numPlanes must be positive, got %d", o.NumPlanes))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batchSize must be positive, got %d", o.BatchSize))
	}
	if o.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learningRate must be positive, got %g", o.LearningRate))
	}
	if o.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("iterations must be positive, got %d", o.Iterations))
	}
	if o.InputRange <= 0 || o.WeightRange <= 0 {
		errs = append(errs, fmt.Errorf("inputRange and weightRange must be positive"))
	}
	return errors.Join(errs...)
}

// Iteration is what one gradient step measured.
type Iteration struct {
	Index      int
	LossBefore float64
	LossAfter  float64
	// LossChange is LossBefore - LossAfter.
	LossChange float64
	// EstimatedChange is |ΔW|² / learning rate.
	EstimatedChange      float64
	SumWeightDiff        float64
	SumWeightDiffSquared float64
	// RatioToChange and RatioToEstimate are |EstimatedChange - LossChange|
	// relative to each side. Both are zero when both sides are zero, and +Inf
	// when only one is.
	RatioToChange   float64
	RatioToEstimate float64
	Passed          bool
}

// Report collects every iteration. A failed iteration is a finding, not an error.
type Report struct {
	Options    Options
	Tolerance  float64
	Iterations []Iteration
}

// Passed reports whether every iteration stayed within tolerance.
func (r *Report) Passed() bool {
	return len(r.Failed()) == 0
}

// Failed returns the indices of iterations outside tolerance.
func (r *Report) Failed() []int {
	var failed []int
	for _, it := range r.Iterations {
		if !it.Passed {
			failed = append(failed, it.Index)
		}
	}
	return failed
}

// WorstRatio is the largest ratio seen over all iterations.
func (r *Report) WorstRatio() float64 {
	var worst float64
	for _, it := range r.Iterations {
		worst = max(worst, it.RatioToChange, it.RatioToEstimate)
	}
	return worst
}

// Err returns a *DivergenceError when any iteration failed, nil otherwise.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &DivergenceError{Iterations: failed, Tolerance: r.Tolerance, WorstRatio: r.WorstRatio()}
}

// DivergenceError reports iterations whose loss change disagreed with the estimate.
type DivergenceError struct {
	Iterations []int
	Tolerance  float64
	WorstRatio float64
}

func (e *DivergenceError) Error() string {
	idx := make([]string, len(e.Iterations))
	for i, it := range e.Iterations {
		idx[i] = fmt.Sprint(it)
	}
	return fmt.Sprintf("loss change diverged from estimate in iterations [%s]: worst ratio %g, tolerance %g",
		strings.Join(idx, " "), e.WorstRatio, e.Tolerance)
}

// Verifier runs gradient checks on one device.
type Verifier struct {
	device gpu.Device
	logger *zap.Logger
	timer  *metrics.Timer
}

// New creates a verifier. timer may be nil.
func New(device gpu.Device, logger *zap.Logger, timer *metrics.Timer) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{device: device, logger: logger.Named("gradcheck"), timer: timer}
}

// Run builds the fixture network for opts and trains it for opts.Iterations steps.
func (v *Verifier) Run(opts Options) (report *Report, err error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gradient check options: %w", err)
	}
	if opts.Activation == nil {
		opts.Activation = activation.Linear{}
	}

	n := net.New(v.device, opts.NumPlanes, opts.ImageSize, v.logger)
	defer func() {
		if closeErr := n.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to release network: %w", closeErr)
		}
	}()
	layer := net.Convolutional().
		FilterSize(opts.FilterSize).
		PadZeros(opts.PadZeros).
		Fn(opts.Activation).
		Variant(opts.Variant)
	if err := n.AddConvolutional(layer); err != nil {
		return nil, err
	}
	if err := n.AddConvolutional(layer); err != nil {
		return nil, err
	}
	if err := n.AddSquareLoss(); err != nil {
		return nil, err
	}
	if err := n.SetBatchSize(opts.BatchSize); err != nil {
		return nil, err
	}

	convs := n.ConvolutionalLayers()
	r := randomizer.New(opts.Seed)
	input := make([]float32, n.Layers()[0].ResultsSize())
	expected := make([]float32, convs[1].ResultsSize())
	r.Symmetric(input, opts.InputRange)
	r.Symmetric(expected, opts.InputRange)
	for _, l := range convs {
		r.Symmetric(l.Weights(), opts.WeightRange)
	}

	report = &Report{
		Options:   opts,
		Tolerance: 0.01 * float64(opts.ImageSize*opts.ImageSize),
	}
	v.logger.Info("gradient check started",
		zap.Int64("seed", opts.Seed),
		zap.Int("imageSize", opts.ImageSize),
		zap.Int("filterSize", opts.FilterSize),
		zap.String("activation", opts.Activation.Name()),
		zap.String("kernel", convs[1].Kernel().Name()),
		zap.Float64("tolerance", report.Tolerance),
	)

	before := make([][]float32, len(convs))
	for i := 0; i < opts.Iterations; i++ {
		for j, l := range convs {
			before[j] = append(before[j][:0], l.Weights()...)
		}

		if err := n.Propagate(input); err != nil {
			return nil, err
		}
		lossBefore, err := n.CalcLoss(expected)
		if err != nil {
			return nil, err
		}
		if err := n.BackProp(opts.LearningRate, expected); err != nil {
			return nil, err
		}
		if err := n.Propagate(input); err != nil {
			return nil, err
		}
		lossAfter, err := n.CalcLoss(expected)
		if err != nil {
			return nil, err
		}

		var diffs []float32
		for j, l := range convs {
			for k, w := range l.Weights() {
				diffs = append(diffs, w-before[j][k])
			}
		}
		it := measure(i, lossBefore, lossAfter, gpu.Float32ToFloat64(diffs), opts.LearningRate, report.Tolerance)
		report.Iterations = append(report.Iterations, it)
		v.record(it)
	}

	metrics.GradientCheckRatio.Set(report.WorstRatio())
	v.logger.Info("gradient check finished",
		zap.Bool("passed", report.Passed()),
		zap.Float64("worstRatio", report.WorstRatio()),
		zap.Ints("failed", report.Failed()),
	)
	return report, nil
}

func measure(index int, lossBefore, lossAfter float64, diffs []float64, learningRate float32, tolerance float64) Iteration {
	sumSq := floats.Dot(diffs, diffs)
	it := Iteration{
		Index:                index,
		LossBefore:           lossBefore,
		LossAfter:            lossAfter,
		LossChange:           lossBefore - lossAfter,
		EstimatedChange:      sumSq / float64(learningRate),
		SumWeightDiff:        floats.Sum(diffs),
		SumWeightDiffSquared: sumSq,
	}
	it.RatioToChange = relativeDiff(it.EstimatedChange, it.LossChange, it.LossChange)
	it.RatioToEstimate = relativeDiff(it.EstimatedChange, it.LossChange, it.EstimatedChange)
	it.Passed = it.RatioToChange < tolerance && it.RatioToEstimate < tolerance
	return it
}

// relativeDiff is |a-b| / |base|, 0 when both sides are zero.
func relativeDiff(a, b, base float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	if base == 0 {
		return math.Inf(1)
	}
	return math.Abs(a-b) / math.Abs(base)
}

func (v *Verifier) record(it Iteration) {
	outcome := "pass"
	if !it.Passed {
		outcome = "fail"
	}
	metrics.GradientCheckIterations.WithLabelValues(outcome).Inc()
	if v.timer != nil {
		v.timer.TimeCheck("gradcheck iteration")
	}
	v.logger.Debug("gradient check iteration",
		zap.Int("iteration", it.Index),
		zap.Float64("lossBefore", it.LossBefore),
		zap.Float64("lossAfter", it.LossAfter),
		zap.Float64("lossChange", it.LossChange),
		zap.Float64("estimatedChange", it.EstimatedChange),
		zap.Float64("sumWeightDiff", it.SumWeightDiff),
		zap.Float64("sumWeightDiffSquared", it.SumWeightDiffSquared),
		zap.Float64("ratioToChange", it.RatioToChange),
		zap.Float64("ratioToEstimate", it.RatioToEstimate),
		zap.Bool("passed", it.Passed),
	)
}
