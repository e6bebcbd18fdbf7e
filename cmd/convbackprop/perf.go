package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/backprop"
	"github.com/fxnlabs/convbackprop/internal/gpu"
	"github.com/fxnlabs/convbackprop/internal/randomizer"
)

func perfCommand() *cli.Command {
	return &cli.Command{
		Name:  "perf",
		Usage: "Time repeated dispatches of one backprop instance",
		Flags: []cli.Flag{
			fixtureFlag,
			&cli.IntFlag{Name: "instance", Usage: "Instance id, -1 to let the dispatcher choose; overrides perf.instance"},
			&cli.IntFlag{Name: "iterations", Usage: "Dispatch count; overrides perf.iterations"},
		},
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(rt *runtime) error {
				l, err := selectLayer(c, rt)
				if err != nil {
					return err
				}
				id, iterations := rt.cfg.Perf.Instance, rt.cfg.Perf.Iterations
				if c.IsSet("instance") {
					id = c.Int("instance")
				}
				if c.IsSet("iterations") {
					iterations = c.Int("iterations")
				}
				if iterations <= 0 {
					return fmt.Errorf("iterations must be positive, got %d", iterations)
				}
				return perf(rt, l, id, iterations)
			})
		},
	}
}

func perf(rt *runtime, l layer, id, iterations int) (err error) {
	log := rt.log.Named("perf")
	v, err := instance(id, rt.manager.GetDevice(), l, rt.log)
	if err != nil {
		return err
	}

	r := randomizer.New(0)
	errs := make([]float32, l.dim.OutputSizeFor(l.batchSize))
	weights := make([]float32, l.dim.FiltersSize())
	r.Symmetric(errs, rt.cfg.Compare.Range)
	r.Symmetric(weights, rt.cfg.Compare.Range)

	inputBuf := rt.manager.Wrap(l.dim.InputSizeFor(l.batchSize), make([]float32, l.dim.InputSizeFor(l.batchSize)))
	errorsBuf := rt.manager.Wrap(len(errs), errs)
	weightsBuf := rt.manager.Wrap(len(weights), weights)
	outBuf := rt.manager.Wrap(l.dim.InputSizeFor(l.batchSize), make([]float32, l.dim.InputSizeFor(l.batchSize)))
	defer func() {
		if releaseErr := gpu.ReleaseAll(inputBuf, errorsBuf, weightsBuf, outBuf); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	rt.timer.Reset()
	for _, buf := range []*gpu.Buffer{inputBuf, errorsBuf, weightsBuf} {
		if err := buf.CopyToDevice(); err != nil {
			return err
		}
	}
	if err := outBuf.CreateOnDevice(); err != nil {
		return err
	}
	rt.timer.TimeCheck("after init")

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := v.BackpropErrors(l.batchSize, inputBuf, errorsBuf, weightsBuf, outBuf); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	rt.timer.TimeCheck("after backprop")

	if err := outBuf.CopyToHost(); err != nil {
		return err
	}
	rt.timer.TimeCheck("after copy to host")
	rt.timer.Dump(log)

	flops := backprop.FLOPs(l.dim, l.batchSize) * float64(iterations)
	log.Info("perf finished",
		zap.String("layer", l.name),
		zap.Stringer("dimensions", l.dim),
		zap.String("instance", v.Name()),
		zap.Int("iterations", iterations),
		zap.Duration("elapsed", elapsed),
		zap.Duration("perDispatch", elapsed/time.Duration(iterations)),
		zap.Float64("gflops", flops/elapsed.Seconds()/1e9),
	)
	return nil
}
