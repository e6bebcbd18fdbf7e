package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/backprop"
	"github.com/fxnlabs/convbackprop/internal/randomizer"
)

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Run two backprop instances on the same random data and compare the results",
		Flags: []cli.Flag{
			fixtureFlag,
			&cli.IntSliceFlag{
				Name:  "instances",
				Usage: "The two instance ids to compare, overriding compare.instances",
			},
		},
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(rt *runtime) error {
				l, err := selectLayer(c, rt)
				if err != nil {
					return err
				}
				instances := rt.cfg.Compare.Instances
				if c.IsSet("instances") {
					ids := c.IntSlice("instances")
					if len(ids) != 2 {
						return fmt.Errorf("compare needs exactly two instances, got %d", len(ids))
					}
					instances = [2]int{ids[0], ids[1]}
				}
				return compare(c, rt, l, instances)
			})
		},
	}
}

func compare(c *cli.Context, rt *runtime, l layer, instances [2]int) error {
	log := rt.log.Named("compare")
	device := rt.manager.GetDevice()

	r := randomizer.New(rt.cfg.Compare.Seed)
	input := make([]float32, l.dim.InputSizeFor(l.batchSize))
	errs := make([]float32, l.dim.OutputSizeFor(l.batchSize))
	weights := make([]float32, l.dim.FiltersSize())
	r.Symmetric(input, rt.cfg.Compare.Range)
	r.Symmetric(errs, rt.cfg.Compare.Range)
	r.Symmetric(weights, rt.cfg.Compare.Range)

	var results [2][]float32
	for i, id := range instances {
		v, err := backprop.InstanceSpecific(id, device, l.dim, l.fn, rt.log)
		if err != nil {
			return err
		}
		results[i], err = backprop.Compute(v, device, l.dim, l.batchSize, input, errs, weights)
		if err != nil {
			return err
		}
	}

	for _, line := range backprop.SampleLines(results[0], results[1], rt.cfg.Compare.Samples, backprop.DefaultTolerance) {
		fmt.Fprintln(c.App.Writer, line)
	}

	mismatches, err := backprop.Compare(results[0], results[1], backprop.DefaultTolerance)
	if err != nil {
		return err
	}
	a, b := backprop.VariantName(instances[0]), backprop.VariantName(instances[1])
	if len(mismatches) > 0 {
		for _, m := range mismatches[:min(len(mismatches), 10)] {
			log.Warn("results differ", zap.Stringer("mismatch", m))
		}
		return fmt.Errorf("%d of %d results differ between %s and %s", len(mismatches), len(results[0]), a, b)
	}
	log.Info("results match",
		zap.String("layer", l.name),
		zap.Stringer("dimensions", l.dim),
		zap.Int("batchSize", l.batchSize),
		zap.String("a", a),
		zap.String("b", b),
		zap.Int("values", len(results[0])),
	)
	return nil
}
