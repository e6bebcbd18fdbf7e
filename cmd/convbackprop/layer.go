package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/backprop"
	"github.com/fxnlabs/convbackprop/internal/dimensions"
	"github.com/fxnlabs/convbackprop/internal/gpu"
	"github.com/fxnlabs/convbackprop/internal/net"
)

var fixtureFlag = &cli.StringFlag{
	Name:  "fixture",
	Usage: "Use a named geometry (kgsgo_32c5, kgsgo_32c5mini, kgsgo_32c5mini2, valid_5c3) instead of the configured layer",
}

// layer is the geometry a command runs on.
type layer struct {
	name      string
	dim       dimensions.LayerDimensions
	batchSize int
	fn        activation.Function
}

func selectLayer(c *cli.Context, rt *runtime) (layer, error) {
	if name := c.String(fixtureFlag.Name); name != "" {
		f, ok := backprop.FixtureByName(name)
		if !ok {
			return layer{}, fmt.Errorf("unknown fixture %q", name)
		}
		return layer{name: f.Name, dim: f.Dim, batchSize: f.BatchSize, fn: f.Activation}, nil
	}
	fn, err := activation.FromName(rt.cfg.Layer.Activation)
	if err != nil {
		return layer{}, err
	}
	return layer{name: "config", dim: rt.cfg.Layer.Dimensions(), batchSize: rt.cfg.BatchSize, fn: fn}, nil
}

// instance builds the kernel for id, or lets the dispatcher choose when id is
// net.AutoVariant.
func instance(id int, device gpu.Device, l layer, log *zap.Logger) (backprop.BackpropErrors, error) {
	if id == net.AutoVariant {
		return backprop.InstanceForDimensions(device, l.dim, l.fn, log)
	}
	return backprop.InstanceSpecific(id, device, l.dim, l.fn, log)
}
