package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v2"

	"github.com/fxnlabs/convbackprop/internal/backprop"
)

func deviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "device",
		Usage: "Show the selected compute device",
		Flags: []cli.Flag{fixtureFlag},
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(rt *runtime) error {
				out := c.App.Writer
				fmt.Fprintln(out, figure.NewFigure("convbackprop", "", true).String())

				info := rt.manager.GetDeviceInfo()
				fmt.Fprintf(out, "Backend:            %s\n", info.Backend)
				fmt.Fprintf(out, "Name:               %s\n", info.Name)
				fmt.Fprintf(out, "Driver:             %s\n", info.DriverVersion)
				fmt.Fprintf(out, "Compute capability: %s\n", info.ComputeCapability)
				fmt.Fprintf(out, "Compute units:      %d\n", info.ComputeUnits)
				fmt.Fprintf(out, "Max work-group:     %d\n", info.MaxWorkgroupSize)
				fmt.Fprintf(out, "Work-group memory:  %d bytes\n", info.WorkgroupMemory)
				fmt.Fprintf(out, "Memory:             %d / %d MB available\n", info.AvailableMemory>>20, info.TotalMemory>>20)

				l, err := selectLayer(c, rt)
				if err != nil {
					return err
				}
				id := backprop.ChooseVariant(info, l.dim)
				fmt.Fprintf(out, "Kernel for %s:  %s (%s)\n", l.name, backprop.VariantName(id), l.dim)
				return nil
			})
		},
	}
}
