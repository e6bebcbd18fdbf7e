package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/fxnlabs/convbackprop/internal/gradcheck"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify backprop numerically against the loss change of small gradient steps",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "seed", Usage: "Randomizer seed; overrides gradcheck.seed"},
			&cli.IntFlag{Name: "instance", Usage: "Instance id, -1 to let the dispatcher choose; overrides gradcheck.instance"},
		},
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(rt *runtime) error {
				opts, err := rt.cfg.Gradcheck.Options()
				if err != nil {
					return err
				}
				if c.IsSet("seed") {
					opts.Seed = c.Int64("seed")
				}
				if c.IsSet("instance") {
					opts.Variant = c.Int("instance")
				}

				report, err := gradcheck.New(rt.manager.GetDevice(), rt.log, rt.timer).Run(opts)
				if err != nil {
					return err
				}
				printReport(c, report)
				rt.timer.Dump(rt.log.Named("gradcheck"))
				return report.Err()
			})
		},
	}
}

func printReport(c *cli.Context, report *gradcheck.Report) {
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "iter\tloss before\tloss after\tchange\testimate\tsum dW\tsum dW^2\tratio/change\tratio/estimate\t")
	for _, it := range report.Iterations {
		mark := ""
		if !it.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%d\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t%.4g\t%.4g\t%s\n",
			it.Index, it.LossBefore, it.LossAfter, it.LossChange, it.EstimatedChange,
			it.SumWeightDiff, it.SumWeightDiffSquared, it.RatioToChange, it.RatioToEstimate, mark)
	}
	_ = w.Flush()
	fmt.Fprintf(c.App.Writer, "tolerance %g, worst ratio %.4g\n", report.Tolerance, report.WorstRatio())
}
