package main

import (
	"fmt"

	"github.com/fxnlabs/concbench/internal/allreduce"
	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/device"
	"github.com/fxnlabs/concbench/internal/harness"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

func allreduceCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "allreduce",
		Usage: "Sum an array across in-process ranks and verify the result",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "ranks", Aliases: []string{"n"}, Value: 4, Usage: "Number of ranks (even, at least 4)"},
			&cli.IntFlag{Name: "p", Value: allreduce.DefaultPower, Usage: "Arrays hold 2^p elements"},
			&cli.StringFlag{Name: "space", Value: "M", Usage: "Memory space of the arrays (M, H, D or S)"},
			&cli.StringFlag{Name: "algorithm", Aliases: []string{"a"}, Value: string(allreduce.Ring), Usage: "ring or collective"},
		},
		Action: func(c *cli.Context) error {
			opts := allreduce.Options{
				Ranks:     c.Int("ranks"),
				Power:     c.Int("p"),
				Algorithm: allreduce.Algorithm(c.String("algorithm")),
			}
			letters := c.String("space")
			space, ok := device.Space(0), false
			if len(letters) == 1 {
				space, ok = device.ParseSpace(letters[0])
			}
			if !ok {
				_ = cli.ShowSubcommandHelp(c)
				return bencherr.Configf("unknown memory space %q", letters)
			}
			opts.Space = space
			if err := opts.Validate(); err != nil {
				_ = cli.ShowSubcommandHelp(c)
				return err
			}

			var dev device.Device
			app := fx.New(
				fx.Supply(st.cfg, st.logger),
				fx.Provide(harness.NewDevice),
				fx.Populate(&dev),
				fx.NopLogger,
			)
			if err := app.Start(c.Context); err != nil {
				return err
			}
			defer app.Stop(c.Context)

			res, err := allreduce.Run(c.Context, dev, opts, st.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(st.stdout, "All-reduce (%s) of %d elements in %s memory across %d ranks\n",
				res.Algorithm, res.Elements, res.Space, res.Ranks)
			fmt.Fprintf(st.stdout, "Every element equals %g\n", res.Expected)
			fmt.Fprintf(st.stdout, "Max Time Across Ranks: %dus\n", res.MaxElapsed.Microseconds())
			return nil
		},
	}
}
