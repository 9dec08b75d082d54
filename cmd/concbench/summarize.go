package main

import (
	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/report"
	"github.com/urfave/cli/v2"
)

func summarizeCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:      "summarize",
		Usage:     "Tabulate run records per environment",
		ArgsUsage: "RECORD_OR_DIR...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				_ = cli.ShowSubcommandHelp(c)
				return bencherr.Configf("need at least one record file or directory")
			}
			records, err := report.LoadRecords(c.Args().Slice())
			if err != nil {
				return err
			}
			return report.WriteTables(st.stdout, report.Summarize(records))
		},
	}
}
