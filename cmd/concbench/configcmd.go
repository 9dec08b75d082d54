package main

import (
	"fmt"
	"os"

	"github.com/fxnlabs/concbench/fixtures"
	"github.com/urfave/cli/v2"
)

func configCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:      "config",
		Usage:     "Write a configuration file holding the defaults",
		ArgsUsage: "[PATH]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				_, err := st.stdout.Write(fixtures.ConfigTemplate)
				return err
			}
			path := c.Args().First()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(st.stdout, "Wrote %s\n", path)
			return nil
		},
	}
}
