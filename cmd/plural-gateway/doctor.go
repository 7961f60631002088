package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/plural-gateway/cli"
	"github.com/zhubert/plural-gateway/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the CLI tools the gateway needs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		results := cli.NewChecker().CheckAll(cmd.Context(), cli.DefaultPrerequisites(cfg.Agent.Binary))
		fmt.Fprint(cmd.OutOrStdout(), cli.FormatCheckResults(results))
		return cli.ValidateRequired(results)
	},
}
