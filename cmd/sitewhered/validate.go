package main

import (
	"fmt"

	"github.com/micro-sensor/sitewhere/cmd/sitewhered/ui"
	"github.com/micro-sensor/sitewhere/config"

	"github.com/spf13/cobra"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Check the instance configuration file and print its effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.SuccessMsg("Configuration for %s is valid.", ui.Accent(cfg.Instance.ID)))
			fmt.Fprint(out, ui.KeyValues("  ",
				ui.KV("name", cfg.Instance.Name),
				ui.KV("data root", cfg.DataRoot),
				ui.KV("store", cfg.StorePath()),
				ui.KV("scripts", cfg.ScriptsDir()),
				ui.KV("user server", cfg.Servers.UserManagement.Address),
				ui.KV("tenant server", cfg.Servers.TenantManagement.Address),
				ui.KV("step timeout", cfg.Lifecycle.StepTimeout.String()),
				ui.KV("stop timeout", cfg.Lifecycle.StopTimeout.String()),
			))
			if !cfg.Metrics.Enabled {
				fmt.Fprintln(out, "  "+ui.Warn("metrics exporter disabled"))
			}
			return nil
		},
	}
}
