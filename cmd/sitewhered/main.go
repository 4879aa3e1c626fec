package main

import (
	"fmt"
	"os"

	"github.com/micro-sensor/sitewhere/cmd/sitewhered/ui"
	"github.com/micro-sensor/sitewhere/config"
	"github.com/micro-sensor/sitewhere/internal/buildinfo"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%s", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		logFormat  string
		progress   bool
	)

	cmd := &cobra.Command{
		Use:           "sitewhered",
		Short:         "Instance management service",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return configureLogging(configPath, debug, logFormat)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, configPath, progress)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the instance configuration file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides the config file)")
	cmd.Flags().BoolVar(&progress, "progress", false, "Render lifecycle progress on stderr")

	cmd.AddCommand(newValidateCmd(&configPath))
	cmd.AddCommand(newPlanCmd(&configPath))
	return cmd
}
