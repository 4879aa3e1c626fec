package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/micro-sensor/sitewhere/cmd/sitewhered/ui"
	"github.com/micro-sensor/sitewhere/config"
	"github.com/micro-sensor/sitewhere/internal/daemon"
	"github.com/micro-sensor/sitewhere/internal/instance"
	"github.com/micro-sensor/sitewhere/internal/logging"
	"github.com/micro-sensor/sitewhere/internal/monitor"
	"github.com/micro-sensor/sitewhere/pkg/sdk/progress"

	"github.com/spf13/cobra"
)

// configureLogging applies the config file's log settings with flag
// overrides. An unreadable config is reported later by the command itself.
func configureLogging(configPath string, debug bool, format string) error {
	level := logging.LevelInfo
	if cfg, err := config.Load(configPath); err == nil {
		level = cfg.Log.Level
		if format == "" {
			format = cfg.Log.Format
		}
	}
	if debug {
		level = logging.LevelDebug
	}
	return logging.Configure(level, format)
}

func runDaemon(cmd *cobra.Command, configPath string, showProgress bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []daemon.Option{
		daemon.WithReady(func(ms *instance.Microservice) {
			slog.Info("Instance ready.", "instance", cfg.Instance.ID, "name", ms.Name())
		}),
	}
	if showProgress {
		checklist := ui.NewChecklist(cmd.ErrOrStderr())
		opts = append(opts, daemon.WithMonitor(monitor.NewChecklist(progress.New(checklist.OnSnapshot))))
	}

	if err := daemon.Run(ctx, cfg, opts...); err != nil {
		return fmt.Errorf("run instance %s: %w", cfg.Instance.ID, err)
	}
	return nil
}
