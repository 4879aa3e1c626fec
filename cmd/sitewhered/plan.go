package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/micro-sensor/sitewhere/cmd/sitewhered/ui"
	"github.com/micro-sensor/sitewhere/config"
	"github.com/micro-sensor/sitewhere/internal/instance"
	"github.com/micro-sensor/sitewhere/internal/lifecycle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newPlanCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the initialize, start, and stop steps in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ms, err := instance.Build(cfg, instance.WithGatherer(prometheus.NewRegistry()))
			if err != nil {
				return err
			}

			initialize, start, stop := ms.Plan()
			out := cmd.OutOrStdout()
			for _, c := range []*lifecycle.Composite{initialize, start, stop} {
				printComposite(out, c)
			}
			return nil
		},
	}
}

func printComposite(w io.Writer, c *lifecycle.Composite) {
	rows := make([][]string, 0, len(c.Steps()))
	for i, step := range c.Steps() {
		required := ui.Muted("optional")
		if step.Required {
			required = "required"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), step.Name(), required})
	}
	fmt.Fprintln(w, ui.Accent(c.Name()))
	fmt.Fprintln(w, ui.Table([]string{"#", "STEP", ""}, rows))
}
