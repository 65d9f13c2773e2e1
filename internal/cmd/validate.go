package cmd

import (
	"fmt"
	"strings"

	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newValidateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a team definition without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			// Only the team wiring is checked.
			cfg.Store.Path = ""
			cfg.NATS.URL = ""

			tm, err := config.Build(cfg, func(o *config.BuildOptions) {
				o.Logger = logging.NoOpLogger{}
			})
			if err != nil {
				return err
			}
			defer tm.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "supervisor:  %s\n", cfg.Supervisor.Name)
			fmt.Fprintf(out, "roster:      %s\n", strings.Join(tm.Coordinator.Roster(), ", "))
			fmt.Fprintf(out, "step budget: %d\n", tm.Coordinator.StepBudget())
			for _, w := range tm.Coordinator.Warnings() {
				fmt.Fprintf(out, "warning:     %s\n", w)
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
}
