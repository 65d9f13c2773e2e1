package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/hupe1980/teammesh/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunsCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}

	var (
		sessionID string
		limit     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(v)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), sessionID, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSESSION\tSTATE\tTURNS\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.SessionID, r.State, r.Turns, r.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVarP(&sessionID, "session", "s", "", "only runs of this session")
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Replay the decisions and messages of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(v)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s) %s\n", run.ID, run.SessionID, run.State)
			for _, d := range run.Decisions {
				fmt.Fprintf(out, "[%d] %s -> %s: %s\n", d.Step, d.Supervisor, d.Next, d.Instructions)
			}
			for _, m := range run.Messages {
				fmt.Fprintf(out, "%s: %s\n", m.Author, m.Content)
			}
			if run.Error != "" {
				fmt.Fprintf(out, "error: %s\n", run.Error)
			}
			return nil
		},
	}

	c.AddCommand(list, show)
	return c
}

func openStore(v *viper.Viper) (*store.SQLiteStore, error) {
	path := v.GetString("store.path")
	if path == "" {
		cfg, err := loadConfig(v)
		if err != nil {
			return nil, err
		}
		path = cfg.Store.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no run ledger configured: set --store or store.path")
	}
	return store.NewSQLiteStore(path)
}
