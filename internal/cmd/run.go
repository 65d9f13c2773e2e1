package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/sink"
	"github.com/hupe1980/teammesh/team"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
		quiet     bool
	)

	c := &cobra.Command{
		Use:   "run [request]",
		Short: "Run the team on a request",
		Long: `Run the team on a request and print the final answer.

The request is taken from the arguments, or from stdin when none are given.
Decisions and worker messages are printed as they happen unless --quiet or
--json is set.

Examples:
  teammesh run -c team.yaml "Write a short report on solar adoption"
  echo "Summarize the RFC" | teammesh run --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := readRequest(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			tm, err := config.Build(cfg)
			if err != nil {
				return err
			}
			defer tm.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			targets := sink.MultiSink{tm.Store}
			if !quiet && !asJSON {
				targets = append(targets, printer(out))
			}

			res, runErr := tm.Coordinator.Run(ctx, request, func(o *team.RunOptions) {
				o.SessionID = sessionID
				o.Sink = targets
			})
			if res == nil {
				return runErr
			}

			if asJSON {
				data, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
				if err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return runErr
			}

			if runErr != nil {
				return runErr
			}
			if res.BudgetExceeded() {
				fmt.Fprintf(cmd.ErrOrStderr(), "step budget of %d exhausted before the supervisor finished\n", tm.Coordinator.StepBudget())
			}
			if !quiet {
				fmt.Fprintf(out, "\nrun %s %s after %d turn(s)\n\n", res.RunID, res.State, res.Turns)
			}
			fmt.Fprintln(out, res.FinalAnswer)
			return nil
		},
	}

	c.Flags().StringVarP(&sessionID, "session", "s", "", "session ID recorded with the run")
	c.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	c.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the final answer")

	return c
}

func readRequest(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read request: %w", err)
	}
	request := strings.TrimSpace(string(data))
	if request == "" {
		return "", fmt.Errorf("a request is required")
	}
	return request, nil
}

// printer renders run events as they are published.
func printer(w io.Writer) core.EventSink {
	return sink.FuncSink(func(_ context.Context, ev core.Event) error {
		switch ev.Type {
		case core.EventDecision:
			if ev.Decision.IsFinish() {
				_, err := fmt.Fprintf(w, "[%d] %s: %s\n", ev.Step, ev.Author, core.Finish)
				return err
			}
			_, err := fmt.Fprintf(w, "[%d] %s -> %s: %s\n", ev.Step, ev.Author, ev.Decision.Next, ev.Decision.Instructions)
			return err
		case core.EventMessage:
			_, err := fmt.Fprintf(w, "[%d] %s says: %s\n", ev.Step, ev.Author, ev.Message.Content)
			return err
		}
		return nil
	})
}
