// Package cmd implements the teammesh command line interface.
package cmd

import (
	"strings"

	"github.com/hupe1980/teammesh/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the teammesh command tree. Every call returns an
// independent tree with its own settings.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "teammesh",
		Short: "Run supervisor/worker agent teams",
		Long: `teammesh runs a team of language model workers coordinated by a
supervisor. The supervisor decides, turn by turn, which worker acts next on
the shared transcript or whether the task is finished.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			initConfig(v)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "team definition file (default is "+config.DefaultPath+")")
	root.PersistentFlags().String("store", "", "SQLite run ledger path (default keeps runs in memory)")
	root.PersistentFlags().String("nats-url", "", "publish run events to this NATS server")
	root.PersistentFlags().String("log-level", "", "log level (debug/info/warn/error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("store.path", root.PersistentFlags().Lookup("store"))
	_ = v.BindPFlag("nats.url", root.PersistentFlags().Lookup("nats-url"))
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newRunCommand(v),
		newValidateCommand(v),
		newRunsCommand(v),
	)

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func initConfig(v *viper.Viper) {
	v.SetEnvPrefix("TEAMMESH")
	// TEAMMESH_STORE_PATH for store.path
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig reads the team definition and applies flag overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}

	if p := v.GetString("store.path"); p != "" {
		cfg.Store.Path = p
	}
	if u := v.GetString("nats.url"); u != "" {
		cfg.NATS.URL = u
	}
	if l := v.GetString("log.level"); l != "" {
		cfg.Log.Level = l
	}

	return cfg, nil
}
