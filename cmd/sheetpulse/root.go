package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sheetpulse/pkg/config"
	"sheetpulse/pkg/logx"
)

var (
	flagConfig      string
	flagUser        string
	flagDebug       bool
	flagMetricsAddr string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetpulse",
		Short:         "Tag-driven spreadsheet refresh from Jira",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logx.SetDebug(flagDebug || viper.GetBool("debug"))
		},
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default sheetpulse.yaml if present)")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "identity owning the run directory (default OS user)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	viper.SetEnvPrefix("SHEETPULSE")
	viper.AutomaticEnv()
	for _, name := range []string{"config", "user", "debug", "metrics-addr"} {
		_ = viper.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(newRefreshCmd(), newLoginCmd(), newRunsCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sheetpulse %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// configPath resolves the config file: flag, env, then the conventional
// name in the working directory when it exists.
func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	if _, err := os.Stat("sheetpulse.yaml"); err == nil {
		return "sheetpulse.yaml"
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath())
}

func metricsAddr() string {
	if flagMetricsAddr != "" {
		return flagMetricsAddr
	}
	return viper.GetString("metrics-addr")
}

func runUser() string {
	if u := viper.GetString("user"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}
