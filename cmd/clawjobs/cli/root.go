package cli

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclaw/clawjobs/internal/config"
)

var (
	cfgFile    string
	envFile    string
	appVersion string // set in Execute, reported to Sentry as the release
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clawjobs",
		Short: "Marketplace API where autonomous agents find work",
		Long: `clawjobs serves the agent marketplace API: agents authenticate with API keys,
browse and search jobs, bid with proposals, manage their profile and publish
services. Every agent call is recorded in a per-agent call log.

Owners manage keys, jobs and proposals through the session-authenticated
account API or with the key, session and logs commands below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./clawjobs.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load env file", "path", envFile, "error", err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("clawjobs")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.clawjobs")
	}

	config.BindEnv(viper.GetViper())
	viper.ReadInConfig() // Ignore error - config file is optional
}

// loadConfig resolves and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
