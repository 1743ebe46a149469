package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/logging"
	"github.com/abdul-hamid-achik/flowspec/packages/store"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Persistent flags shared by every command
var (
	configFlag    string
	envFileFlag   string
	databaseFlag  string
	userFlag      string
	logLevelFlag  string
	logFormatFlag string
)

// Resolved by the root pre-run hook
var (
	settings *config.Config
	logger   = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "flowspec",
	Short: "UI test flows as data.",
	Long: `flowspec replays UI test flows described as data (pages, elements,
scenarios and testcases) against a live application through a browser.

Definitions live in a SQL store. Every run snapshots the selected testcases
to disk and hands them to a worker process that drives the browser.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", getEnvString("FLOWSPEC_CONFIG", ""), "Path to config file (env: FLOWSPEC_CONFIG)")
	pf.StringVar(&envFileFlag, "env-file", getEnvString("FLOWSPEC_ENV_FILE", ""), "Path to .env file loaded before anything else (env: FLOWSPEC_ENV_FILE)")
	pf.StringVar(&databaseFlag, "database", getEnvString("FLOWSPEC_DATABASE", ""), "Definition store, sqlite:// or postgres:// (env: FLOWSPEC_DATABASE)")
	pf.StringVarP(&userFlag, "user", "u", getEnvString("FLOWSPEC_USER", ""), "User whose definitions are used (env: FLOWSPEC_USER)")
	pf.StringVar(&logLevelFlag, "log-level", getEnvString("FLOWSPEC_LOG_LEVEL", ""), "Log level: debug, info, warn, error (env: FLOWSPEC_LOG_LEVEL)")
	pf.StringVar(&logFormatFlag, "log-format", getEnvString("FLOWSPEC_LOG_FORMAT", ""), "Log format: text, json (env: FLOWSPEC_LOG_FORMAT)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

// loadSettings applies the .env file, then layers config file, environment
// and flags, in increasing precedence.
func loadSettings(cmd *cobra.Command, args []string) error {
	if envFileFlag != "" {
		if _, err := config.ApplyDotEnv(envFileFlag); err != nil {
			return withExitCode(ExitConfigError, fmt.Errorf("loading env file: %w", err))
		}
	}

	fileConfig, err := config.LoadConfig(flagOrEnv(configFlag, "FLOWSPEC_CONFIG"))
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("loading config: %w", err))
	}

	settings = fileConfig.Merge(&config.Config{
		Database:  flagOrEnv(databaseFlag, "FLOWSPEC_DATABASE"),
		UserID:    flagOrEnv(userFlag, "FLOWSPEC_USER"),
		LogLevel:  flagOrEnv(logLevelFlag, "FLOWSPEC_LOG_LEVEL"),
		LogFormat: flagOrEnv(logFormatFlag, "FLOWSPEC_LOG_FORMAT"),
	})

	logger, err = logging.New(cmd.ErrOrStderr(), logging.Options{Level: settings.LogLevel, Format: settings.LogFormat})
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	slog.SetDefault(logger)
	return nil
}

// flagOrEnv falls back to the environment for flags whose env default was
// read before the .env file was applied.
func flagOrEnv(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func requireUser() (string, error) {
	if settings.UserID == "" {
		return "", withExitCode(ExitUsageError, fmt.Errorf("no user selected (use --user or FLOWSPEC_USER)"))
	}
	return settings.UserID, nil
}

// openStore opens and migrates the configured definition store.
func openStore(ctx context.Context) (*store.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := store.Open(openCtx, settings.Database)
	if err != nil {
		return nil, withExitCode(ExitStoreError, err)
	}
	if err := st.Migrate(openCtx); err != nil {
		_ = st.Close()
		return nil, withExitCode(ExitStoreError, err)
	}
	return st, nil
}
