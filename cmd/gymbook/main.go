package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaneisley/gymbook/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// exitError carries a process exit code out of a command
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// cliOptions holds flag values for one command tree
type cliOptions struct {
	flagConfig  config.Config
	configFile  string
	envFile     string
	debugConfig bool
	quiet       bool
}

// configFlags maps flag names to config keys
var configFlags = map[string]string{
	"email":           "email",
	"session-id":      "session_id",
	"site-id":         "site_id",
	"target-time":     "target_time",
	"strategy":        "strategy",
	"attempts":        "attempts",
	"delay":           "delay",
	"backoff":         "backoff",
	"multiplier":      "multiplier",
	"max-delay":       "max_delay",
	"book-attempts":   "book_attempts",
	"book-delay":      "book_delay",
	"book-ahead-days": "book_ahead_days",
	"log-level":       "log_level",
	"log-format":      "log_format",
	"log-file":        "log_file",
	"history-db":      "history_db",
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "gymbook",
		Short: "Book a recurring gym class slot",
		Long: `gymbook logs in to the gym booking API, finds the class slot four days ahead,
books it with bounded retries and logs out again.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (GYMBOOK_*, plus API_URL, API_LOGIN_URL, API_EMAIL,
   API_PASSWORD, LOG_LEVEL and LOG_FILE)
3. Configuration file
4. Default values

A .env file in the working directory is loaded before the environment is read.
The configuration file is YAML. Without --config the tool looks for
gymbook.yaml, .gymbook.yaml and config.yaml in the current directory and then
in the home directory.

EXAMPLES:
  # Book the 07:00 class four days from now
  gymbook book

  # Use the weekday map instead of the live schedule
  gymbook --strategy weekday book

  # Show which slot would be booked on a given date
  gymbook schedule --date 2024-06-10

  # List the last ten runs
  gymbook history --limit 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBook(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Configuration file path")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	flags.BoolVar(&opts.debugConfig, "debug-config", false, "Show configuration resolution debug information")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the final status line")

	flags.StringVar(&opts.flagConfig.Email, "email", "", "Account email")
	flags.StringVar(&opts.flagConfig.SessionID, "session-id", "", "Use an existing session instead of logging in")
	flags.StringVar(&opts.flagConfig.SiteID, "site-id", "", "Gym site id (default: 5194)")
	flags.StringVar(&opts.flagConfig.TargetTime, "target-time", "", "Class start time, HH:MM (default: 07:00)")
	flags.StringVar(&opts.flagConfig.Strategy, "strategy", "", "Slot resolution: live or weekday (default: live)")
	flags.IntVarP(&opts.flagConfig.Attempts, "attempts", "a", 0, "Attempts per API request (default: 3, range: 1-1000)")
	flags.DurationVarP(&opts.flagConfig.Delay, "delay", "d", 0, "Base delay between request attempts (default: 300s)")
	flags.StringVar(&opts.flagConfig.BackoffType, "backoff", "", "Request backoff: fixed, exponential or jitter (default: exponential)")
	flags.Float64Var(&opts.flagConfig.Multiplier, "multiplier", 0, "Backoff multiplier (default: 2.0)")
	flags.DurationVar(&opts.flagConfig.MaxDelay, "max-delay", 0, "Maximum request backoff delay (default: 0 = no limit)")
	flags.IntVar(&opts.flagConfig.BookAttempts, "book-attempts", 0, "Booking attempts (default: 3)")
	flags.DurationVar(&opts.flagConfig.BookDelay, "book-delay", 0, "Delay between booking attempts (default: 300s)")
	flags.IntVar(&opts.flagConfig.BookAheadDays, "book-ahead-days", 0, "Days between today and the class (default: 4)")
	flags.StringVar(&opts.flagConfig.LogLevel, "log-level", "", "Log level: debug, info, warn or error (default: info)")
	flags.StringVar(&opts.flagConfig.LogFormat, "log-format", "", "Log format: json or text (default: json)")
	flags.StringVar(&opts.flagConfig.LogFile, "log-file", "", "Also append logs to this file")
	flags.StringVar(&opts.flagConfig.HistoryDB, "history-db", "", "SQLite file recording every run")

	rootCmd.AddCommand(
		createBookCommand(opts),
		createScheduleCommand(opts),
		createHistoryCommand(opts),
		createConfigCommand(opts),
		createVersionCommand(),
	)

	return rootCmd
}

// resolveConfiguration merges flags, environment, config file and defaults
func resolveConfiguration(cmd *cobra.Command, opts *cliOptions) (*config.Config, *config.ConfigDebugInfo, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, nil, err
	}

	configPath := opts.configFile
	if configPath == "" {
		cwd, _ := os.Getwd()
		if found := config.FindConfigFile(cwd); found != "" {
			configPath = found
		} else if homeDir, err := os.UserHomeDir(); err == nil {
			configPath = config.FindConfigFile(homeDir)
		}
	}

	explicitFields := make(map[string]bool)
	for flagName, key := range configFlags {
		if cmd.Flags().Changed(flagName) {
			explicitFields[key] = true
		}
	}

	cfg, debugInfo, err := config.Resolve(configPath, &opts.flagConfig, explicitFields, opts.debugConfig)
	if opts.debugConfig && debugInfo != nil {
		debugInfo.PrintDebugInfo(cmd.ErrOrStderr())
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	return cfg, debugInfo, err
}

// loadConfiguration resolves and validates the configuration
func loadConfiguration(cmd *cobra.Command, opts *cliOptions) (*config.Config, error) {
	cfg, _, err := resolveConfiguration(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
