package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaneisley/gymbook/pkg/gym"
	"github.com/shaneisley/gymbook/pkg/orchestrator"
	"github.com/shaneisley/gymbook/pkg/storage"
	"github.com/shaneisley/gymbook/pkg/ui"
)

// createBookCommand creates the book subcommand
func createBookCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "book",
		Short: "Book the target slot (default action)",
		Long: `Log in, resolve the slot four days ahead, try to book it and log out.

Exit status is 0 when the slot was booked, was already booked or does not
exist on that day, and 1 when login failed or every booking attempt failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBook(cmd, opts)
		},
	}
}

func runBook(cmd *cobra.Command, opts *cliOptions) error {
	cfg, err := loadConfiguration(cmd, opts)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.orchestrator()
	if err != nil {
		return err
	}

	result := o.Run(contextOf(cmd))
	a.recordRun(result)

	reporter := ui.NewReporter(cmd.OutOrStdout())
	reporter.SetQuiet(opts.quiet)
	reporter.FinalSummary(result)

	if !result.State.Success() {
		return &exitError{code: 1}
	}
	return nil
}

// createScheduleCommand creates the schedule subcommand
func createScheduleCommand(opts *cliOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the slot that would be booked",
		Long: `Log in, resolve the slot for a date with the configured strategy, print it and
log out. Nothing is booked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, opts)
			if err != nil {
				return err
			}

			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			targetDate, weekday := orchestrator.TargetDate(time.Now(), cfg.BookAheadDays)
			if date != "" {
				parsed, err := time.Parse(gym.DateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
				}
				targetDate, weekday = orchestrator.TargetDate(parsed, 0)
			}

			resolver, err := a.resolver()
			if err != nil {
				return err
			}

			ctx := contextOf(cmd)
			sessions := a.sessions()
			session := &gym.Session{Token: cfg.SessionID}
			if cfg.UsesLogin() {
				session, err = sessions.Login(ctx, gym.Credentials{Email: cfg.Email, Password: cfg.Password})
				if err != nil {
					return err
				}
				defer sessions.Logout(ctx, session)
			}

			id, found := resolver.Resolve(ctx, session, targetDate, weekday)
			ui.NewReporter(cmd.OutOrStdout()).Slot(targetDate, cfg.TargetTime, string(id), found)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date to look up, YYYY-MM-DD (default: four days from today)")
	return cmd
}

// createHistoryCommand creates the history subcommand
func createHistoryCommand(opts *cliOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded booking runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := resolveConfiguration(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.HistoryDB == "" {
				return fmt.Errorf("no history database configured (set history_db or --history-db)")
			}

			history, err := storage.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer history.Close()

			runs, err := history.Recent(limit)
			if err != nil {
				return err
			}

			reporter := ui.NewReporter(cmd.OutOrStdout())
			reporter.SetQuiet(opts.quiet)
			reporter.History(runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 = all)")
	return cmd
}

// createConfigCommand creates the config subcommand
func createConfigCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration after merging defaults, the config file, the
environment and flags. The password and session id are redacted. Validation
problems are reported on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := resolveConfiguration(cmd, opts)
			if err != nil {
				return err
			}

			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			if err := encoder.Encode(cfg.Redacted()); err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			if err := encoder.Close(); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%v\n", err)
			}
			return nil
		},
	}
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gymbook %s\n", version)
		},
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
