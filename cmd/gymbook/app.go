package main

import (
	"fmt"
	"io"

	"github.com/shaneisley/gymbook/pkg/backoff"
	"github.com/shaneisley/gymbook/pkg/config"
	"github.com/shaneisley/gymbook/pkg/executor"
	"github.com/shaneisley/gymbook/pkg/gym"
	"github.com/shaneisley/gymbook/pkg/logging"
	"github.com/shaneisley/gymbook/pkg/metrics"
	"github.com/shaneisley/gymbook/pkg/orchestrator"
	"github.com/shaneisley/gymbook/pkg/storage"
)

// app wires the booking components from a resolved configuration
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	closer    io.Closer
	exec      *executor.Executor
	endpoints gym.Endpoints
}

func newApp(cfg *config.Config, logOutput io.Writer) (*app, error) {
	logger, closer, err := logging.New("gymbook", logging.Options{
		Level:  logging.LogLevel(cfg.LogLevel),
		Format: logging.Format(cfg.LogFormat),
		Output: logOutput,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}

	exec, err := createExecutor(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		closer: closer,
		exec:   exec,
		endpoints: gym.Endpoints{
			Login:    cfg.API.LoginURL,
			Schedule: cfg.API.ScheduleURL,
			Booking:  cfg.API.BookingURL,
			Logout:   cfg.API.LogoutURL,
		},
	}, nil
}

// createExecutor creates the request executor described by the configuration
func createExecutor(cfg *config.Config, logger *logging.Logger) (*executor.Executor, error) {
	strategy, err := backoff.New(backoff.Kind(cfg.BackoffType), cfg.Delay, cfg.Multiplier, cfg.MaxDelay)
	if err != nil {
		return nil, err
	}

	exec := executor.NewExecutor(cfg.Attempts, strategy, logger)
	exec.Client = executor.NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	exec.Headers = cfg.Headers
	return exec, nil
}

func (a *app) sessions() *gym.SessionManager {
	return gym.NewSessionManager(a.exec, a.endpoints, a.logger)
}

func (a *app) resolver() (orchestrator.SlotResolver, error) {
	finder := gym.NewScheduleFinder(a.exec, a.endpoints.Schedule, a.cfg.SiteID, a.logger)
	return orchestrator.NewResolver(orchestrator.Strategy(a.cfg.Strategy), finder, a.cfg.TargetTime, a.cfg.ScheduleIDs, a.logger)
}

func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}

	o := orchestrator.New(a.sessions(), resolver, gym.NewBooker(a.exec, a.endpoints.Booking, a.logger), a.logger)
	o.Credentials = gym.Credentials{Email: a.cfg.Email, Password: a.cfg.Password}
	o.StaticSession = a.cfg.SessionID
	o.SiteID = a.cfg.SiteID
	o.MaxAttempts = a.cfg.BookAttempts
	o.AttemptDelay = a.cfg.BookDelay
	o.BookAheadDays = a.cfg.BookAheadDays
	return o, nil
}

// recordRun appends the run to the history database when one is configured.
// Failures are logged and never change the run outcome.
func (a *app) recordRun(result orchestrator.Result) {
	if a.cfg.HistoryDB == "" {
		return
	}

	history, err := storage.Open(a.cfg.HistoryDB)
	if err != nil {
		a.logger.LogError("open history", err, "path", a.cfg.HistoryDB)
		return
	}
	defer history.Close()

	if err := history.Record(metrics.NewRunMetrics(result)); err != nil {
		a.logger.LogError("record run", err, "run_id", result.RunID)
	}
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	if err := a.closer.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
