// Package orchestrator runs one booking: login, slot resolution, a bounded
// booking attempt loop and logout.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaneisley/gymbook/pkg/conditions"
	"github.com/shaneisley/gymbook/pkg/gym"
	"github.com/shaneisley/gymbook/pkg/logging"
)

const (
	DefaultMaxAttempts   = 3
	DefaultAttemptDelay  = 300 * time.Second
	DefaultBookAheadDays = 4
)

// State is the terminal state of a run
type State string

const (
	StateBooked           State = "booked"
	StateAlreadyBooked    State = "already_booked"
	StateRetriesExhausted State = "retries_exhausted"
	StateSlotNotFound     State = "slot_not_found"
	StateAuthFailed       State = "auth_failed"
)

// Success reports whether the run ended without a hard failure.
// A missing slot is a normal negative result.
func (s State) Success() bool {
	switch s {
	case StateBooked, StateAlreadyBooked, StateSlotNotFound:
		return true
	}
	return false
}

// Result summarises one run
type Result struct {
	RunID     string        `json:"run_id"`
	Date      string        `json:"date"`
	Weekday   string        `json:"weekday"`
	SlotID    gym.SlotID    `json:"slot_id,omitempty"`
	State     State         `json:"state"`
	Attempts  int           `json:"attempts"`
	Reason    string        `json:"reason,omitempty"`
	LoggedOut bool          `json:"logged_out"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
}

// Sessions logs in and out
type Sessions interface {
	Login(ctx context.Context, creds gym.Credentials) (*gym.Session, error)
	Logout(ctx context.Context, session *gym.Session) bool
}

// BookingClient performs one booking call
type BookingClient interface {
	Book(ctx context.Context, req gym.BookingRequest) (conditions.Outcome, error)
}

// Orchestrator drives a single booking run. It is not safe for concurrent use.
type Orchestrator struct {
	Sessions Sessions
	Resolver SlotResolver
	Booker   BookingClient

	Credentials gym.Credentials
	// StaticSession is used as-is when no credentials are configured;
	// login and logout are then skipped
	StaticSession string
	SiteID        string

	MaxAttempts   int
	AttemptDelay  time.Duration
	BookAheadDays int

	Now    func() time.Time
	Sleep  func(time.Duration)
	Logger *logging.Logger
}

// New creates an Orchestrator with default attempt tuning
func New(sessions Sessions, resolver SlotResolver, booker BookingClient, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		Sessions:      sessions,
		Resolver:      resolver,
		Booker:        booker,
		SiteID:        gym.DefaultSiteID,
		MaxAttempts:   DefaultMaxAttempts,
		AttemptDelay:  DefaultAttemptDelay,
		BookAheadDays: DefaultBookAheadDays,
		Now:           time.Now,
		Sleep:         time.Sleep,
		Logger:        logger,
	}
}

// TargetDate returns the booking date and its lower-case weekday name
func TargetDate(now time.Time, aheadDays int) (string, string) {
	target := now.AddDate(0, 0, aheadDays)
	return target.Format(gym.DateLayout), strings.ToLower(target.Weekday().String())
}

// Run performs one booking run. It never returns an error; the outcome is
// carried by Result.State.
func (o *Orchestrator) Run(ctx context.Context) Result {
	now := o.now()
	aheadDays := o.BookAheadDays
	if aheadDays <= 0 {
		aheadDays = DefaultBookAheadDays
	}
	date, weekday := TargetDate(now, aheadDays)

	result := Result{
		RunID:     uuid.NewString(),
		Date:      date,
		Weekday:   weekday,
		StartedAt: now,
	}
	logger := o.logger().WithRun(result.RunID)

	logger.Info("starting booking run", "date", date, "weekday", weekday)

	session, managed, err := o.session(ctx)
	if err != nil {
		logger.LogError("login", err)
		result.State = StateAuthFailed
		result.Reason = err.Error()
		result.Duration = o.now().Sub(now)
		return result
	}

	slotID, ok := o.Resolver.Resolve(ctx, session, date, weekday)
	if !ok {
		logger.Warn("no slot to book, skipping booking", "date", date, "weekday", weekday)
		result.State = StateSlotNotFound
		return o.finish(ctx, result, session, managed, now)
	}
	result.SlotID = slotID

	o.bookingLoop(ctx, logger, session, &result)
	return o.finish(ctx, result, session, managed, now)
}

// finish logs out of a session obtained by login and stamps the duration
func (o *Orchestrator) finish(ctx context.Context, result Result, session *gym.Session, managed bool, start time.Time) Result {
	if managed {
		result.LoggedOut = o.Sessions.Logout(ctx, session)
	}
	result.Duration = o.now().Sub(start)
	return result
}

func (o *Orchestrator) bookingLoop(ctx context.Context, logger *logging.Logger, session *gym.Session, result *Result) {
	maxAttempts := o.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	req := gym.BookingRequest{
		SiteID:       o.siteID(),
		SessionToken: session.Token,
		SlotID:       result.SlotID,
		Date:         result.Date,
	}
	logger.Debug("booking request payload", "payload", req.Form())

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		outcome, err := o.Booker.Book(ctx, req)

		switch {
		case err != nil:
			result.Reason = err.Error()
			logger.Error("booking request failed", "attempt", attempt, "exception", err.Error())
		case outcome.Terminal():
			result.Reason = ""
			if outcome.State == conditions.AlreadyBooked {
				logger.Warn("slot already booked", "date", result.Date, "slot_id", string(result.SlotID))
				result.State = StateAlreadyBooked
			} else {
				logger.Info("booking successful", "date", result.Date, "slot_id", string(result.SlotID), "attempt", attempt)
				result.State = StateBooked
			}
			return
		default:
			result.Reason = outcome.Reason
			logger.Error("booking failed", "attempt", attempt, "reason", outcome.Reason)
		}

		if attempt < maxAttempts {
			delay := o.AttemptDelay
			if delay < 0 {
				delay = 0
			}
			logger.Info("waiting before next booking attempt", "attempt", attempt, "delay", delay.String())
			o.sleep(delay)
		}
	}

	result.State = StateRetriesExhausted
	logger.Error("maximum retry attempts reached", "attempts", maxAttempts)
}

// session returns the session to use and whether it was obtained by login
func (o *Orchestrator) session(ctx context.Context) (*gym.Session, bool, error) {
	if o.Credentials == (gym.Credentials{}) && o.StaticSession != "" {
		return &gym.Session{Token: o.StaticSession}, false, nil
	}
	if o.Sessions == nil {
		return nil, false, errors.New("no session manager configured")
	}
	session, err := o.Sessions.Login(ctx, o.Credentials)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func (o *Orchestrator) siteID() string {
	if o.SiteID == "" {
		return gym.DefaultSiteID
	}
	return o.SiteID
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Orchestrator) sleep(d time.Duration) {
	if o.Sleep == nil {
		time.Sleep(d)
		return
	}
	o.Sleep(d)
}

func (o *Orchestrator) logger() *logging.Logger {
	if o.Logger == nil {
		return logging.Discard()
	}
	return o.Logger.WithComponent("orchestrator")
}
