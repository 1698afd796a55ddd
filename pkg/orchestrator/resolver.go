package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaneisley/gymbook/pkg/gym"
	"github.com/shaneisley/gymbook/pkg/logging"
)

// Strategy names a slot resolution strategy
type Strategy string

const (
	// StrategyLive searches the schedule endpoint for the target time
	StrategyLive Strategy = "live"
	// StrategyWeekday looks the slot id up in a weekday map
	StrategyWeekday Strategy = "weekday"
)

// SlotResolver resolves the slot to book for a date. weekday is the
// lower-case English day name of date.
type SlotResolver interface {
	Resolve(ctx context.Context, session *gym.Session, date, weekday string) (gym.SlotID, bool)
}

// SlotFinder is the subset of gym.ScheduleFinder used by ScheduleResolver
type SlotFinder interface {
	Find(ctx context.Context, session *gym.Session, targetDate, targetTime string) (gym.SlotID, bool)
}

// ScheduleResolver queries the live schedule
type ScheduleResolver struct {
	Finder     SlotFinder
	TargetTime string
}

// Resolve implements SlotResolver
func (r *ScheduleResolver) Resolve(ctx context.Context, session *gym.Session, date, _ string) (gym.SlotID, bool) {
	return r.Finder.Find(ctx, session, date, r.TargetTime)
}

// WeekdayResolver maps weekday names to fixed slot ids without any request
type WeekdayResolver struct {
	IDs    map[string]string
	logger *logging.Logger
}

// NewWeekdayResolver normalises the map keys to lower case
func NewWeekdayResolver(ids map[string]string, logger *logging.Logger) *WeekdayResolver {
	if logger == nil {
		logger = logging.Discard()
	}
	normalised := make(map[string]string, len(ids))
	for day, id := range ids {
		normalised[strings.ToLower(strings.TrimSpace(day))] = strings.TrimSpace(id)
	}
	return &WeekdayResolver{IDs: normalised, logger: logger.WithComponent("resolver")}
}

// Resolve implements SlotResolver
func (r *WeekdayResolver) Resolve(_ context.Context, _ *gym.Session, date, weekday string) (gym.SlotID, bool) {
	id := r.IDs[strings.ToLower(weekday)]
	if id == "" {
		r.logger.Warn("no schedule found for the specified date", "date", date, "weekday", weekday)
		return "", false
	}
	return gym.SlotID(id), true
}

// NewResolver builds the resolver for a strategy name; empty means live
func NewResolver(strategy Strategy, finder SlotFinder, targetTime string, weekdayIDs map[string]string, logger *logging.Logger) (SlotResolver, error) {
	switch strategy {
	case "", StrategyLive:
		if finder == nil {
			return nil, fmt.Errorf("live strategy requires a schedule finder")
		}
		return &ScheduleResolver{Finder: finder, TargetTime: targetTime}, nil
	case StrategyWeekday:
		return NewWeekdayResolver(weekdayIDs, logger), nil
	default:
		return nil, fmt.Errorf("unknown slot strategy %q", strategy)
	}
}
