package metrics

import (
	"encoding/json"
	"time"

	"github.com/shaneisley/gymbook/pkg/orchestrator"
)

// RunMetrics represents the record of one booking run
type RunMetrics struct {
	RunID         string        `json:"run_id"`
	Date          string        `json:"date"`
	Weekday       string        `json:"weekday"`
	SlotID        string        `json:"slot_id"`
	FinalStatus   string        `json:"final_status"` // one of the orchestrator states
	Success       bool          `json:"success"`
	TotalAttempts int           `json:"total_attempts"`
	Reason        string        `json:"reason,omitempty"`
	LoggedOut     bool          `json:"logged_out"`
	Duration      time.Duration `json:"-"`
	Timestamp     int64         `json:"timestamp"` // Unix timestamp of the run start
}

// DurationSeconds returns the duration in seconds as a float64
func (m *RunMetrics) DurationSeconds() float64 {
	return float64(m.Duration) / float64(time.Second)
}

// MarshalJSON reports the duration in seconds
func (m *RunMetrics) MarshalJSON() ([]byte, error) {
	type Alias RunMetrics
	return json.Marshal(&struct {
		DurationSeconds float64 `json:"duration_seconds"`
		*Alias
	}{
		DurationSeconds: m.DurationSeconds(),
		Alias:           (*Alias)(m),
	})
}

// NewRunMetrics creates a RunMetrics from an orchestrator result
func NewRunMetrics(result orchestrator.Result) *RunMetrics {
	started := result.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return &RunMetrics{
		RunID:         result.RunID,
		Date:          result.Date,
		Weekday:       result.Weekday,
		SlotID:        string(result.SlotID),
		FinalStatus:   string(result.State),
		Success:       result.State.Success(),
		TotalAttempts: result.Attempts,
		Reason:        result.Reason,
		LoggedOut:     result.LoggedOut,
		Duration:      result.Duration,
		Timestamp:     started.Unix(),
	}
}

// Stats aggregates a set of runs
type Stats struct {
	TotalRuns       int            `json:"total_runs"`
	SuccessfulRuns  int            `json:"successful_runs"`
	FailedRuns      int            `json:"failed_runs"`
	SuccessRate     float64        `json:"success_rate"`
	AverageAttempts float64        `json:"average_attempts"`
	AverageDuration time.Duration  `json:"average_duration"`
	ByStatus        map[string]int `json:"by_status"`
}

// Aggregate computes Stats over runs
func Aggregate(runs []*RunMetrics) Stats {
	stats := Stats{ByStatus: make(map[string]int)}
	if len(runs) == 0 {
		return stats
	}

	var attempts int
	var duration time.Duration
	for _, run := range runs {
		stats.TotalRuns++
		if run.Success {
			stats.SuccessfulRuns++
		} else {
			stats.FailedRuns++
		}
		stats.ByStatus[run.FinalStatus]++
		attempts += run.TotalAttempts
		duration += run.Duration
	}

	stats.SuccessRate = float64(stats.SuccessfulRuns) / float64(stats.TotalRuns)
	stats.AverageAttempts = float64(attempts) / float64(stats.TotalRuns)
	stats.AverageDuration = duration / time.Duration(stats.TotalRuns)
	return stats
}
