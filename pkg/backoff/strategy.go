package backoff

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Kind names a backoff strategy in configuration
type Kind string

const (
	KindFixed       Kind = "fixed"
	KindExponential Kind = "exponential"
	KindJitter      Kind = "jitter"
)

// Strategy defines the interface for backoff strategies
type Strategy interface {
	// Delay returns the wait before retry number attempt.
	// attempt is 1-based (1 for the wait after the first failure)
	Delay(attempt int) time.Duration
}

// Fixed waits the same duration before every retry
type Fixed struct {
	Duration time.Duration
}

// NewFixed creates a new Fixed backoff strategy
func NewFixed(duration time.Duration) *Fixed {
	return &Fixed{Duration: duration}
}

// Delay returns the fixed duration for any attempt
func (f *Fixed) Delay(attempt int) time.Duration {
	return f.Duration
}

// Exponential multiplies the previous wait by Multiplier on every retry.
// With the booking defaults this yields 300s, 600s, 1200s, ...
type Exponential struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NewExponential creates a new Exponential backoff strategy.
// maxDelay of 0 means no cap.
func NewExponential(baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Exponential {
	return &Exponential{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
	}
}

// Delay returns baseDelay * multiplier^(attempt-1), capped at MaxDelay
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return e.BaseDelay
	}

	delay := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt-1))
	limit := time.Duration(math.MaxInt64)
	if e.MaxDelay > 0 {
		limit = e.MaxDelay
	}
	// float64(MaxInt64) rounds up to 2^63, so >= catches overflow
	if delay >= float64(limit) || math.IsNaN(delay) {
		return limit
	}
	return time.Duration(delay)
}

// Jitter is full-jitter exponential backoff: a random wait in [0, exponential delay]
type Jitter struct {
	Exponential
	rand func() float64
}

// NewJitter creates a new Jitter backoff strategy
func NewJitter(baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Jitter {
	return &Jitter{
		Exponential: Exponential{BaseDelay: baseDelay, Multiplier: multiplier, MaxDelay: maxDelay},
		rand:        rand.Float64,
	}
}

// Delay returns a random delay between 0 and the exponential delay for the attempt
func (j *Jitter) Delay(attempt int) time.Duration {
	return time.Duration(j.rand() * float64(j.Exponential.Delay(attempt)))
}

// New builds the strategy named by kind. An empty kind selects exponential.
func New(kind Kind, baseDelay time.Duration, multiplier float64, maxDelay time.Duration) (Strategy, error) {
	switch kind {
	case KindExponential, "":
		return NewExponential(baseDelay, multiplier, maxDelay), nil
	case KindFixed:
		return NewFixed(baseDelay), nil
	case KindJitter:
		return NewJitter(baseDelay, multiplier, maxDelay), nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", kind)
	}
}

// Waits returns the delays a caller sleeps through when every one of
// maxAttempts attempts fails. There is no wait after the last attempt, so the
// slice has maxAttempts-1 entries.
func Waits(s Strategy, maxAttempts int) []time.Duration {
	if maxAttempts <= 1 || s == nil {
		return nil
	}
	waits := make([]time.Duration, 0, maxAttempts-1)
	for attempt := 1; attempt < maxAttempts; attempt++ {
		waits = append(waits, s.Delay(attempt))
	}
	return waits
}
