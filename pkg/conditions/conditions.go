package conditions

import (
	"fmt"

	"github.com/shaneisley/gymbook/pkg/executor"
)

// Booking status codes returned by the gym API
const (
	StatusAlreadyBooked = 1
	StatusSuccess       = 2
)

// State is the classification of one booking reply
type State int

const (
	Failed State = iota
	AlreadyBooked
	Booked
)

func (s State) String() string {
	switch s {
	case AlreadyBooked:
		return "already_booked"
	case Booked:
		return "booked"
	default:
		return "failed"
	}
}

// Outcome is a tagged booking result. Reason is only meaningful for Failed.
type Outcome struct {
	State  State
	Reason string
}

// Terminal reports whether the booking loop should stop on this outcome
func (o Outcome) Terminal() bool {
	return o.State == AlreadyBooked || o.State == Booked
}

func (o Outcome) String() string {
	if o.State == Failed && o.Reason != "" {
		return fmt.Sprintf("failed (%s)", o.Reason)
	}
	return o.State.String()
}

// Classify maps a booking reply onto an Outcome.
// A nil response (request failed) is Failed.
func Classify(resp *executor.Response) Outcome {
	if resp == nil {
		return Outcome{State: Failed, Reason: "no response"}
	}

	status, ok := resp.Status()
	if !ok {
		return Outcome{State: Failed, Reason: "status missing"}
	}

	switch status {
	case StatusAlreadyBooked:
		return Outcome{State: AlreadyBooked}
	case StatusSuccess:
		return Outcome{State: Booked}
	default:
		return Outcome{State: Failed, Reason: fmt.Sprintf("status %d", status)}
	}
}

// IsSuccess reports status == 2. Logout uses the same rule.
func IsSuccess(resp *executor.Response) bool {
	status, ok := resp.Status()
	return ok && status == StatusSuccess
}
