// Package gym talks to the gym booking API: login/logout, the daily
// schedule and the booking call. Every request goes through a Requester,
// normally the retrying executor.
package gym

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/shaneisley/gymbook/pkg/executor"
)

const (
	ProtocolVersion   = "26"
	ClientType        = "web"
	DefaultSiteID     = "5194"
	DefaultTargetTime = "07:00"
	DateLayout        = "2006-01-02"
)

// Form field names used by the booking API
const (
	fieldVersion    = "versione"
	fieldClientType = "tipo"
	fieldPassword   = "pass"
	fieldEmail      = "mail"
	fieldSession    = "codice_sessione"
	fieldSiteID     = "id_sede"
	fieldDay        = "giorno"
	fieldSlotID     = "id_orario_palinsesto"
	fieldDate       = "data"
)

// ErrNoSession is returned when login does not yield a session token
var ErrNoSession = errors.New("failed to obtain session ID from the login API")

// Requester sends one logical request. *executor.Executor implements it.
type Requester interface {
	Execute(ctx context.Context, endpoint string, payload url.Values) (*executor.Response, error)
}

// Endpoints are the four API URLs
type Endpoints struct {
	Login    string
	Schedule string
	Booking  string
	Logout   string
}

// Credentials identify the gym member. They are never persisted.
type Credentials struct {
	Email    string
	Password string
}

// Session holds the token returned by login
type Session struct {
	Token string
}

// SlotID is the opaque schedule entry id. The API sends it as a string or a number.
type SlotID string

// UnmarshalJSON accepts strings and numbers; null leaves the id empty
func (s *SlotID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = SlotID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid slot id %s: %w", data, err)
	}
	*s = SlotID(n.String())
	return nil
}

// BookingRequest is one reservation call
type BookingRequest struct {
	SiteID       string
	SessionToken string
	SlotID       SlotID
	Date         string
}

// Form encodes the request as the API expects it
func (r BookingRequest) Form() url.Values {
	return url.Values{
		fieldSiteID:  {r.SiteID},
		fieldSession: {r.SessionToken},
		fieldSlotID:  {string(r.SlotID)},
		fieldDate:    {r.Date},
	}
}

// Slot is one schedule entry
type Slot struct {
	ID    SlotID
	Day   string
	Start string
}
