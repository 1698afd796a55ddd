package gym

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shaneisley/gymbook/pkg/conditions"
	"github.com/shaneisley/gymbook/pkg/logging"
)

// SessionManager obtains and releases session tokens
type SessionManager struct {
	requester Requester
	endpoints Endpoints
	logger    *logging.Logger
}

// NewSessionManager creates a SessionManager
func NewSessionManager(requester Requester, endpoints Endpoints, logger *logging.Logger) *SessionManager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SessionManager{
		requester: requester,
		endpoints: endpoints,
		logger:    logger.WithComponent("session"),
	}
}

// Login authenticates and returns the session token found at
// parametri.sessione.codice_sessione. A missing or empty token is an error
// wrapping ErrNoSession whatever the reply status; there are no retries beyond
// the requester's own.
func (m *SessionManager) Login(ctx context.Context, creds Credentials) (*Session, error) {
	payload := url.Values{
		fieldVersion:    {ProtocolVersion},
		fieldClientType: {ClientType},
		fieldPassword:   {creds.Password},
		fieldEmail:      {creds.Email},
	}

	resp, err := m.requester.Execute(ctx, m.endpoints.Login, payload)
	if err != nil {
		m.logger.Error(ErrNoSession.Error(), "exception", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	token := ""
	if v, ok := resp.Lookup("parametri", "sessione", fieldSession); ok {
		switch t := v.(type) {
		case string:
			token = t
		case json.Number:
			token = t.String()
		}
	}
	if token == "" {
		m.logger.Error(ErrNoSession.Error())
		return nil, ErrNoSession
	}

	m.logger.Info("logged in")
	return &Session{Token: token}, nil
}

// Logout releases the session. It reports whether the API answered status 2;
// failures are logged as warnings and never returned.
func (m *SessionManager) Logout(ctx context.Context, session *Session) bool {
	if session == nil {
		m.logger.Warn("failed to log out", "exception", "no session")
		return false
	}

	resp, err := m.requester.Execute(ctx, m.endpoints.Logout, url.Values{fieldSession: {session.Token}})
	if err != nil {
		m.logger.Warn("failed to log out", "exception", err.Error())
		return false
	}
	if !conditions.IsSuccess(resp) {
		status, _ := resp.Status()
		m.logger.Warn("failed to log out", "status", status)
		return false
	}

	m.logger.Info("successfully logged out")
	return true
}
