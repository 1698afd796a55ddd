package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/gymbook/pkg/executor"
)

func mustParse(t *testing.T, body string) *executor.Response {
	t.Helper()
	resp, err := executor.ParseResponse([]byte(body))
	require.NoError(t, err)
	return resp
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		state    State
		terminal bool
		reason   string
	}{
		{"already booked", `{"status": 1}`, AlreadyBooked, true, ""},
		{"booked", `{"status": 2}`, Booked, true, ""},
		{"rejected", `{"status": 0}`, Failed, false, "status 0"},
		{"unknown status", `{"status": 7}`, Failed, false, "status 7"},
		{"missing status", `{"messaggio": "pieno"}`, Failed, false, "status missing"},
		{"string status", `{"status": "2"}`, Failed, false, "status missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When a parsed reply is classified
			outcome := Classify(mustParse(t, tt.body))

			// Then exactly one state is chosen
			assert.Equal(t, tt.state, outcome.State)
			assert.Equal(t, tt.terminal, outcome.Terminal())
			assert.Equal(t, tt.reason, outcome.Reason)
		})
	}
}

func TestClassify_NilResponse(t *testing.T) {
	outcome := Classify(nil)

	assert.Equal(t, Failed, outcome.State)
	assert.False(t, outcome.Terminal())
	assert.Equal(t, "no response", outcome.Reason)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "booked", Outcome{State: Booked}.String())
	assert.Equal(t, "already_booked", Outcome{State: AlreadyBooked}.String())
	assert.Equal(t, "failed", Outcome{State: Failed}.String())
	assert.Equal(t, "failed (status 0)", Outcome{State: Failed, Reason: "status 0"}.String())
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(mustParse(t, `{"status": 2}`)))
	assert.False(t, IsSuccess(mustParse(t, `{"status": 1}`)))
	assert.False(t, IsSuccess(mustParse(t, `{}`)))
	assert.False(t, IsSuccess(nil))
}
