package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/gymbook/pkg/gym"
	"github.com/shaneisley/gymbook/pkg/gym/gymtest"
)

// runCLI executes a fresh command tree in-process
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	rootCmd := newRootCommand()
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}

// clearLegacyEnv keeps variables from the developer's shell out of the tests
func clearLegacyEnv(t *testing.T) {
	for _, name := range []string{"API_URL", "API_LOGIN_URL", "API_EMAIL", "API_PASSWORD", "LOG_LEVEL", "LOG_FILE"} {
		t.Setenv(name, "")
	}
}

func targetDate() string {
	return time.Now().AddDate(0, 0, 4).Format(gym.DateLayout)
}

// newFakeAPI starts the fake API with a 07:00 slot on the target date and
// writes a matching config file with no waits between attempts
func newFakeAPI(t *testing.T, extra string) (*gymtest.Server, string) {
	t.Helper()
	clearLegacyEnv(t)

	server := gymtest.NewServer()
	t.Cleanup(server.Close)
	server.Email = "member@example.com"
	server.Password = "secret"
	server.Slots = []gym.Slot{
		{ID: "six", Day: targetDate(), Start: "06:00"},
		{ID: "seven", Day: targetDate(), Start: "07:00"},
	}

	ep := server.Endpoints()
	content := fmt.Sprintf(`
api:
  login_url: %s
  schedule_url: %s
  booking_url: %s
  logout_url: %s
email: member@example.com
password: secret
delay: 0s
book_delay: 0s
log_level: debug
%s`, ep.Login, ep.Schedule, ep.Booking, ep.Logout, extra)

	path := filepath.Join(t.TempDir(), "gymbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return server, path
}

func TestCLI_BookSuccess(t *testing.T) {
	// Given a fake API and a history database
	server, configPath := newFakeAPI(t, "")
	historyDB := filepath.Join(t.TempDir(), "history.db")

	// When running the default action
	stdout, stderr, err := runCLI(t, "--config", configPath, "--history-db", historyDB)

	// Then the slot is booked and the session released
	require.NoError(t, err)
	assert.Contains(t, stdout, "Booked slot seven on "+targetDate())
	assert.Contains(t, stderr, `"msg":"booking successful"`)
	assert.Equal(t, 1, server.Calls(gymtest.RouteBooking))
	assert.Equal(t, 1, server.Calls(gymtest.RouteLogout))
	assert.Equal(t, "seven", server.Requests(gymtest.RouteBooking)[0].Get("id_orario_palinsesto"))
	assert.Equal(t, "5194", server.Requests(gymtest.RouteBooking)[0].Get("id_sede"))

	// And the run shows up in the history
	stdout, _, err = runCLI(t, "--config", configPath, "--history-db", historyDB, "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "booked")
	assert.Contains(t, stdout, "1 runs, 100% successful")
}

func TestCLI_BookExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *gymtest.Server)
		args     []string
		code     int
		bookings int
		logouts  int
		output   string
	}{
		{
			name:     "already booked",
			setup:    func(s *gymtest.Server) { s.BookingStatuses = []int{1} },
			code:     0,
			bookings: 1,
			logouts:  1,
			output:   "was already booked",
		},
		{
			name:     "retries exhausted",
			setup:    func(s *gymtest.Server) { s.BookingStatuses = []int{0} },
			args:     []string{"--book-attempts", "2"},
			code:     1,
			bookings: 2,
			logouts:  1,
			output:   "failed after 2 attempts",
		},
		{
			name:     "transport failures are retried by the executor",
			setup:    func(s *gymtest.Server) { s.BookingStatuses = []int{gymtest.StatusHTTPError} },
			args:     []string{"--attempts", "2", "--book-attempts", "2"},
			code:     1,
			bookings: 4,
			logouts:  1,
			output:   "failed after 2 attempts",
		},
		{
			name:     "wrong password",
			setup:    func(s *gymtest.Server) { s.Password = "other" },
			code:     1,
			bookings: 0,
			logouts:  0,
			output:   "Login failed",
		},
		{
			name:     "no slot at target time",
			args:     []string{"--target-time", "09:00"},
			code:     0,
			bookings: 0,
			logouts:  1,
			output:   "No slot found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, configPath := newFakeAPI(t, "")
			if tt.setup != nil {
				tt.setup(server)
			}

			stdout, _, err := runCLI(t, append([]string{"--config", configPath, "book"}, tt.args...)...)

			assert.Equal(t, tt.code, exitCode(err))
			assert.Equal(t, tt.bookings, server.Calls(gymtest.RouteBooking))
			assert.Equal(t, tt.logouts, server.Calls(gymtest.RouteLogout))
			assert.Contains(t, stdout, tt.output)
		})
	}
}

func TestCLI_WeekdayStrategy(t *testing.T) {
	weekday := time.Now().AddDate(0, 0, 4).Weekday().String()
	server, configPath := newFakeAPI(t, fmt.Sprintf("schedule_ids:\n  %s: \"mapped-id\"\n", weekday))

	stdout, _, err := runCLI(t, "--config", configPath, "--strategy", "weekday", "--quiet")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Booked slot mapped-id")
	assert.Equal(t, 0, server.Calls(gymtest.RouteSchedule))
	assert.Equal(t, "mapped-id", server.Requests(gymtest.RouteBooking)[0].Get("id_orario_palinsesto"))
}

func TestCLI_StaticSession(t *testing.T) {
	server, configPath := newFakeAPI(t, "")
	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content = bytes.Replace(content, []byte("email: member@example.com\npassword: secret\n"), []byte("session_id: from-config\n"), 1)
	require.NoError(t, os.WriteFile(configPath, content, 0644))

	_, _, err = runCLI(t, "--config", configPath)

	require.NoError(t, err)
	assert.Equal(t, 0, server.Calls(gymtest.RouteLogin))
	assert.Equal(t, 0, server.Calls(gymtest.RouteLogout))
	assert.Equal(t, "from-config", server.Requests(gymtest.RouteBooking)[0].Get("codice_sessione"))
}

func TestCLI_Schedule(t *testing.T) {
	server, configPath := newFakeAPI(t, "")
	server.Slots = append(server.Slots, gym.Slot{ID: "june", Day: "2024-06-10", Start: "07:00"})

	stdout, _, err := runCLI(t, "--config", configPath, "schedule", "--date", "2024-06-10")

	require.NoError(t, err)
	assert.Equal(t, "Slot at 07:00 on 2024-06-10: june\n", stdout)
	assert.Equal(t, 0, server.Calls(gymtest.RouteBooking))
	assert.Equal(t, 1, server.Calls(gymtest.RouteLogout))
	assert.Equal(t, "2024-06-10", server.Requests(gymtest.RouteSchedule)[0].Get("giorno"))
}

func TestCLI_ScheduleInvalidDate(t *testing.T) {
	_, configPath := newFakeAPI(t, "")

	_, _, err := runCLI(t, "--config", configPath, "schedule", "--date", "10/06/2024")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --date")
}

func TestCLI_MissingConfigurationFailsCleanly(t *testing.T) {
	clearLegacyEnv(t)
	path := filepath.Join(t.TempDir(), "gymbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site_id: \"5194\"\n"), 0644))

	_, _, err := runCLI(t, "--config", path, "book")

	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "api.booking_url")
}

func TestCLI_ConfigRedactsSecrets(t *testing.T) {
	_, configPath := newFakeAPI(t, "")

	stdout, _, err := runCLI(t, "--config", configPath, "--target-time", "06:00", "config")

	require.NoError(t, err)
	assert.Contains(t, stdout, "****")
	assert.Regexp(t, `target_time: ["']?06:00`, stdout)
	assert.Contains(t, stdout, "book_delay: 0s")
	assert.NotContains(t, stdout, "secret")
}

func TestCLI_DebugConfig(t *testing.T) {
	_, configPath := newFakeAPI(t, "")

	_, stderr, err := runCLI(t, "--config", configPath, "--debug-config", "--site-id", "99", "config")

	require.NoError(t, err)
	assert.Contains(t, stderr, "Configuration Resolution Debug Info")
	assert.Contains(t, stderr, "(from CLI flag)")
	assert.NotContains(t, stderr, "secret")
}

func TestCLI_HistoryWithoutDatabase(t *testing.T) {
	_, configPath := newFakeAPI(t, "")

	_, _, err := runCLI(t, "--config", configPath, "history")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no history database configured")
}

func TestCLI_Version(t *testing.T) {
	stdout, _, err := runCLI(t, "version")

	require.NoError(t, err)
	assert.Equal(t, "gymbook dev\n", stdout)
}
