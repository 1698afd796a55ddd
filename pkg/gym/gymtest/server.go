// Package gymtest provides an in-process fake of the gym booking API.
package gymtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/gorilla/mux"

	"github.com/shaneisley/gymbook/pkg/gym"
)

// StatusHTTPError in BookingStatuses makes the booking endpoint answer 500
const StatusHTTPError = -1

const (
	RouteLogin    = "login"
	RouteSchedule = "schedule"
	RouteBooking  = "booking"
	RouteLogout   = "logout"
)

// Server is a fake booking API. Zero-value fields give a server that accepts
// any login, lists no slots, books successfully and logs out successfully.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Token returned by login; empty means login yields no session
	Token string
	// Email and Password, when set, must match the login form
	Email    string
	Password string
	// Slots served by the schedule endpoint, grouped by Day
	Slots []gym.Slot
	// ScheduleBody overrides the generated schedule document
	ScheduleBody string
	// BookingStatuses are returned one per call; the last one repeats
	BookingStatuses []int
	// LogoutStatus defaults to 2
	LogoutStatus int

	calls    map[string]int
	requests map[string][]url.Values
}

// NewServer starts a fake API with a session token "session-token"
func NewServer() *Server {
	s := &Server{
		Token:        "session-token",
		LogoutStatus: 2,
		calls:        make(map[string]int),
		requests:     make(map[string][]url.Values),
	}

	r := mux.NewRouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/schedule", s.handleSchedule).Methods(http.MethodPost)
	r.HandleFunc("/book", s.handleBooking).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	s.Server = httptest.NewServer(r)
	return s
}

// Endpoints returns the four URLs of the fake
func (s *Server) Endpoints() gym.Endpoints {
	return gym.Endpoints{
		Login:    s.URL + "/login",
		Schedule: s.URL + "/schedule",
		Booking:  s.URL + "/book",
		Logout:   s.URL + "/logout",
	}
}

// Calls returns how many times a route was hit
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Requests returns the forms received on a route
func (s *Server) Requests(route string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.requests[route]...)
}

func (s *Server) record(route string, r *http.Request) int {
	_ = r.ParseForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
	s.requests[route] = append(s.requests[route], r.PostForm)
	return s.calls[route]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.record(RouteLogin, r)

	s.mu.Lock()
	token := s.Token
	if (s.Email != "" && r.PostForm.Get("mail") != s.Email) || (s.Password != "" && r.PostForm.Get("pass") != s.Password) {
		token = ""
	}
	s.mu.Unlock()

	if token == "" {
		writeJSON(w, map[string]any{"status": 0, "parametri": map[string]any{}})
		return
	}
	writeJSON(w, map[string]any{
		"status": 2,
		"parametri": map[string]any{
			"sessione": map[string]any{"codice_sessione": token},
		},
	})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	s.record(RouteSchedule, r)

	s.mu.Lock()
	body := s.ScheduleBody
	slots := append([]gym.Slot(nil), s.Slots...)
	s.mu.Unlock()

	if body != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
		return
	}

	var days []map[string]any
	index := make(map[string]int)
	for _, slot := range slots {
		i, ok := index[slot.Day]
		if !ok {
			i = len(days)
			index[slot.Day] = i
			days = append(days, map[string]any{"giorno": slot.Day, "orari_giorno": []map[string]any{}})
		}
		entries := days[i]["orari_giorno"].([]map[string]any)
		days[i]["orari_giorno"] = append(entries, map[string]any{
			"orario_inizio":        slot.Start,
			"id_orario_palinsesto": string(slot.ID),
		})
	}

	writeJSON(w, map[string]any{
		"status": 2,
		"parametri": map[string]any{
			"lista_risultati": []map[string]any{{"giorni": days}},
		},
	})
}

func (s *Server) handleBooking(w http.ResponseWriter, r *http.Request) {
	n := s.record(RouteBooking, r)

	s.mu.Lock()
	status := 2
	if len(s.BookingStatuses) > 0 {
		i := n - 1
		if i >= len(s.BookingStatuses) {
			i = len(s.BookingStatuses) - 1
		}
		status = s.BookingStatuses[i]
	}
	s.mu.Unlock()

	if status == StatusHTTPError {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": status})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.record(RouteLogout, r)

	s.mu.Lock()
	status := s.LogoutStatus
	s.mu.Unlock()

	writeJSON(w, map[string]any{"status": status})
}
