// Package server is the HTTP surface of the salon frontend: the public
// booking flow for clients and the authenticated dashboard for staff. It
// talks to the upstream booking API through the salonapi client and keeps
// per-session calendar caches so repeated dashboard views cost nothing.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"glowdesk/internal/events"
	"glowdesk/internal/export"
	"glowdesk/internal/notify"
	"glowdesk/internal/salonapi"
	"glowdesk/internal/session"
	"glowdesk/internal/storage"
)

const sessionCookie = "glowdesk_session"

// MaxCalendarDaysRange caps the window one calendar request may ask for.
const MaxCalendarDaysRange = 90

// Options configures the server beyond its collaborators.
type Options struct {
	OTPPerMinute     float64
	OTPBurst         int
	DefaultRangeDays int
}

// Server wires the HTTP handlers to the booking API client, the session
// manager and the side-effect subscribers.
type Server struct {
	client   *salonapi.Client
	sessions *session.Manager
	bus      *events.Bus
	notifier notify.Notifier
	db       *storage.DB
	sheets   *export.SheetsService
	logger   zerolog.Logger
	opts     Options

	// Per-contact limiters for one-time code requests.
	otpMu       sync.Mutex
	otpLimiters map[string]*rate.Limiter
}

func New(client *salonapi.Client, sessions *session.Manager, bus *events.Bus, notifier notify.Notifier, db *storage.DB, opts Options, logger zerolog.Logger) *Server {
	if opts.OTPPerMinute <= 0 {
		opts.OTPPerMinute = 1
	}
	if opts.OTPBurst <= 0 {
		opts.OTPBurst = 3
	}
	if opts.DefaultRangeDays <= 0 {
		opts.DefaultRangeDays = 7
	}
	return &Server{
		client:      client,
		sessions:    sessions,
		bus:         bus,
		notifier:    notifier,
		db:          db,
		logger:      logger.With().Str("component", "http").Logger(),
		opts:        opts,
		otpLimiters: make(map[string]*rate.Limiter),
	}
}

// UseSheets enables the Google Sheets mirror; a forced calendar refresh
// re-syncs the shared sheet.
func (s *Server) UseSheets(sheets *export.SheetsService) {
	s.sheets = sheets
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public booking flow.
	mux.HandleFunc("/api/services", s.handleServices)
	mux.HandleFunc("/api/hair-artists", s.handleHairArtists)
	mux.HandleFunc("/api/slots", s.handleSlots)
	mux.HandleFunc("/api/booking/draft", s.handleDraft)
	mux.HandleFunc("/api/booking/send-otp", s.handleSendOTP)
	mux.HandleFunc("/api/booking/verify-otp", s.handleVerifyOTP)

	// Staff dashboard.
	mux.HandleFunc("/api/staff/login", s.handleLogin)
	mux.HandleFunc("/api/staff/logout", s.handleLogout)
	mux.HandleFunc("/api/staff/calendar", s.handleCalendar)
	mux.HandleFunc("/api/staff/bookings", s.handleStaffBookings)
	mux.HandleFunc("/api/staff/export", s.handleExport)
	mux.HandleFunc("/api/staff/audit", s.handleAudit)
	mux.HandleFunc("/api/staff/services", s.handleAdminServices)
	mux.HandleFunc("/api/staff/services/", s.handleAdminServiceByID)
	mux.HandleFunc("/api/staff/hair-artists", s.handleAdminArtists)
	mux.HandleFunc("/api/staff/hair-artists/", s.handleAdminArtistByID)

	return s.withSession(mux)
}

// withSession guarantees every request carries a session cookie, creating a
// dashboard for new visitors.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.dashboard(r); !ok {
			d := s.sessions.Create()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    d.ID(),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			r.AddCookie(&http.Cookie{Name: sessionCookie, Value: d.ID()})
		}
		next.ServeHTTP(w, r)
	})
}

// dashboard resolves the request's session. The X-Session-ID header wins
// over the cookie so API clients without a cookie jar can pin a session.
func (s *Server) dashboard(r *http.Request) (*session.Dashboard, bool) {
	id := r.Header.Get("X-Session-ID")
	if id == "" {
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}
	}
	return s.sessions.Get(r.Context(), id)
}

// otpLimiter returns the rate limiter for one contact (email or phone).
func (s *Server) otpLimiter(contact string) *rate.Limiter {
	s.otpMu.Lock()
	defer s.otpMu.Unlock()
	l, ok := s.otpLimiters[contact]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.opts.OTPPerMinute/60.0), s.opts.OTPBurst)
		s.otpLimiters[contact] = l
	}
	return l
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError maps booking API sentinel errors to HTTP statuses.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, salonapi.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, salonapi.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, salonapi.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "booking service unavailable")
	default:
		s.logger.Error().Err(err).Msg("upstream call failed")
		writeError(w, http.StatusBadGateway, "booking service error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.Local)
}
