package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"glowdesk/internal/auth"
	"glowdesk/internal/events"
	"glowdesk/internal/export"
	"glowdesk/internal/metrics"
	"glowdesk/internal/models"
	"glowdesk/internal/salonapi"
	"glowdesk/internal/schedule"
	"glowdesk/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin exchanges staff credentials for a bearer token and binds it to
// the session.
// POST /api/staff/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := s.client.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	claims, err := auth.DecodeClaims(token)
	if err != nil {
		s.logger.Error().Err(err).Msg("undecodable token from booking api")
		writeError(w, http.StatusBadGateway, "invalid token from booking service")
		return
	}

	d, ok := s.dashboard(r)
	if !ok {
		writeError(w, http.StatusInternalServerError, "no session")
		return
	}
	d.SetToken(token)
	if err := s.sessions.SaveState(r.Context(), &session.State{SessionID: d.ID(), Token: token}); err != nil {
		s.logger.Warn().Err(err).Msg("session state save failed")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"email":              claims.Subject,
		"is_admin":           claims.IsAdmin,
		"expires_at":         claims.Expiry,
		"expires_in_seconds": int(auth.TimeUntilExpiry(token, time.Now()).Seconds()),
	})
}

// handleLogout drops the session's token and caches.
// POST /api/staff/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d, ok := s.dashboard(r); ok {
		s.sessions.Destroy(r.Context(), d.ID())
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

// staffDashboard resolves the session and checks it holds a live token.
func (s *Server) staffDashboard(w http.ResponseWriter, r *http.Request) (*session.Dashboard, bool) {
	d, ok := s.dashboard(r)
	if !ok {
		writeError(w, http.StatusInternalServerError, "no session")
		return nil, false
	}
	token := d.Token()
	if token == "" || auth.IsExpired(token, time.Now()) {
		writeError(w, http.StatusUnauthorized, "login required")
		return nil, false
	}
	return d, true
}

// calendarWindow parses start/end query params into a half-open range. A
// missing window defaults to today plus the configured number of days.
func (s *Server) calendarWindow(r *http.Request) (schedule.DateRange, string) {
	q := r.URL.Query()
	startStr, endStr := q.Get("start"), q.Get("end")

	if startStr == "" && endStr == "" {
		now := time.Now()
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		return schedule.DateRange{Start: start, End: start.AddDate(0, 0, s.opts.DefaultRangeDays)}, ""
	}

	start, err := parseDay(startStr)
	if err != nil {
		return schedule.DateRange{}, "invalid start; expected YYYY-MM-DD"
	}
	end, err := parseDay(endStr)
	if err != nil {
		return schedule.DateRange{}, "invalid end; expected YYYY-MM-DD"
	}
	// End is inclusive on the wire, half-open internally.
	end = end.AddDate(0, 0, 1)
	if !start.Before(end) {
		return schedule.DateRange{}, "start must be before or equal to end"
	}
	if int(end.Sub(start).Hours()/24) > MaxCalendarDaysRange {
		return schedule.DateRange{}, "date range exceeds maximum of 90 days"
	}
	return schedule.DateRange{Start: start, End: end}, ""
}

// handleCalendar returns calendar events for a window, served from the
// session's caches whenever possible. refresh=1 forces a full re-fetch.
// GET /api/staff/calendar?start=YYYY-MM-DD&end=YYYY-MM-DD&refresh=1
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d, ok := s.staffDashboard(w, r)
	if !ok {
		return
	}

	window, errMsg := s.calendarWindow(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	forceRefresh := r.URL.Query().Get("refresh") == "1"

	// Refresh the local services snapshot so duration fallback has data
	// even when the services endpoint dies later.
	if services, err := s.client.ListServices(r.Context()); err == nil {
		d.SetServices(services)
	}

	evts, err := d.CalendarEvents(r.Context(), window, forceRefresh)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	// A forced refresh means the staff just pulled fresh data, so push it to
	// the shared sheet too. A sync failure never fails the calendar request.
	if forceRefresh && s.sheets != nil {
		if err := s.sheets.SyncBookings(r.Context(), d.CachedBookings()); err != nil {
			s.logger.Warn().Err(err).Msg("sheet sync failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": evts,
		"window": map[string]string{
			"start": window.Start.Format("2006-01-02"),
			"end":   window.End.AddDate(0, 0, -1).Format("2006-01-02"),
		},
	})
}

// handleExport streams the window's bookings as an Excel workbook.
// GET /api/staff/export?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d, ok := s.staffDashboard(w, r)
	if !ok {
		return
	}

	window, errMsg := s.calendarWindow(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	bookings, err := s.client.GetBookings(r.Context(), d.Token(),
		window.Start.Format("2006-01-02"),
		window.End.AddDate(0, 0, -1).Format("2006-01-02"))
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	var services []models.Service
	if list, err := s.client.ListServices(r.Context()); err == nil {
		services = list
	}

	writer := export.NewExcelizeWriter()
	defer writer.Close()
	resolver := schedule.NewDurationResolver(s.client, s.logger)
	if err := export.WriteBookingsWorkbook(r.Context(), writer, bookings, services, resolver); err != nil {
		s.logger.Error().Err(err).Msg("export build failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := "bookings_" + window.Start.Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := writer.Save(w); err != nil {
		s.logger.Error().Err(err).Msg("export write failed")
	}
}

// handleAudit lists the locally recorded booking audit trail for a window.
// GET /api/staff/audit?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.staffDashboard(w, r); !ok {
		return
	}
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}

	window, errMsg := s.calendarWindow(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	entries, err := s.db.ListBookingAudit(r.Context(),
		window.Start.Format("2006-01-02"),
		window.End.AddDate(0, 0, -1).Format("2006-01-02"))
	if err != nil {
		s.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleStaffBookings creates a booking directly for walk-ins and phone
// bookings, skipping the OTP flow.
// POST /api/staff/bookings
func (s *Server) handleStaffBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d, ok := s.staffDashboard(w, r)
	if !ok {
		return
	}
	var req salonapi.BookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Service == "" || req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "name, service, date and time are required")
		return
	}

	booking, err := s.client.CreateBooking(r.Context(), d.Token(), req)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	metrics.IncBookingCreated(booking.Status)
	s.bus.Publish(events.TypeBookingCreated, *booking)
	writeJSON(w, http.StatusCreated, map[string]any{"booking": booking})
}

// handleAdminServices proxies service management to the booking API.
// POST /api/staff/services
func (s *Server) handleAdminServices(w http.ResponseWriter, r *http.Request) {
	d, ok := s.staffDashboard(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var svc models.Service
		if !decodeBody(w, r, &svc) {
			return
		}
		created, err := s.client.CreateService(r.Context(), d.Token(), svc)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAdminServiceByID proxies updates and deletes for one service.
// PUT/DELETE /api/staff/services/{id}
func (s *Server) handleAdminServiceByID(w http.ResponseWriter, r *http.Request) {
	d, ok := s.staffDashboard(w, r)
	if !ok {
		return
	}
	id, err := trailingID(r.URL.Path, "/api/staff/services/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var svc models.Service
		if !decodeBody(w, r, &svc) {
			return
		}
		svc.ID = id
		updated, err := s.client.UpdateService(r.Context(), d.Token(), svc)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := s.client.DeleteService(r.Context(), d.Token(), id); err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createArtistRequest struct {
	models.HairArtist
	Password string `json:"password"`
}

// handleAdminArtists proxies stylist management to the booking API.
// POST /api/staff/hair-artists
func (s *Server) handleAdminArtists(w http.ResponseWriter, r *http.Request) {
	d, ok := s.staffDashboard(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createArtistRequest
		if !decodeBody(w, r, &req) {
			return
		}
		created, err := s.client.CreateHairArtist(r.Context(), d.Token(), req.HairArtist, req.Password)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAdminArtistByID proxies stylist deletion.
// DELETE /api/staff/hair-artists/{id}
func (s *Server) handleAdminArtistByID(w http.ResponseWriter, r *http.Request) {
	d, ok := s.staffDashboard(w, r)
	if !ok {
		return
	}
	id, err := trailingID(r.URL.Path, "/api/staff/hair-artists/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hair artist id")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.client.DeleteHairArtist(r.Context(), d.Token(), id); err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func trailingID(path, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(path, prefix), 10, 64)
}
