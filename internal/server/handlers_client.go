package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"glowdesk/internal/events"
	"glowdesk/internal/metrics"
	"glowdesk/internal/salonapi"
	"glowdesk/internal/session"
)

// handleServices lists the salon's services.
// GET /api/services
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	services, err := s.client.ListServices(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// handleHairArtists lists the stylists clients can book with.
// GET /api/hair-artists
func (s *Server) handleHairArtists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	artists, err := s.client.ListHairArtists(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hair_artists": artists})
}

// handleSlots returns bookable start times for a date.
// GET /api/slots?date=YYYY-MM-DD&hair_artist_id=1&service_id=2
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	date := q.Get("date")
	if _, err := parseDay(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	artistID, _ := strconv.ParseInt(q.Get("hair_artist_id"), 10, 64)
	serviceID, _ := strconv.ParseInt(q.Get("service_id"), 10, 64)
	if artistID == 0 || serviceID == 0 {
		writeError(w, http.StatusBadRequest, "hair_artist_id and service_id are required")
		return
	}

	slots, err := s.client.GetAvailableSlots(r.Context(), date, artistID, serviceID)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

// handleDraft reads or updates the session's in-progress booking form.
// GET/PUT /api/booking/draft
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(r)
	if !ok {
		writeError(w, http.StatusInternalServerError, "no session")
		return
	}

	switch r.Method {
	case http.MethodGet:
		state, err := s.sessions.LoadState(r.Context(), d.ID())
		if err != nil {
			s.logger.Warn().Err(err).Msg("draft load failed")
		}
		if state == nil {
			state = &session.State{SessionID: d.ID()}
		}
		writeJSON(w, http.StatusOK, map[string]any{"draft": state.Draft})

	case http.MethodPut:
		var draft session.BookingDraft
		if !decodeBody(w, r, &draft) {
			return
		}
		state, err := s.sessions.LoadState(r.Context(), d.ID())
		if err != nil || state == nil {
			state = &session.State{SessionID: d.ID(), Token: d.Token()}
		}
		state.Draft = draft
		if err := s.sessions.SaveState(r.Context(), state); err != nil {
			s.logger.Warn().Err(err).Msg("draft save failed")
			writeError(w, http.StatusInternalServerError, "could not save draft")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"draft": draft})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSendOTP validates the booking request and asks the booking API to
// send a confirmation code. Rate limited per contact so one address cannot
// flood the mail gateway.
// POST /api/booking/send-otp
func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req salonapi.BookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Service == "" || req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "name, email, service, date and time are required")
		return
	}
	if _, err := parseDay(req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	contact := strings.ToLower(strings.TrimSpace(req.Email))
	if !s.otpLimiter(contact).Allow() {
		metrics.IncOTPThrottled()
		writeError(w, http.StatusTooManyRequests, "too many code requests; try again later")
		return
	}

	if err := s.client.SendOTP(r.Context(), req); err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	metrics.IncOTPSent()
	s.bus.Publish(events.TypeOTPRequested, contact)
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// handleVerifyOTP confirms the code and finalizes the booking.
// POST /api/booking/verify-otp
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req salonapi.OTPVerification
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Contact == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "contact and code are required")
		return
	}

	booking, err := s.client.VerifyOTP(r.Context(), req)
	if err != nil {
		if errors.Is(err, salonapi.ErrUnauthorized) || errors.Is(err, salonapi.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "invalid or expired code")
			return
		}
		s.writeUpstreamError(w, err)
		return
	}

	metrics.IncBookingCreated(booking.Status)
	s.bus.Publish(events.TypeBookingCreated, *booking)

	// The booking went through; drop the draft.
	if d, ok := s.dashboard(r); ok {
		if state, err := s.sessions.LoadState(r.Context(), d.ID()); err == nil && state != nil {
			state.Draft = session.BookingDraft{}
			_ = s.sessions.SaveState(r.Context(), state)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}
