package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"glowdesk/internal/events"
	"glowdesk/internal/export"
	"glowdesk/internal/models"
	"glowdesk/internal/notify"
	"glowdesk/internal/salonapi"
	"glowdesk/internal/session"
	"glowdesk/internal/storage"
)

// fakeBackend imitates the upstream booking API.
type fakeBackend struct {
	mu           sync.Mutex
	bookingCalls int
	otpCalls     int
	srv          *httptest.Server
}

func staffToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":      "stylist@example.com",
		"is_admin": true,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("/services/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.Service{
			{ID: 1, Name: "Hair Cut", Duration: 30, Price: 40},
			{ID: 2, Name: "Coloring", Duration: 90, Price: 120},
		})
	})
	mux.HandleFunc("/hair-artists/public", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.HairArtist{{ID: 1, Name: "Sam"}})
	})
	mux.HandleFunc("/booking/available-slots", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.TimeSlot{{Time: "10:00", Available: true}})
	})
	mux.HandleFunc("/booking/bookings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req salonapi.BookingRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(models.Booking{
				ID: 100, Name: req.Name, Date: req.Date, Time: req.Time, Service: req.Service, Status: "confirmed",
			})
			return
		}
		fb.mu.Lock()
		fb.bookingCalls++
		fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode([]models.Booking{
			{ID: 1, Name: "Dana", Date: "2024-03-04", Time: "10:00", Service: "Hair Cut", Status: "confirmed"},
		})
	})
	mux.HandleFunc("/booking/send-otp", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.otpCalls++
		fb.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"sent":true}`))
	})
	mux.HandleFunc("/booking/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Booking{
			ID: 99, Name: "Dana", Date: "2024-03-04", Time: "10:00", Service: "Hair Cut", Status: "pending",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != "good" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": staffToken(t),
			"token_type":   "bearer",
		})
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) bookingCallCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.bookingCalls
}

func newTestServer(t *testing.T, fb *fakeBackend) *Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	client := salonapi.NewClient(fb.srv.URL, 5*time.Second, logger)
	sessions := session.NewManager(client, client, nil, time.Hour, logger)
	bus := events.NewBus(logger)
	return New(client, sessions, bus, notify.NewLogNotifier(logger), nil, Options{
		OTPPerMinute: 60, OTPBurst: 2, DefaultRangeDays: 7,
	}, logger)
}

func doJSON(t *testing.T, h http.Handler, method, target, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServicesEndpoint(t *testing.T) {
	s := newTestServer(t, newFakeBackend(t))
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/services", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Services []models.Service `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Services, 2)
	assert.Equal(t, "Hair Cut", resp.Services[0].Name)
}

func TestSlotsValidation(t *testing.T) {
	s := newTestServer(t, newFakeBackend(t))
	h := s.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/slots?date=bogus&hair_artist_id=1&service_id=1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/slots?date=2024-03-04&hair_artist_id=1&service_id=1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendOTPThrottlesPerContact(t *testing.T) {
	fb := newFakeBackend(t)
	s := newTestServer(t, fb)
	h := s.Handler()

	body := salonapi.BookingRequest{
		Name: "Dana", Email: "dana@example.com", Service: "Hair Cut",
		Date: "2024-03-04", Time: "10:00",
	}

	// Burst of 2 allowed, third is throttled.
	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/booking/send-otp", "", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, h, http.MethodPost, "/api/booking/send-otp", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different contact is not affected.
	body.Email = "eli@example.com"
	rec = doJSON(t, h, http.MethodPost, "/api/booking/send-otp", "", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyOTPPublishesBooking(t *testing.T) {
	fb := newFakeBackend(t)
	logger := zerolog.New(io.Discard)
	client := salonapi.NewClient(fb.srv.URL, 5*time.Second, logger)
	sessions := session.NewManager(client, client, nil, time.Hour, logger)
	bus := events.NewBus(logger)

	var published []models.Booking
	bus.Subscribe(events.TypeBookingCreated, func(e events.Event) error {
		published = append(published, e.Payload.(models.Booking))
		return nil
	})

	s := New(client, sessions, bus, notify.NewLogNotifier(logger), nil, Options{}, logger)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/booking/verify-otp", "", salonapi.OTPVerification{
		Contact: "dana@example.com", Code: "123456",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, published, 1)
	assert.Equal(t, int64(99), published[0].ID)
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/staff/login", "", loginRequest{
		Email: "stylist@example.com", Password: "good",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c.Value
		}
	}
	t.Fatal("no session cookie issued")
	return ""
}

func TestLoginReturnsClaims(t *testing.T) {
	s := newTestServer(t, newFakeBackend(t))
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/staff/login", "", loginRequest{
		Email: "stylist@example.com", Password: "good",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Email            string `json:"email"`
		IsAdmin          bool   `json:"is_admin"`
		ExpiresInSeconds int    `json:"expires_in_seconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stylist@example.com", resp.Email)
	assert.True(t, resp.IsAdmin)
	assert.Greater(t, resp.ExpiresInSeconds, 0, "token lifetime should be reported to the client")
}

func TestCalendarRequiresLogin(t *testing.T) {
	s := newTestServer(t, newFakeBackend(t))
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/staff/calendar", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCalendarServesRepeatWindowFromCache(t *testing.T) {
	fb := newFakeBackend(t)
	s := newTestServer(t, fb)
	h := s.Handler()
	sid := login(t, h)

	target := "/api/staff/calendar?start=2024-03-04&end=2024-03-10"
	rec := doJSON(t, h, http.MethodGet, target, sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, fb.bookingCallCount())

	var resp struct {
		Events []models.CalendarEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Dana - Hair Cut", resp.Events[0].Title)
	assert.Equal(t, "#4caf50", resp.Events[0].Color)
	assert.Equal(t, 30, resp.Events[0].Duration)

	// Same window again: no new upstream booking fetch.
	rec = doJSON(t, h, http.MethodGet, target, sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fb.bookingCallCount())

	// Forced refresh re-fetches.
	rec = doJSON(t, h, http.MethodGet, target+"&refresh=1", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, fb.bookingCallCount())
}

func TestCalendarWindowValidation(t *testing.T) {
	fb := newFakeBackend(t)
	s := newTestServer(t, fb)
	h := s.Handler()
	sid := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/staff/calendar?start=2024-03-10&end=2024-03-04", sid, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/staff/calendar?start=2024-01-01&end=2024-12-31", sid, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffCreatesBookingDirectly(t *testing.T) {
	fb := newFakeBackend(t)
	s := newTestServer(t, fb)
	h := s.Handler()

	body := salonapi.BookingRequest{
		Name: "Walk In", Service: "Hair Cut", Date: "2024-03-05", Time: "12:00",
	}

	// Without a logged-in session the endpoint refuses.
	rec := doJSON(t, h, http.MethodPost, "/api/staff/bookings", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	sid := login(t, h)
	rec = doJSON(t, h, http.MethodPost, "/api/staff/bookings", sid, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Booking models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp.Booking.ID)
	assert.Equal(t, "Walk In", resp.Booking.Name)
}

func TestAuditEndpointListsRecordedBookings(t *testing.T) {
	fb := newFakeBackend(t)
	logger := zerolog.New(io.Discard)
	client := salonapi.NewClient(fb.srv.URL, 5*time.Second, logger)
	sessions := session.NewManager(client, client, nil, time.Hour, logger)
	bus := events.NewBus(logger)

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InsertBookingAudit(context.Background(), &storage.AuditEntry{
		BookingID: 7, ClientName: "Dana", Service: "Hair Cut",
		BookedDate: "2024-03-05", BookedTime: "10:00", Status: "confirmed",
	}))

	s := New(client, sessions, bus, notify.NewLogNotifier(logger), db, Options{}, logger)
	h := s.Handler()
	sid := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/staff/audit?start=2024-03-04&end=2024-03-10", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []storage.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, int64(7), resp.Entries[0].BookingID)
	assert.Equal(t, "Dana", resp.Entries[0].ClientName)
}

func TestAuditEndpointWithoutStore(t *testing.T) {
	s := newTestServer(t, newFakeBackend(t))
	h := s.Handler()
	sid := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/staff/audit", sid, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCalendarRefreshSyncsSheet(t *testing.T) {
	fb := newFakeBackend(t)
	s := newTestServer(t, fb)

	var sheetCalls int
	var mu sync.Mutex
	fakeSheets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sheetCalls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(fakeSheets.Close)

	api, err := sheets.NewService(context.Background(),
		option.WithEndpoint(fakeSheets.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	s.UseSheets(export.NewSheetsServiceFromAPI(api, "sheet-id", "Bookings", zerolog.New(io.Discard)))

	h := s.Handler()
	sid := login(t, h)

	target := "/api/staff/calendar?start=2024-03-04&end=2024-03-10"
	rec := doJSON(t, h, http.MethodGet, target, sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mu.Lock()
	assert.Equal(t, 0, sheetCalls, "plain calendar view must not touch the sheet")
	mu.Unlock()

	rec = doJSON(t, h, http.MethodGet, target+"&refresh=1", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mu.Lock()
	assert.Equal(t, 2, sheetCalls, "refresh should clear and rewrite the sheet")
	mu.Unlock()
}

func TestExportReturnsWorkbook(t *testing.T) {
	fb := newFakeBackend(t)
	s := newTestServer(t, fb)
	h := s.Handler()
	sid := login(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/staff/export?start=2024-03-04&end=2024-03-10", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, rec.Body.Len())
}
