// Package salonapi is the HTTP client for the external salon booking API,
// the source of truth for services, stylists, slots and bookings. The
// client only shapes requests and decodes responses; retry policy belongs
// to callers.
package salonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"glowdesk/internal/metrics"
	"glowdesk/internal/models"
)

// Client is a thin HTTP client for the booking API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "salonapi").Logger(),
	}
}

// UseRedisCache configures optional Redis caching for public GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// BookingRequest is the payload for the OTP booking flow.
type BookingRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Service      string `json:"service"`
	Date         string `json:"date"` // YYYY-MM-DD
	Time         string `json:"time"` // HH:MM
	HairArtistID int64  `json:"hair_artist_id"`
}

// OTPVerification carries the one-time code together with the booking draft.
type OTPVerification struct {
	Contact      string `json:"contact"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Service      string `json:"service"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	HairArtistID int64  `json:"hair_artist_id"`
}

// ListServices returns all salon services.
func (c *Client) ListServices(ctx context.Context) ([]models.Service, error) {
	endpoint := c.baseURL + "/services/"
	var services []models.Service

	if c.readCache(ctx, "services", &services) {
		return services, nil
	}
	if err := c.doGet(ctx, endpoint, "", &services); err != nil {
		return nil, err
	}
	c.writeCache(ctx, "services", services)
	return services, nil
}

// GetService fetches one service by ID, bypassing the cache.
func (c *Client) GetService(ctx context.Context, id int64) (*models.Service, error) {
	endpoint := fmt.Sprintf("%s/services/%d", c.baseURL, id)
	var svc models.Service
	if err := c.doGet(ctx, endpoint, "", &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// ServiceByName resolves a service by case-insensitive name: the listing
// locates the ID, then the record is refreshed by ID so the caller gets
// current duration and price.
func (c *Client) ServiceByName(ctx context.Context, name string) (*models.Service, error) {
	services, err := c.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	for _, svc := range services {
		if strings.EqualFold(svc.Name, name) {
			return c.GetService(ctx, svc.ID)
		}
	}
	return nil, fmt.Errorf("%w: service %q", ErrNotFound, name)
}

// ListHairArtists returns the public stylist roster.
func (c *Client) ListHairArtists(ctx context.Context) ([]models.HairArtist, error) {
	endpoint := c.baseURL + "/hair-artists/public"
	var artists []models.HairArtist

	if c.readCache(ctx, "hair_artists", &artists) {
		return artists, nil
	}
	if err := c.doGet(ctx, endpoint, "", &artists); err != nil {
		return nil, err
	}
	c.writeCache(ctx, "hair_artists", artists)
	return artists, nil
}

// GetAvailableSlots fetches bookable start times for a stylist and date.
func (c *Client) GetAvailableSlots(ctx context.Context, date string, hairArtistID, serviceID int64) ([]models.TimeSlot, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("hair_artist_id", strconv.FormatInt(hairArtistID, 10))
	if serviceID > 0 {
		q.Set("service_id", strconv.FormatInt(serviceID, 10))
	}
	endpoint := c.baseURL + "/booking/available-slots?" + q.Encode()

	var slots []models.TimeSlot
	if err := c.doGet(ctx, endpoint, "", &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// GetBookings fetches bookings for a date range (both bounds YYYY-MM-DD).
// Requires a staff token.
func (c *Client) GetBookings(ctx context.Context, token, startDate, endDate string) ([]models.Booking, error) {
	q := url.Values{}
	q.Set("date", time.Now().Format("2006-01-02"))
	q.Set("start_date", startDate)
	q.Set("end_date", endDate)
	endpoint := c.baseURL + "/booking/bookings?" + q.Encode()

	var bookings []models.Booking
	if err := c.doGet(ctx, endpoint, token, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// SendOTP asks the API to mail a one-time code for the booking draft.
func (c *Client) SendOTP(ctx context.Context, req BookingRequest) error {
	return c.doPost(ctx, c.baseURL+"/booking/send-otp", "", req, nil)
}

// VerifyOTP confirms the one-time code and creates the booking.
func (c *Client) VerifyOTP(ctx context.Context, req OTPVerification) (*models.Booking, error) {
	var booking models.Booking
	if err := c.doPost(ctx, c.baseURL+"/booking/verify-otp", "", req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CreateBooking creates a booking directly, bypassing the OTP flow. Staff
// use it to enter walk-ins and phone bookings.
func (c *Client) CreateBooking(ctx context.Context, token string, req BookingRequest) (*models.Booking, error) {
	var booking models.Booking
	if err := c.doPost(ctx, c.baseURL+"/booking/bookings", token, req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// Login exchanges staff credentials for a bearer token (OAuth2 password form).
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := c.do(req, "login", &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrInvalidResponse)
	}
	return resp.AccessToken, nil
}

// CreateService adds a service (admin only).
func (c *Client) CreateService(ctx context.Context, token string, svc models.Service) (*models.Service, error) {
	var created models.Service
	if err := c.doPost(ctx, c.baseURL+"/services/", token, svc, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateService replaces a service record (admin only).
func (c *Client) UpdateService(ctx context.Context, token string, svc models.Service) (*models.Service, error) {
	endpoint := fmt.Sprintf("%s/services/%d", c.baseURL, svc.ID)
	var updated models.Service
	if err := c.doJSON(ctx, http.MethodPut, endpoint, token, svc, &updated); err != nil {
		return nil, err
	}
	c.dropCache(ctx, "services")
	return &updated, nil
}

// DeleteService removes a service (admin only).
func (c *Client) DeleteService(ctx context.Context, token string, id int64) error {
	endpoint := fmt.Sprintf("%s/services/%d", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodDelete, endpoint, token, nil, nil); err != nil {
		return err
	}
	c.dropCache(ctx, "services")
	return nil
}

// CreateHairArtist registers a stylist account (admin only).
func (c *Client) CreateHairArtist(ctx context.Context, token string, artist models.HairArtist, password string) (*models.HairArtist, error) {
	payload := struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		IsAdmin  bool   `json:"is_admin"`
	}{artist.Name, artist.Email, password, artist.IsAdmin}

	var created models.HairArtist
	if err := c.doPost(ctx, c.baseURL+"/hair-artists/", token, payload, &created); err != nil {
		return nil, err
	}
	c.dropCache(ctx, "hair_artists")
	return &created, nil
}

// DeleteHairArtist removes a stylist account (admin only).
func (c *Client) DeleteHairArtist(ctx context.Context, token string, id int64) error {
	endpoint := fmt.Sprintf("%s/hair-artists/%d", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodDelete, endpoint, token, nil, nil); err != nil {
		return err
	}
	c.dropCache(ctx, "hair_artists")
	return nil
}

// HealthCheck probes the booking API.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, "salonapi:"+key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, "salonapi:"+key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, "salonapi:"+key).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.addHeaders(req, token)
	return c.do(req, endpointLabel(endpoint), out)
}

func (c *Client) doPost(ctx context.Context, endpoint, token string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, endpoint, token, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, token string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode body: %v", ErrInvalidResponse, err)
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req, token)
	return c.do(req, endpointLabel(endpoint), out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncAPIRequest(endpoint, "error")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.IncAPIRequest(endpoint, "unauthorized")
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		metrics.IncAPIRequest(endpoint, "not_found")
		return ErrNotFound
	case resp.StatusCode >= 300:
		metrics.IncAPIRequest(endpoint, "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: http %d: %s", ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	metrics.IncAPIRequest(endpoint, "ok")
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// endpointLabel reduces a URL to a low-cardinality metrics label.
func endpointLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "unknown"
	}
	path := strings.Trim(u.Path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		// Keep at most two segments; IDs collapse into the first one.
		rest := path[i+1:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			rest = rest[:j]
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return path[:i]
		}
		return path[:i] + "/" + rest
	}
	return path
}
