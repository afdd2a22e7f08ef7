package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"glowdesk/internal/metrics"
	"glowdesk/internal/models"
	"glowdesk/internal/schedule"
)

// BookingSource fetches bookings for a date span from the booking API.
// Satisfied by *salonapi.Client.
type BookingSource interface {
	GetBookings(ctx context.Context, token, startDate, endDate string) ([]models.Booking, error)
}

// Dashboard is the calendar state of one staff session: which date ranges
// have been fetched, the bookings seen so far, resolved service durations
// and the guard that keeps concurrent fetches from duplicating upstream
// calls. All of it is per session and discarded when the session dies.
type Dashboard struct {
	id       string
	source   BookingSource
	resolver *schedule.DurationResolver
	guard    *schedule.FetchGuard
	logger   zerolog.Logger

	mu       sync.Mutex
	token    string
	ranges   *schedule.RangeCache
	bookings map[int64]models.Booking
	services []models.Service
	lastSeen time.Time
}

// NewDashboard creates an empty dashboard for a session.
func NewDashboard(id string, source BookingSource, svcSource schedule.ServiceSource, logger zerolog.Logger) *Dashboard {
	return &Dashboard{
		id:       id,
		source:   source,
		resolver: schedule.NewDurationResolver(svcSource, logger),
		guard:    &schedule.FetchGuard{},
		logger:   logger.With().Str("component", "dashboard").Str("session_id", id).Logger(),
		ranges:   schedule.NewRangeCache(),
		bookings: make(map[int64]models.Booking),
		lastSeen: time.Now(),
	}
}

// ID returns the session ID the dashboard belongs to.
func (d *Dashboard) ID() string { return d.id }

// SetToken stores the staff bearer token for upstream calls.
func (d *Dashboard) SetToken(token string) {
	d.mu.Lock()
	d.token = token
	d.mu.Unlock()
}

// Token returns the stored staff bearer token, empty when not logged in.
func (d *Dashboard) Token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// SetServices updates the local service snapshot used for duration fallback.
func (d *Dashboard) SetServices(services []models.Service) {
	d.mu.Lock()
	d.services = services
	d.mu.Unlock()
}

// touch marks the session as recently used for the idle sweeper.
func (d *Dashboard) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

func (d *Dashboard) idleSince() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// CalendarEvents returns the events inside window, fetching from the booking
// API only for the parts of the window not already covered by this session's
// range cache. With forceRefresh the caches are dropped and the whole window
// is re-fetched. When another fetch for this session is already in flight,
// the call renders from whatever is cached instead of issuing a duplicate
// upstream request.
func (d *Dashboard) CalendarEvents(ctx context.Context, window schedule.DateRange, forceRefresh bool) ([]models.CalendarEvent, error) {
	d.touch()

	if forceRefresh {
		d.mu.Lock()
		d.ranges.Clear()
		d.bookings = make(map[int64]models.Booking)
		d.mu.Unlock()
		d.resolver.Invalidate()
	}

	if d.ranges.Covers(window) {
		metrics.IncRangeCacheHit()
		d.logger.Debug().
			Time("start", window.Start).
			Time("end", window.End).
			Msg("window served from cache")
		return d.render(ctx, window), nil
	}
	metrics.IncRangeCacheMiss()

	if !d.guard.TryAcquire() {
		d.logger.Debug().Msg("fetch already in flight, rendering from cache")
		return d.render(ctx, window), nil
	}
	defer d.guard.Release()

	gaps := d.ranges.Uncovered(window)
	var fetched int
	for _, gap := range gaps {
		// Upstream treats end_date as inclusive, the cache is half-open.
		batch, err := d.source.GetBookings(ctx, d.Token(),
			gap.Start.Format("2006-01-02"),
			gap.End.AddDate(0, 0, -1).Format("2006-01-02"))
		if err != nil {
			// Earlier gaps in this loop were already absorbed and marked
			// covered; their bookings stay, a retry re-fetches only the
			// gaps that actually failed.
			return nil, err
		}
		d.absorb(batch)
		d.ranges.Add(gap)
		fetched += len(batch)
	}

	d.logger.Debug().
		Int("gaps", len(gaps)).
		Int("fetched", fetched).
		Msg("fetched uncovered ranges")

	return d.render(ctx, window), nil
}

// absorb merges a fetched batch into the session booking cache, a fresh
// record superseding a cached one with the same ID. Each gap's batch is
// absorbed as soon as it arrives so a failure on a later gap never discards
// bookings already fetched.
func (d *Dashboard) absorb(batch []models.Booking) {
	if len(batch) == 0 {
		return
	}
	d.mu.Lock()
	for _, b := range batch {
		d.bookings[b.ID] = b
	}
	d.mu.Unlock()
}

// CachedBookings returns a snapshot of every booking this session has seen.
func (d *Dashboard) CachedBookings() []models.Booking {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Booking, 0, len(d.bookings))
	for _, b := range d.bookings {
		out = append(out, b)
	}
	return out
}

// render projects the cached bookings inside the window to calendar events.
func (d *Dashboard) render(ctx context.Context, window schedule.DateRange) []models.CalendarEvent {
	d.mu.Lock()
	cached := make([]models.Booking, 0, len(d.bookings))
	for _, b := range d.bookings {
		cached = append(cached, b)
	}
	services := d.services
	d.mu.Unlock()

	merged := schedule.MergeAndFilter(cached, nil, window, &d.logger)
	return schedule.BookingsToEvents(ctx, merged, services, d.resolver, &d.logger)
}

// StatePurger drops persisted session state rows untouched for longer
// than maxAge. Implemented by the SQLite repository; Redis expires its
// keys by TTL on its own.
type StatePurger interface {
	PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Manager owns the live dashboards, keyed by session ID, and evicts the
// ones idle past a TTL.
type Manager struct {
	source    BookingSource
	svcSource schedule.ServiceSource
	repo      StateRepository
	logger    zerolog.Logger
	idleTTL   time.Duration

	purger   StatePurger
	stateTTL time.Duration

	mu         sync.Mutex
	dashboards map[string]*Dashboard
}

// NewManager creates a session manager. repo may be nil when no persistent
// store is configured; sessions then live only in memory.
func NewManager(source BookingSource, svcSource schedule.ServiceSource, repo StateRepository, idleTTL time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		source:     source,
		svcSource:  svcSource,
		repo:       repo,
		logger:     logger.With().Str("component", "sessions").Logger(),
		idleTTL:    idleTTL,
		dashboards: make(map[string]*Dashboard),
	}
}

// UsePurger makes the sweeper also purge persisted state rows older than
// stateTTL.
func (m *Manager) UsePurger(purger StatePurger, stateTTL time.Duration) {
	m.purger = purger
	m.stateTTL = stateTTL
}

// Create starts a new session and returns its dashboard.
func (m *Manager) Create() *Dashboard {
	id := uuid.NewString()
	d := NewDashboard(id, m.source, m.svcSource, m.logger)
	m.mu.Lock()
	m.dashboards[id] = d
	m.mu.Unlock()
	return d
}

// Get returns the dashboard for a session ID. Unknown IDs are rehydrated
// from the state repository when a persisted state exists (the caches start
// empty; only the token and draft survive a restart).
func (m *Manager) Get(ctx context.Context, id string) (*Dashboard, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	d, ok := m.dashboards[id]
	m.mu.Unlock()
	if ok {
		d.touch()
		return d, true
	}

	if m.repo == nil {
		return nil, false
	}
	state, err := m.repo.GetState(ctx, id)
	if err != nil {
		m.logger.Warn().Err(err).Str("session_id", id).Msg("session state lookup failed")
		return nil, false
	}
	if state == nil {
		return nil, false
	}

	d = NewDashboard(id, m.source, m.svcSource, m.logger)
	d.SetToken(state.Token)
	m.mu.Lock()
	m.dashboards[id] = d
	m.mu.Unlock()
	return d, true
}

// SaveState persists the durable part of a session.
func (m *Manager) SaveState(ctx context.Context, state *State) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.SetState(ctx, state)
}

// LoadState returns the persisted state for a session, nil when none.
func (m *Manager) LoadState(ctx context.Context, id string) (*State, error) {
	if m.repo == nil {
		return nil, nil
	}
	return m.repo.GetState(ctx, id)
}

// Destroy drops a session and its persisted state.
func (m *Manager) Destroy(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.dashboards, id)
	m.mu.Unlock()
	if m.repo != nil {
		if err := m.repo.ClearState(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("session state clear failed")
		}
	}
}

// StartSweeper evicts idle dashboards until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.idleTTL)
	m.mu.Lock()
	var evicted int
	for id, d := range m.dashboards {
		if d.idleSince().Before(cutoff) {
			delete(m.dashboards, id)
			evicted++
		}
	}
	m.mu.Unlock()
	if evicted > 0 {
		m.logger.Info().Int("evicted", evicted).Msg("idle sessions evicted")
	}

	if m.purger != nil {
		purged, err := m.purger.PurgeStale(context.Background(), m.stateTTL)
		if err != nil {
			m.logger.Warn().Err(err).Msg("stale session purge failed")
		} else if purged > 0 {
			m.logger.Info().Int64("purged", purged).Msg("stale session states purged")
		}
	}
}
