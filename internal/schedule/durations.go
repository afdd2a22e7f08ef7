package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"glowdesk/internal/dates"
	"glowdesk/internal/models"
)

const (
	// DefaultDurationMinutes is used when a service cannot be resolved
	// anywhere. The calendar degrades to one-hour blocks instead of failing.
	DefaultDurationMinutes = 60

	// durationTTL bounds how long a resolved duration is trusted before the
	// API is consulted again.
	durationTTL = 5 * time.Minute
)

// ServiceSource fetches the authoritative service record by name.
type ServiceSource interface {
	ServiceByName(ctx context.Context, name string) (*models.Service, error)
}

type durationEntry struct {
	minutes   int
	fetchedAt time.Time
}

// DurationResolver maps service names to durations in minutes, with a
// short-lived cache so calendar rendering does not hammer the services
// endpoint. Resolution never fails: stale data, a dead API and unknown
// services all degrade to fallbacks.
type DurationResolver struct {
	src    ServiceSource
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]durationEntry
}

// NewDurationResolver creates a resolver backed by src.
func NewDurationResolver(src ServiceSource, logger zerolog.Logger) *DurationResolver {
	return &DurationResolver{
		src:     src,
		logger:  logger.With().Str("component", "durations").Logger(),
		now:     time.Now,
		entries: make(map[string]durationEntry),
	}
}

// Resolve returns the duration in minutes for a service name.
// Order: fresh cache entry (unless forceRefresh), API fetch by name,
// case-insensitive scan of localServices, then the 60-minute default.
func (r *DurationResolver) Resolve(ctx context.Context, serviceName string, localServices []models.Service, forceRefresh bool) int {
	key := strings.ToLower(strings.TrimSpace(serviceName))
	if key == "" {
		r.logger.Warn().Msg("empty service name, using default duration")
		return DefaultDurationMinutes
	}

	if !forceRefresh {
		r.mu.Lock()
		entry, ok := r.entries[key]
		r.mu.Unlock()
		if ok && r.now().Sub(entry.fetchedAt) < durationTTL {
			return entry.minutes
		}
	}

	if r.src != nil {
		svc, err := r.src.ServiceByName(ctx, serviceName)
		if err == nil && svc != nil && svc.Duration > 0 {
			r.mu.Lock()
			r.entries[key] = durationEntry{minutes: svc.Duration, fetchedAt: r.now()}
			r.mu.Unlock()
			return svc.Duration
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("service", serviceName).Msg("service fetch failed, falling back to local data")
		}
	}

	for _, svc := range localServices {
		if strings.EqualFold(svc.Name, serviceName) && svc.Duration > 0 {
			return svc.Duration
		}
	}

	r.logger.Warn().Str("service", serviceName).Msg("service not found anywhere, using default duration")
	return DefaultDurationMinutes
}

// Invalidate drops every cached duration. Used on forced refresh.
func (r *DurationResolver) Invalidate() {
	r.mu.Lock()
	r.entries = make(map[string]durationEntry)
	r.mu.Unlock()
}

// ComputeEndTime parses day+clock as a local datetime and adds the duration.
// Returns false when the inputs cannot be parsed; the caller substitutes a
// default one-hour block rather than omitting the event.
func ComputeEndTime(day, clock string, durationMinutes int) (time.Time, bool) {
	start, ok := dates.Combine(day, clock)
	if !ok {
		return time.Time{}, false
	}
	return start.Add(time.Duration(durationMinutes) * time.Minute), true
}
