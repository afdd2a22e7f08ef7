package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"glowdesk/internal/models"
)

// MergeAndFilter combines this session's cached bookings with a freshly
// fetched increment and returns the de-duplicated list falling inside the
// display window. Uniqueness is by booking ID with last-seen-wins, so a
// fresh record supersedes a stale cached one. Records whose date or time
// cannot be parsed are dropped with a diagnostic; a bad record never aborts
// the batch.
func MergeAndFilter(cached, fresh []models.Booking, window DateRange, logger *zerolog.Logger) []models.Booking {
	byID := make(map[int64]models.Booking, len(cached)+len(fresh))
	order := make([]int64, 0, len(cached)+len(fresh))

	for _, b := range cached {
		if _, seen := byID[b.ID]; !seen {
			order = append(order, b.ID)
		}
		byID[b.ID] = b
	}
	for _, b := range fresh {
		if _, seen := byID[b.ID]; !seen {
			order = append(order, b.ID)
		}
		byID[b.ID] = b
	}

	out := make([]models.Booking, 0, len(order))
	for _, id := range order {
		b := byID[id]
		start, ok := b.StartsAt()
		if !ok {
			if logger != nil {
				logger.Warn().
					Int64("booking_id", b.ID).
					Str("date", b.Date).
					Str("time", b.Time).
					Msg("dropping booking with unparsable date/time")
			}
			continue
		}
		if inWindow(start, window) {
			out = append(out, b)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		si, _ := out[i].StartsAt()
		sj, _ := out[j].StartsAt()
		if si.Equal(sj) {
			return out[i].ID < out[j].ID
		}
		return si.Before(sj)
	})
	return out
}

func inWindow(t time.Time, w DateRange) bool {
	if w.IsZero() {
		return false
	}
	return !t.Before(w.Start) && t.Before(w.End)
}

// FetchGuard serializes calendar fetches for one dashboard session. A
// second overlapping request is suppressed instead of issuing a duplicate
// upstream call; the loser renders from cache. The guard is released when
// the in-flight call settles, success or failure.
type FetchGuard struct {
	mu   sync.Mutex
	busy bool
}

// TryAcquire reports whether the caller may start a fetch. A false result
// means another fetch is already in flight.
func (g *FetchGuard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	return true
}

// Release frees the guard. Safe to call from a defer on every code path.
func (g *FetchGuard) Release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}
