// Package schedule holds the client-side availability logic for the staff
// calendar: tracking which date windows have already been fetched from the
// booking API, merging fresh and cached bookings, and resolving service
// durations for end-time computation.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// DateRange is a half-open [Start, End) interval at day granularity.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the range is degenerate (empty or inverted).
// Degenerate ranges are treated as already covered everywhere.
func (r DateRange) IsZero() bool {
	return !r.Start.Before(r.End)
}

// Contains reports whether other lies fully inside r.
func (r DateRange) Contains(other DateRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// touches reports whether the two ranges overlap or share a boundary.
// Adjacency tolerance is deliberately zero-gap: a fetch returns one
// contiguous span, so only spans that actually meet are merged.
func (r DateRange) touches(other DateRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// RangeCache remembers which date ranges have been fetched this session.
// After every Add the stored ranges are non-overlapping, non-touching and
// sorted by start; Add is idempotent and order-independent.
type RangeCache struct {
	mu     sync.Mutex
	ranges []DateRange
}

// NewRangeCache returns an empty cache.
func NewRangeCache() *RangeCache {
	return &RangeCache{}
}

// Covers reports whether r is fully contained in a single cached range.
// Coverage is never synthesized from two disjoint cached ranges; a fetch
// call returns one contiguous span, so coverage must be contiguous too.
func (c *RangeCache) Covers(r DateRange) bool {
	if r.IsZero() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cached := range c.ranges {
		if cached.Contains(r) {
			return true
		}
	}
	return false
}

// Uncovered partitions r into the sub-ranges not covered by any cached
// range: the gap before the first cached range, gaps between consecutive
// cached ranges, and the tail after the last one. Each returned sub-range
// is a candidate fetch request. An empty result means r is fully covered.
func (c *RangeCache) Uncovered(r DateRange) []DateRange {
	if r.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var gaps []DateRange
	cursor := r.Start
	for _, cached := range c.ranges {
		if !cached.End.After(cursor) {
			continue
		}
		if !cached.Start.Before(r.End) {
			break
		}
		if cached.Start.After(cursor) {
			gaps = append(gaps, DateRange{Start: cursor, End: minTime(r.End, cached.Start)})
		}
		cursor = maxTime(cursor, cached.End)
		if !cursor.Before(r.End) {
			return gaps
		}
	}
	if cursor.Before(r.End) {
		gaps = append(gaps, DateRange{Start: cursor, End: r.End})
	}
	return gaps
}

// Add records a freshly fetched range, merging it with every cached range
// it overlaps or touches. A range that bridges two cached ranges collapses
// all three into one.
func (c *RangeCache) Add(r DateRange) {
	if r.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := r
	kept := c.ranges[:0]
	for _, cached := range c.ranges {
		if merged.touches(cached) {
			merged.Start = minTime(merged.Start, cached.Start)
			merged.End = maxTime(merged.End, cached.End)
		} else {
			kept = append(kept, cached)
		}
	}
	kept = append(kept, merged)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start.Before(kept[j].Start) })
	c.ranges = kept
}

// Clear drops all cached ranges. Used on forced refresh.
func (c *RangeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranges = nil
}

// Ranges returns a snapshot of the cached ranges, sorted by start.
func (c *RangeCache) Ranges() []DateRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DateRange, len(c.ranges))
	copy(out, c.ranges)
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
