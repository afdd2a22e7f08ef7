package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glowdesk/internal/models"
	"glowdesk/internal/schedule"
)

type fakeBookingSource struct {
	mu       sync.Mutex
	calls    int
	spans    [][2]string
	bookings []models.Booking
	perSpan  map[string][]models.Booking // keyed by start date, wins over bookings
	errOn    map[string]error            // keyed by start date, fires once
	release  chan struct{}               // when set, GetBookings blocks until closed
}

func (f *fakeBookingSource) GetBookings(ctx context.Context, token, startDate, endDate string) ([]models.Booking, error) {
	f.mu.Lock()
	f.calls++
	f.spans = append(f.spans, [2]string{startDate, endDate})
	release := f.release
	if err, ok := f.errOn[startDate]; ok {
		delete(f.errOn, startDate)
		f.mu.Unlock()
		return nil, err
	}
	if batch, ok := f.perSpan[startDate]; ok {
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return f.bookings, nil
}

func (f *fakeBookingSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func window(startDay, endDay string) schedule.DateRange {
	start, _ := time.ParseInLocation("2006-01-02", startDay, time.Local)
	end, _ := time.ParseInLocation("2006-01-02", endDay, time.Local)
	return schedule.DateRange{Start: start, End: end}
}

func newTestDashboard(src *fakeBookingSource) *Dashboard {
	logger := zerolog.New(io.Discard)
	return NewDashboard("test", src, nil, logger)
}

func TestCalendarEventsFetchesOnceForCoveredWindow(t *testing.T) {
	src := &fakeBookingSource{bookings: []models.Booking{
		{ID: 1, Name: "Dana", Date: "2024-03-04", Time: "10:00", Service: "Hair Cut", Status: "confirmed"},
	}}
	d := newTestDashboard(src)
	ctx := context.Background()

	w := window("2024-03-04", "2024-03-11")
	events, err := d.CalendarEvents(ctx, w, false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, src.callCount())

	// Same window again: served entirely from cache, no upstream call.
	events, err = d.CalendarEvents(ctx, w, false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, src.callCount())
}

func TestCalendarEventsFetchesOnlyGaps(t *testing.T) {
	src := &fakeBookingSource{}
	d := newTestDashboard(src)
	ctx := context.Background()

	_, err := d.CalendarEvents(ctx, window("2024-03-04", "2024-03-11"), false)
	require.NoError(t, err)
	require.Equal(t, 1, src.callCount())

	// Extending the window fetches only the uncovered tail. The upstream
	// span is inclusive, so a cached [04,11) window means the gap [11,18)
	// is requested as 2024-03-11..2024-03-17.
	_, err = d.CalendarEvents(ctx, window("2024-03-04", "2024-03-18"), false)
	require.NoError(t, err)
	require.Equal(t, 2, src.callCount())
	assert.Equal(t, [2]string{"2024-03-11", "2024-03-17"}, src.spans[1])
}

func TestCalendarEventsKeepsFetchedGapsOnLaterError(t *testing.T) {
	src := &fakeBookingSource{
		bookings: []models.Booking{
			{ID: 1, Name: "Dana", Date: "2024-03-04", Time: "10:00", Service: "Hair Cut", Status: "confirmed"},
		},
		perSpan: map[string][]models.Booking{
			"2024-02-26": {
				{ID: 2, Name: "Eli", Date: "2024-02-29", Time: "09:00", Service: "Coloring", Status: "pending"},
			},
			"2024-03-11": {
				{ID: 3, Name: "Kim", Date: "2024-03-12", Time: "11:00", Service: "Hair Cut", Status: "confirmed"},
			},
		},
		errOn: map[string]error{"2024-03-11": errors.New("upstream down")},
	}
	d := newTestDashboard(src)
	ctx := context.Background()

	_, err := d.CalendarEvents(ctx, window("2024-03-04", "2024-03-11"), false)
	require.NoError(t, err)

	// Widening the window yields a leading and a trailing gap; the trailing
	// fetch fails after the leading one succeeded.
	wide := window("2024-02-26", "2024-03-18")
	_, err = d.CalendarEvents(ctx, wide, false)
	require.Error(t, err)

	// The retry re-fetches only the failed gap and the events include the
	// bookings from every successfully fetched gap.
	events, err := d.CalendarEvents(ctx, wide, false)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"2024-03-11", "2024-03-17"}, src.spans[len(src.spans)-1])

	ids := make(map[string]bool, len(events))
	for _, e := range events {
		ids[e.ID] = true
	}
	assert.True(t, ids["1"], "booking from the original window missing")
	assert.True(t, ids["2"], "booking from the gap fetched before the failure missing")
	assert.True(t, ids["3"], "booking from the retried gap missing")
}

func TestCalendarEventsForceRefresh(t *testing.T) {
	src := &fakeBookingSource{}
	d := newTestDashboard(src)
	ctx := context.Background()
	w := window("2024-03-04", "2024-03-11")

	_, err := d.CalendarEvents(ctx, w, false)
	require.NoError(t, err)
	_, err = d.CalendarEvents(ctx, w, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount(), "force refresh bypasses the range cache")
}

func TestCalendarEventsSuppressesOverlappingFetch(t *testing.T) {
	release := make(chan struct{})
	src := &fakeBookingSource{release: release}
	d := newTestDashboard(src)
	ctx := context.Background()
	w := window("2024-03-04", "2024-03-11")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.CalendarEvents(ctx, w, false)
	}()

	// Wait for the first fetch to be in flight.
	for src.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// The overlapping request renders from cache without a second call.
	events, err := d.CalendarEvents(ctx, w, false)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 1, src.callCount())

	close(release)
	<-done
}

func TestManagerSessionLifecycle(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := &fakeBookingSource{}
	m := NewManager(src, nil, nil, time.Hour, logger)
	ctx := context.Background()

	d := m.Create()
	require.NotEmpty(t, d.ID())

	got, ok := m.Get(ctx, d.ID())
	require.True(t, ok)
	assert.Same(t, d, got)

	_, ok = m.Get(ctx, "nope")
	assert.False(t, ok)

	m.Destroy(ctx, d.ID())
	_, ok = m.Get(ctx, d.ID())
	assert.False(t, ok)
}

func TestManagerSweepEvictsIdleSessions(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := &fakeBookingSource{}
	m := NewManager(src, nil, nil, time.Minute, logger)
	ctx := context.Background()

	stale := m.Create()
	stale.mu.Lock()
	stale.lastSeen = time.Now().Add(-2 * time.Minute)
	stale.mu.Unlock()

	live := m.Create()

	m.sweep()

	_, ok := m.Get(ctx, stale.ID())
	assert.False(t, ok)
	_, ok = m.Get(ctx, live.ID())
	assert.True(t, ok)
}

type fakePurger struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
}

func (f *fakePurger) PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.maxAge = maxAge
	return 1, nil
}

func TestManagerSweepPurgesPersistedState(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := &fakeBookingSource{}
	m := NewManager(src, nil, nil, time.Minute, logger)

	purger := &fakePurger{}
	m.UsePurger(purger, 24*time.Hour)

	m.sweep()

	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, 24*time.Hour, purger.maxAge)
}

func TestManagerRehydratesFromRepository(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := &fakeBookingSource{}
	repo := new(mockRepo)
	m := NewManager(src, nil, repo, time.Hour, logger)
	ctx := context.Background()

	state := &State{SessionID: "persisted", Token: "tok"}
	repo.On("GetState", ctx, "persisted").Return(state, nil).Once()

	d, ok := m.Get(ctx, "persisted")
	require.True(t, ok)
	assert.Equal(t, "tok", d.Token())
	repo.AssertExpectations(t)

	// Second lookup hits the in-memory map, not the repository.
	_, ok = m.Get(ctx, "persisted")
	assert.True(t, ok)
}
