package schedule

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"glowdesk/internal/models"
)

type fakeServiceSource struct {
	services map[string]*models.Service
	err      error
	calls    int
}

func (f *fakeServiceSource) ServiceByName(_ context.Context, name string) (*models.Service, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	svc, ok := f.services[name]
	if !ok {
		return nil, errors.New("service not found")
	}
	return svc, nil
}

func TestResolveFromAPI(t *testing.T) {
	src := &fakeServiceSource{services: map[string]*models.Service{
		"Hair Cut": {ID: 1, Name: "Hair Cut", Duration: 30},
	}}
	r := NewDurationResolver(src, zerolog.New(io.Discard))

	got := r.Resolve(context.Background(), "Hair Cut", nil, false)
	assert.Equal(t, 30, got)
	assert.Equal(t, 1, src.calls)
}

func TestResolveCacheHitSkipsAPI(t *testing.T) {
	src := &fakeServiceSource{services: map[string]*models.Service{
		"Hair Cut": {ID: 1, Name: "Hair Cut", Duration: 30},
	}}
	r := NewDurationResolver(src, zerolog.New(io.Discard))
	ctx := context.Background()

	r.Resolve(ctx, "Hair Cut", nil, false)
	got := r.Resolve(ctx, "hair cut", nil, false) // case-insensitive key
	assert.Equal(t, 30, got)
	assert.Equal(t, 1, src.calls, "second resolve must be served from cache")
}

func TestResolveTTLExpiry(t *testing.T) {
	src := &fakeServiceSource{services: map[string]*models.Service{
		"Hair Cut": {ID: 1, Name: "Hair Cut", Duration: 30},
	}}
	r := NewDurationResolver(src, zerolog.New(io.Discard))
	ctx := context.Background()

	current := time.Now()
	r.now = func() time.Time { return current }

	r.Resolve(ctx, "Hair Cut", nil, false)
	current = current.Add(durationTTL + time.Second)
	r.Resolve(ctx, "Hair Cut", nil, false)
	assert.Equal(t, 2, src.calls, "stale entry must trigger a refetch")
}

func TestResolveForceRefreshBypassesCache(t *testing.T) {
	src := &fakeServiceSource{services: map[string]*models.Service{
		"Hair Cut": {ID: 1, Name: "Hair Cut", Duration: 30},
	}}
	r := NewDurationResolver(src, zerolog.New(io.Discard))
	ctx := context.Background()

	r.Resolve(ctx, "Hair Cut", nil, false)
	r.Resolve(ctx, "Hair Cut", nil, true)
	assert.Equal(t, 2, src.calls)
}

func TestResolveFallsBackToLocalServices(t *testing.T) {
	src := &fakeServiceSource{err: errors.New("api down")}
	r := NewDurationResolver(src, zerolog.New(io.Discard))

	local := []models.Service{{Name: "Hair Cut", Duration: 30}}
	got := r.Resolve(context.Background(), "Hair Cut", local, false)
	assert.Equal(t, 30, got, "local service data must serve when the API fails")
}

func TestResolveDefaultsWhenUnknown(t *testing.T) {
	src := &fakeServiceSource{err: errors.New("api down")}
	r := NewDurationResolver(src, zerolog.New(io.Discard))

	got := r.Resolve(context.Background(), "Unknown Service", nil, false)
	assert.Equal(t, DefaultDurationMinutes, got)

	got = r.Resolve(context.Background(), "", nil, false)
	assert.Equal(t, DefaultDurationMinutes, got)
}

func TestResolveNilSource(t *testing.T) {
	r := NewDurationResolver(nil, zerolog.New(io.Discard))
	local := []models.Service{{Name: "Coloring", Duration: 90}}
	assert.Equal(t, 90, r.Resolve(context.Background(), "coloring", local, false))
}

func TestComputeEndTime(t *testing.T) {
	got, ok := ComputeEndTime("2024-03-01", "14:30", 45)
	if !ok {
		t.Fatal("expected end time computation to succeed")
	}
	want := time.Date(2024, 3, 1, 15, 15, 0, 0, time.Local)
	assert.True(t, got.Equal(want), "got %v, want %v", got, want)

	_, ok = ComputeEndTime("2024-03-01", "x", 45)
	assert.False(t, ok)
}
