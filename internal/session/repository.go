package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"glowdesk/internal/storage"
)

// StateRepository persists session state. GetState returns (nil, nil) for an
// unknown session.
type StateRepository interface {
	GetState(ctx context.Context, sessionID string) (*State, error)
	SetState(ctx context.Context, state *State) error
	ClearState(ctx context.Context, sessionID string) error
}

// --- Redis-backed repository ---

// RedisStateRepository keeps session state in Redis with a TTL. It is the
// primary store when Redis is configured.
type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{client: client, ttl: ttl}
}

func (r *RedisStateRepository) key(sessionID string) string {
	return "glowdesk:session:" + sessionID
}

func (r *RedisStateRepository) GetState(ctx context.Context, sessionID string) (*State, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &state, nil
}

func (r *RedisStateRepository) SetState(ctx context.Context, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := r.client.Set(ctx, r.key(state.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) ClearState(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

// --- SQLite-backed repository ---

// SQLiteStateRepository keeps session state in the local database. It is the
// fallback store and the only store when Redis is not configured.
type SQLiteStateRepository struct {
	db *storage.DB
}

func NewSQLiteStateRepository(db *storage.DB) *SQLiteStateRepository {
	return &SQLiteStateRepository{db: db}
}

func (r *SQLiteStateRepository) GetState(ctx context.Context, sessionID string) (*State, error) {
	data, err := r.db.GetSessionState(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db get session: %w", err)
	}
	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &state, nil
}

func (r *SQLiteStateRepository) SetState(ctx context.Context, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := r.db.SetSessionState(ctx, state.SessionID, string(data)); err != nil {
		return fmt.Errorf("db set session: %w", err)
	}
	return nil
}

func (r *SQLiteStateRepository) ClearState(ctx context.Context, sessionID string) error {
	return r.db.ClearSessionState(ctx, sessionID)
}

// PurgeStale drops persisted state rows untouched for longer than maxAge.
func (r *SQLiteStateRepository) PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	return r.db.PurgeStaleSessions(ctx, maxAge)
}

// --- Failover wrapper ---

const recoveryCheckInterval = time.Minute

// FailoverStateRepository reads and writes through a primary repository and
// falls back to a secondary when the primary errors. After a failure the
// primary is marked down and retried at most once per recoveryCheckInterval,
// so a dead Redis does not add a timeout to every request.
type FailoverStateRepository struct {
	primary  StateRepository
	fallback StateRepository
	logger   zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "session_store").Logger(),
	}
}

// usePrimary reports whether the primary should be tried for this call.
func (f *FailoverStateRepository) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < recoveryCheckInterval {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *FailoverStateRepository) markDown(err error) {
	if f.isDown.CompareAndSwap(false, true) {
		f.logger.Warn().Err(err).Msg("primary session store down, failing over")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverStateRepository) markUp() {
	if f.isDown.CompareAndSwap(true, false) {
		f.logger.Info().Msg("primary session store recovered")
	}
}

func (f *FailoverStateRepository) GetState(ctx context.Context, sessionID string) (*State, error) {
	if f.usePrimary() {
		state, err := f.primary.GetState(ctx, sessionID)
		if err == nil {
			f.markUp()
			return state, nil
		}
		f.markDown(err)
	}
	return f.fallback.GetState(ctx, sessionID)
}

func (f *FailoverStateRepository) SetState(ctx context.Context, state *State) error {
	if f.usePrimary() {
		err := f.primary.SetState(ctx, state)
		if err == nil {
			f.markUp()
			// Mirror to the fallback so a later failover still sees the
			// session. A fallback write error is logged, not returned.
			if ferr := f.fallback.SetState(ctx, state); ferr != nil {
				f.logger.Warn().Err(ferr).Str("session_id", state.SessionID).Msg("fallback session write failed")
			}
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.SetState(ctx, state)
}

func (f *FailoverStateRepository) ClearState(ctx context.Context, sessionID string) error {
	if f.usePrimary() {
		if err := f.primary.ClearState(ctx, sessionID); err == nil {
			f.markUp()
		} else {
			f.markDown(err)
		}
	}
	// Clear the fallback copy regardless, both stores may hold the session.
	return f.fallback.ClearState(ctx, sessionID)
}
