package engine

import (
	"context"
	"errors"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/cache"
	"SignalForge/pkg/logger"
)

// StateStore persists MAState and Cursor records in the cache backend.
//
// Every backing failure, including unreachability, degrades to a miss so the
// engine can always fall back to a full recomputation. A miss is never a
// correctness error here.
type StateStore struct {
	cache     cache.Service
	log       *logger.Logger
	stateTTL  time.Duration
	cursorTTL time.Duration
}

// NewStateStore creates a state store. The cursor TTL should outlive the
// state TTL so a cold MA cache still knows where to resume.
func NewStateStore(c cache.Service, log *logger.Logger, stateTTL, cursorTTL time.Duration) *StateStore {
	if stateTTL <= 0 {
		stateTTL = time.Hour
	}
	if cursorTTL <= 0 {
		cursorTTL = 24 * time.Hour
	}
	return &StateStore{
		cache:     c,
		log:       log,
		stateTTL:  stateTTL,
		cursorTTL: cursorTTL,
	}
}

// GetMAState returns the cached window, false on miss or any backing error.
func (s *StateStore) GetMAState(ctx context.Context, pair string, tf models.Timeframe, period int) (*MAState, bool) {
	var st MAState
	if err := s.cache.Get(ctx, maKey(pair, tf, period), &st); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Debug("ma state read degraded to miss",
				logger.String("pair", pair),
				logger.String("timeframe", string(tf)),
				logger.Error(err))
		}
		return nil, false
	}
	return &st, true
}

// SetMAState writes the window with the state TTL.
func (s *StateStore) SetMAState(ctx context.Context, pair string, tf models.Timeframe, period int, st *MAState) error {
	return s.cache.Set(ctx, maKey(pair, tf, period), st, s.stateTTL)
}

// GetCursor returns the high-water mark, false on miss or any backing error.
func (s *StateStore) GetCursor(ctx context.Context, pair string, tf models.Timeframe) (*Cursor, bool) {
	var c Cursor
	if err := s.cache.Get(ctx, cursorKey(pair, tf), &c); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Debug("cursor read degraded to miss",
				logger.String("pair", pair),
				logger.String("timeframe", string(tf)),
				logger.Error(err))
		}
		return nil, false
	}
	return &c, true
}

// SetCursor advances the high-water mark. The cursor never moves backwards:
// a write with an older timestamp than the stored one is a no-op.
func (s *StateStore) SetCursor(ctx context.Context, pair string, tf models.Timeframe, t time.Time) error {
	if existing, ok := s.GetCursor(ctx, pair, tf); ok && existing.LastProcessed.After(t) {
		return nil
	}
	return s.cache.Set(ctx, cursorKey(pair, tf), &Cursor{LastProcessed: t}, s.cursorTTL)
}

// Drop removes cached state for one (pair, tf), forcing the next cycle onto
// the full path. Used by the ops API.
func (s *StateStore) Drop(ctx context.Context, pair string, tf models.Timeframe, periods []int) error {
	keys := make([]string, 0, len(periods)+1)
	for _, p := range periods {
		keys = append(keys, maKey(pair, tf, p))
	}
	keys = append(keys, cursorKey(pair, tf))
	return s.cache.Delete(ctx, keys...)
}
