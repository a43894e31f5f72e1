package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// Config tunes the computation engine.
type Config struct {
	Periods        []int // SMA periods computed per (pair, tf)
	HistoryLimit   int   // candles fetched on the full path
	IncrementalCap int   // max tail length on the incremental path
}

// Result is the outcome of one computation cycle for a (pair, timeframe).
type Result struct {
	Values      map[string]float64
	Incremental bool
	LastCandle  time.Time
}

// Engine computes moving averages over candle streams, incrementally when
// cached state allows it and from full history otherwise.
type Engine struct {
	source  repository.CandleSource
	states  *StateStore
	metrics repository.Metrics
	log     *logger.Logger
	cfg     Config
}

// New creates a computation engine.
func New(source repository.CandleSource, states *StateStore, metrics repository.Metrics, log *logger.Logger, cfg Config) *Engine {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	if cfg.IncrementalCap <= 0 {
		cfg.IncrementalCap = 10
	}
	if len(cfg.Periods) == 0 {
		cfg.Periods = []int{20, 50}
	}
	return &Engine{
		source:  source,
		states:  states,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
	}
}

// Process runs one computation cycle for (pair, tf). It prefers the cheap
// incremental path and falls back to full recomputation whenever cached
// state is absent, stale, or the tail of new candles exceeds the cap.
func (e *Engine) Process(ctx context.Context, pair string, tf models.Timeframe) (*Result, error) {
	start := time.Now()
	res, err := e.process(ctx, pair, tf)
	if err != nil {
		e.metrics.RecordError("engine_cycle")
		return nil, err
	}
	e.metrics.RecordCycle(pair, string(tf), res.Incremental, time.Since(start).Seconds())
	return res, nil
}

func (e *Engine) process(ctx context.Context, pair string, tf models.Timeframe) (*Result, error) {
	cursor, ok := e.states.GetCursor(ctx, pair, tf)
	if !ok {
		// First run, expired cursor, or cache outage: full recomputation.
		return e.full(ctx, pair, tf)
	}

	// Fetch one candle beyond the cap so a gap is distinguishable from a
	// tail that exactly fills it.
	tail, err := e.source.Since(ctx, pair, tf, cursor.LastProcessed, e.cfg.IncrementalCap+1)
	if err != nil {
		return nil, &DataSourceError{Pair: pair, Timeframe: tf, Err: err}
	}

	if len(tail) == 0 {
		// Nothing new. Serve cached values; a cold MA cache under a live
		// cursor forces exactly one full recompute instead.
		if values, ok := e.cachedValues(ctx, pair, tf); ok {
			return &Result{Values: values, Incremental: true, LastCandle: cursor.LastProcessed}, nil
		}
		return e.full(ctx, pair, tf)
	}

	if len(tail) > e.cfg.IncrementalCap {
		// Gap larger than the incremental math can patch continuously.
		return e.full(ctx, pair, tf)
	}

	res, err := e.incremental(ctx, pair, tf, tail)
	if err != nil {
		if errors.Is(err, errInconsistentState) {
			e.log.Warn("incremental state inconsistent, recomputing from history",
				logger.String("pair", pair),
				logger.String("timeframe", string(tf)))
			return e.full(ctx, pair, tf)
		}
		return nil, err
	}
	return res, nil
}

// full fetches the historical window and rebuilds all cached state from
// scratch.
func (e *Engine) full(ctx context.Context, pair string, tf models.Timeframe) (*Result, error) {
	candles, err := e.source.Latest(ctx, pair, tf, e.cfg.HistoryLimit)
	if err != nil {
		return nil, &DataSourceError{Pair: pair, Timeframe: tf, Err: err}
	}
	if len(candles) == 0 {
		return nil, &DataSourceError{Pair: pair, Timeframe: tf, Err: ErrNoCandles}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := candles[len(candles)-1].Time

	values := make(map[string]float64, len(e.cfg.Periods))
	now := time.Now().UTC()
	for _, period := range e.cfg.Periods {
		window := closes
		if len(window) > period {
			window = window[len(window)-period:]
		}
		st := &MAState{
			Window:    append([]float64(nil), window...),
			Value:     mean(window),
			UpdatedAt: now,
		}
		values[valueKey(period)] = st.Value
		if err := e.states.SetMAState(ctx, pair, tf, period, st); err != nil {
			// Cache degradation is never fatal; the next cycle recomputes.
			e.log.Warn("ma state write failed", logger.String("pair", pair), logger.Error(err))
			e.metrics.RecordError("cache_write")
		}
	}

	if err := e.states.SetCursor(ctx, pair, tf, last); err != nil {
		e.log.Warn("cursor write failed", logger.String("pair", pair), logger.Error(err))
		e.metrics.RecordError("cache_write")
	}

	return &Result{Values: values, Incremental: false, LastCandle: last}, nil
}

// incremental folds the new tail into every cached window. All windows are
// updated in memory first so a mid-path failure never leaves partially
// persisted state behind.
func (e *Engine) incremental(ctx context.Context, pair string, tf models.Timeframe, tail []models.Candle) (*Result, error) {
	updated := make(map[int]*MAState, len(e.cfg.Periods))
	for _, period := range e.cfg.Periods {
		st, ok := e.states.GetMAState(ctx, pair, tf, period)
		if !ok || len(st.Window) == 0 {
			return nil, errInconsistentState
		}
		for _, c := range tail {
			st.Append(c.Close, period)
		}
		updated[period] = st
	}

	values := make(map[string]float64, len(updated))
	for period, st := range updated {
		values[valueKey(period)] = st.Value
		if err := e.states.SetMAState(ctx, pair, tf, period, st); err != nil {
			e.log.Warn("ma state write failed", logger.String("pair", pair), logger.Error(err))
			e.metrics.RecordError("cache_write")
		}
	}

	last := tail[len(tail)-1].Time
	if err := e.states.SetCursor(ctx, pair, tf, last); err != nil {
		e.log.Warn("cursor write failed", logger.String("pair", pair), logger.Error(err))
		e.metrics.RecordError("cache_write")
	}

	return &Result{Values: values, Incremental: true, LastCandle: last}, nil
}

// cachedValues serves the no-new-candles case from cache alone.
func (e *Engine) cachedValues(ctx context.Context, pair string, tf models.Timeframe) (map[string]float64, bool) {
	values := make(map[string]float64, len(e.cfg.Periods))
	for _, period := range e.cfg.Periods {
		st, ok := e.states.GetMAState(ctx, pair, tf, period)
		if !ok {
			return nil, false
		}
		values[valueKey(period)] = st.Value
	}
	return values, true
}

// Periods returns the configured SMA periods.
func (e *Engine) Periods() []int { return e.cfg.Periods }

func valueKey(period int) string {
	return fmt.Sprintf("sma_%d", period)
}
