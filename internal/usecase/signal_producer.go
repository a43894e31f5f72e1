package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SignalForge/internal/dispatch"
	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/engine"
	"SignalForge/pkg/logger"
)

// Evaluator turns one computation result into an optional signal.
type Evaluator interface {
	// Evaluate returns the dispatch priority and whether a signal should
	// be emitted for this cycle.
	Evaluate(res *engine.Result) (models.Priority, bool)
}

// MASpreadEvaluator emits on every cycle and grades priority by the
// relative spread between the fastest and slowest moving average. A wide
// spread means the averages are diverging and the signal is more urgent.
type MASpreadEvaluator struct {
	FastPeriod int
	SlowPeriod int
}

func (e *MASpreadEvaluator) Evaluate(res *engine.Result) (models.Priority, bool) {
	fast, okF := res.Values[fmt.Sprintf("sma_%d", e.FastPeriod)]
	slow, okS := res.Values[fmt.Sprintf("sma_%d", e.SlowPeriod)]
	if !okF || !okS || slow == 0 {
		return models.PriorityLow, false
	}
	spread := math.Abs(fast-slow) / math.Abs(slow)
	switch {
	case spread >= 0.05:
		return models.PriorityUrgent, true
	case spread >= 0.02:
		return models.PriorityHigh, true
	case spread >= 0.005:
		return models.PriorityNormal, true
	default:
		return models.PriorityLow, true
	}
}

// SignalProducer drives periodic computation cycles over the configured
// (pair, timeframe) universe and publishes the resulting signals.
type SignalProducer struct {
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	evaluator  Evaluator
	pairs      []string
	timeframes []models.Timeframe
	interval   time.Duration
	metrics    drepo.Metrics
	log        *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSignalProducer creates a producer. A nil evaluator defaults to the
// MA-spread grading over the first two configured periods.
func NewSignalProducer(
	eng *engine.Engine,
	d *dispatch.Dispatcher,
	ev Evaluator,
	pairs []string,
	timeframes []models.Timeframe,
	interval time.Duration,
	metrics drepo.Metrics,
	log *logger.Logger,
) *SignalProducer {
	if ev == nil {
		periods := eng.Periods()
		ev = &MASpreadEvaluator{FastPeriod: periods[0], SlowPeriod: periods[len(periods)-1]}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &SignalProducer{
		engine:     eng,
		dispatcher: d,
		evaluator:  ev,
		pairs:      pairs,
		timeframes: timeframes,
		interval:   interval,
		metrics:    metrics,
		log:        log,
	}
}

// Start launches the cycle loop. The first cycle runs immediately.
func (p *SignalProducer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		p.RunCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RunCycle(ctx)
			}
		}
	}()
}

// Stop halts the cycle loop and waits for an in-flight cycle to finish.
func (p *SignalProducer) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle processes every configured (pair, timeframe) once. A failing
// pair never blocks the rest of the universe.
func (p *SignalProducer) RunCycle(ctx context.Context) {
	for _, pair := range p.pairs {
		for _, tf := range p.timeframes {
			if ctx.Err() != nil {
				return
			}
			p.processOne(ctx, pair, tf)
		}
	}
}

func (p *SignalProducer) processOne(ctx context.Context, pair string, tf models.Timeframe) {
	res, err := p.engine.Process(ctx, pair, tf)
	if err != nil {
		var dsErr *engine.DataSourceError
		if errors.As(err, &dsErr) {
			p.log.Warn("candle source unavailable, skipping pair",
				logger.String("pair", pair),
				logger.String("timeframe", string(tf)),
				logger.Error(err))
			return
		}
		p.log.Error("computation cycle failed",
			logger.String("pair", pair),
			logger.String("timeframe", string(tf)),
			logger.Error(err))
		return
	}

	prio, emit := p.evaluator.Evaluate(res)
	if !emit {
		return
	}

	sig := models.NewSignal(pair, tf, res.Values, prio)
	accepted, rejected := p.dispatcher.Publish(sig)
	p.metrics.RecordSignal(pair, string(tf))
	p.log.Debug("signal published",
		logger.String("pair", pair),
		logger.String("timeframe", string(tf)),
		logger.String("priority", prio.String()),
		logger.Int("accepted", accepted),
		logger.Int("rejected", rejected))
}
