package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/ratelimit"
	"SignalForge/pkg/logger"
)

// Config tunes the dispatcher.
type Config struct {
	Workers          int
	MaxRetries       int
	BreakerThreshold int
	BreakerTimeout   time.Duration
	DeliveryTimeout  time.Duration
}

// Dispatcher drains the priority queues with a fixed worker pool and
// delivers notifications through per-channel rate limits and circuit
// breakers. Producers never block on delivery; a stopped dispatcher
// discards whatever is still queued (at-most-delivered semantics).
type Dispatcher struct {
	queue    *Queue
	channels map[string]repository.DeliveryChannel
	limiter  *ratelimit.Limiter
	metrics  repository.Metrics
	log      *logger.Logger
	cfg      Config

	mu       sync.Mutex
	breakers map[string]*Breaker
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a dispatcher over the given delivery channels.
func New(
	channels []repository.DeliveryChannel,
	queue *Queue,
	limiter *ratelimit.Limiter,
	metrics repository.Metrics,
	log *logger.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}

	byID := make(map[string]repository.DeliveryChannel, len(channels))
	for _, ch := range channels {
		byID[ch.ID()] = ch
	}

	return &Dispatcher{
		queue:    queue,
		channels: byID,
		limiter:  limiter,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		breakers: make(map[string]*Breaker, len(channels)),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	// Fresh context per run so a dispatcher can be restarted after Stop.
	d.ctx, d.cancel = context.WithCancel(context.Background())
	ctx := d.ctx
	d.mu.Unlock()

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.log.Info("dispatcher started",
		logger.Int("workers", d.cfg.Workers),
		logger.Int("channels", len(d.channels)),
		logger.Int("queue_capacity", d.queue.Capacity()))
	return nil
}

// Stop cancels all workers. Still-queued notifications are discarded, not
// drained.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		d.log.Warn("timeout waiting for dispatch workers", logger.Error(ctx.Err()))
		return fmt.Errorf("dispatcher stop: %w", ctx.Err())
	case <-done:
		d.log.Info("dispatcher stopped")
		return nil
	}
}

// Publish fans a signal out to every configured channel at the signal's
// priority. Rejected (full-queue) notifications are counted and reported to
// the caller, never buffered.
func (d *Dispatcher) Publish(sig *models.Signal) (accepted, rejected int) {
	for id := range d.channels {
		if d.Enqueue(models.NewNotification(sig, id), sig.Priority) {
			accepted++
		} else {
			rejected++
		}
	}
	return accepted, rejected
}

// Enqueue offers one notification at the given priority. Returns false when
// that priority's queue is full; callers may drop or downgrade.
func (d *Dispatcher) Enqueue(n *models.Notification, p models.Priority) bool {
	ok := d.queue.Enqueue(n, p)
	if !ok {
		n.Status = models.StatusDropped
		d.metrics.RecordDropped(n.Channel, "queue_full")
		d.log.Warn("dispatch queue full, rejecting",
			logger.String("channel", n.Channel),
			logger.String("priority", p.String()))
	}
	d.metrics.RecordQueueDepth(p.String(), d.queue.Depth(p))
	return ok
}

// QueueDepths exposes per-class depths for the ops API.
func (d *Dispatcher) QueueDepths() map[string]int {
	return d.queue.Depths()
}

// BreakerStates exposes per-channel breaker states for the ops API.
func (d *Dispatcher) BreakerStates() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.channels))
	for id := range d.channels {
		if b, ok := d.breakers[id]; ok {
			out[id] = b.State().String()
		} else {
			out[id] = BreakerClosed.String()
		}
	}
	return out
}

// Channels lists the configured channel IDs.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.channels))
	for id := range d.channels {
		out = append(out, id)
	}
	return out
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.log.Debug("dispatch worker started", logger.Int("worker_id", id))

	for {
		n, p, err := d.queue.Dequeue(ctx)
		if err != nil {
			d.log.Debug("dispatch worker stopping", logger.Int("worker_id", id))
			return
		}
		d.metrics.RecordQueueDepth(p.String(), d.queue.Depth(p))
		d.handle(ctx, n, p)
	}
}

func (d *Dispatcher) handle(ctx context.Context, n *models.Notification, p models.Priority) {
	n.Status = models.StatusInFlight

	ch, ok := d.channels[n.Channel]
	if !ok {
		n.Status = models.StatusDropped
		d.metrics.RecordDropped(n.Channel, "unknown_channel")
		d.log.Error("notification for unknown channel", logger.String("channel", n.Channel))
		return
	}

	// Per-channel rate budget; workers suspend here rather than dropping.
	if !d.waitForBudget(ctx, n.Channel) {
		return // shutting down, discard
	}

	err := d.breaker(n.Channel).Call(func() error {
		deliverCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		defer cancel()
		return ch.Deliver(deliverCtx, n.Signal)
	})

	if err == nil {
		n.Status = models.StatusDelivered
		d.metrics.RecordDelivery(n.Channel, "delivered")
		d.log.Debug("notification delivered",
			logger.String("channel", n.Channel),
			logger.String("signal", n.Signal.ID.String()),
			logger.Int("attempt", n.Attempts+1))
		return
	}

	if errors.Is(err, ErrCircuitOpen) {
		// Deliberate shedding, not a delivery failure.
		d.metrics.RecordDelivery(n.Channel, "circuit_open")
		d.log.Debug("delivery short-circuited", logger.String("channel", n.Channel))
	} else {
		d.metrics.RecordDelivery(n.Channel, "failed")
		d.log.Warn("delivery failed",
			logger.String("channel", n.Channel),
			logger.Int("attempt", n.Attempts+1),
			logger.Error(err))
	}

	d.retry(n, p)
}

// retry requeues at the same priority while under the retry bound, else
// marks the notification dropped.
func (d *Dispatcher) retry(n *models.Notification, p models.Priority) {
	n.Attempts++
	if n.Attempts < d.cfg.MaxRetries {
		if !d.queue.Enqueue(n, p) {
			n.Status = models.StatusDropped
			d.metrics.RecordDropped(n.Channel, "queue_full")
		}
		return
	}

	n.Status = models.StatusDropped
	d.metrics.RecordDropped(n.Channel, "retries_exhausted")
	d.log.Warn("notification dropped after retries",
		logger.String("channel", n.Channel),
		logger.String("signal", n.Signal.ID.String()),
		logger.Int("attempts", n.Attempts))
}

// waitForBudget polls the sliding-window limiter until the channel has
// budget again. Returns false only when the dispatcher is stopping.
func (d *Dispatcher) waitForBudget(ctx context.Context, channel string) bool {
	for !d.limiter.Allow(channel) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
	return true
}

// breaker returns the channel's breaker, creating it on first use.
func (d *Dispatcher) breaker(channel string) *Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.breakers[channel]
	if !ok {
		b = NewBreaker(d.cfg.BreakerThreshold, d.cfg.BreakerTimeout)
		b.OnStateChange = func(from, to BreakerState) {
			d.metrics.RecordBreakerState(channel, int(to))
			d.log.Warn("breaker state changed",
				logger.String("channel", channel),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}
		d.breakers[channel] = b
	}
	return b
}
