package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/ratelimit"
	"SignalForge/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordCycle(string, string, bool, float64) {}
func (nopMetrics) RecordSignal(string, string)               {}
func (nopMetrics) RecordDelivery(string, string)             {}
func (nopMetrics) RecordDropped(string, string)              {}
func (nopMetrics) RecordError(string)                        {}
func (nopMetrics) RecordQueueDepth(string, int)              {}
func (nopMetrics) RecordBreakerState(string, int)            {}

// fakeChannel fails its first failN deliveries, then succeeds.
type fakeChannel struct {
	id    string
	mu    sync.Mutex
	calls int
	failN int
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Deliver(_ context.Context, _ *models.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failN {
		return errors.New("downstream unavailable")
	}
	return nil
}

func (c *fakeChannel) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestDispatcher(t *testing.T, ch *fakeChannel, cfg Config) *Dispatcher {
	t.Helper()
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	d := New(
		[]repository.DeliveryChannel{ch},
		NewQueue(16),
		ratelimit.New(time.Hour, 10_000),
		nopMetrics{},
		testLogger(t),
		cfg,
	)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func waitStatus(t *testing.T, n *models.Notification, want models.NotificationStatus) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if n.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("notification never reached %s, stuck at %s", want, n.Status)
}

func TestDeliverySuccess(t *testing.T) {
	ch := &fakeChannel{id: "tg"}
	d := newTestDispatcher(t, ch, Config{MaxRetries: 3, BreakerThreshold: 10, BreakerTimeout: time.Minute})

	n := note("tg", models.PriorityHigh)
	if !d.Enqueue(n, models.PriorityHigh) {
		t.Fatal("enqueue rejected")
	}
	waitStatus(t, n, models.StatusDelivered)
	if ch.callCount() != 1 {
		t.Fatalf("expected 1 delivery call, got %d", ch.callCount())
	}
}

func TestRetryBoundDropsAfterMaxRetries(t *testing.T) {
	ch := &fakeChannel{id: "tg", failN: 1 << 30} // never succeeds
	d := newTestDispatcher(t, ch, Config{MaxRetries: 3, BreakerThreshold: 100, BreakerTimeout: time.Minute})

	n := note("tg", models.PriorityNormal)
	if !d.Enqueue(n, models.PriorityNormal) {
		t.Fatal("enqueue rejected")
	}
	waitStatus(t, n, models.StatusDropped)

	if n.Attempts != 3 {
		t.Fatalf("attempts = %d, want exactly max_retries (3)", n.Attempts)
	}

	// Dropped means dropped: no further requeue ever fires.
	time.Sleep(100 * time.Millisecond)
	if got := ch.callCount(); got != 3 {
		t.Fatalf("delivery called %d times after drop, want 3", got)
	}
}

func TestTransientFailureEventuallyDelivers(t *testing.T) {
	ch := &fakeChannel{id: "tg", failN: 2}
	d := newTestDispatcher(t, ch, Config{MaxRetries: 5, BreakerThreshold: 100, BreakerTimeout: time.Minute})

	n := note("tg", models.PriorityNormal)
	d.Enqueue(n, models.PriorityNormal)
	waitStatus(t, n, models.StatusDelivered)
	if ch.callCount() != 3 {
		t.Fatalf("expected 3 calls (2 failures + success), got %d", ch.callCount())
	}
}

func TestBreakerScenarioThresholdFive(t *testing.T) {
	ch := &fakeChannel{id: "hook", failN: 1 << 30}
	d := newTestDispatcher(t, ch, Config{
		MaxRetries:       1, // one attempt per notification
		BreakerThreshold: 5,
		BreakerTimeout:   200 * time.Millisecond,
	})

	// Five failing notifications open the breaker.
	for i := 0; i < 5; i++ {
		n := note("hook", models.PriorityNormal)
		d.Enqueue(n, models.PriorityNormal)
		waitStatus(t, n, models.StatusDropped)
	}
	if got := ch.callCount(); got != 5 {
		t.Fatalf("expected 5 delivery calls, got %d", got)
	}

	// A sixth attempt inside the cooldown is rejected with zero calls.
	n := note("hook", models.PriorityNormal)
	d.Enqueue(n, models.PriorityNormal)
	waitStatus(t, n, models.StatusDropped)
	if got := ch.callCount(); got != 5 {
		t.Fatalf("open breaker leaked a call: %d", got)
	}

	// After the cooldown, exactly one probe fires.
	time.Sleep(250 * time.Millisecond)
	n = note("hook", models.PriorityNormal)
	d.Enqueue(n, models.PriorityNormal)
	waitStatus(t, n, models.StatusDropped)
	if got := ch.callCount(); got != 6 {
		t.Fatalf("expected exactly one probe call, got %d total", got)
	}
}

func TestRateLimitSuspendsDelivery(t *testing.T) {
	ch := &fakeChannel{id: "tg"}
	d := New(
		[]repository.DeliveryChannel{ch},
		NewQueue(16),
		ratelimit.New(time.Hour, 2), // only two deliveries per window
		nopMetrics{},
		testLogger(t),
		Config{Workers: 1, MaxRetries: 3, BreakerThreshold: 10, BreakerTimeout: time.Minute},
	)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	}()

	for i := 0; i < 3; i++ {
		d.Enqueue(note("tg", models.PriorityNormal), models.PriorityNormal)
	}

	time.Sleep(300 * time.Millisecond)
	if got := ch.callCount(); got != 2 {
		t.Fatalf("expected the third delivery to be held by the rate budget, got %d calls", got)
	}
}

func TestRestartAfterStopDeliversAgain(t *testing.T) {
	ch := &fakeChannel{id: "tg"}
	d := New(
		[]repository.DeliveryChannel{ch},
		NewQueue(16),
		ratelimit.New(time.Hour, 10_000),
		nopMetrics{},
		testLogger(t),
		Config{Workers: 1, MaxRetries: 3, BreakerThreshold: 10, BreakerTimeout: time.Minute},
	)
	if err := d.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}

	n := note("tg", models.PriorityNormal)
	d.Enqueue(n, models.PriorityNormal)
	waitStatus(t, n, models.StatusDelivered)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	cancel()

	// A second run gets live workers, not ones parked on a dead context.
	if err := d.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	}()

	n = note("tg", models.PriorityNormal)
	d.Enqueue(n, models.PriorityNormal)
	waitStatus(t, n, models.StatusDelivered)
	if got := ch.callCount(); got != 2 {
		t.Fatalf("expected 2 delivery calls across both runs, got %d", got)
	}
}

func TestRejectedEnqueueMarksNotificationDropped(t *testing.T) {
	ch := &fakeChannel{id: "tg"}
	// Not started: the single-slot queue stays full for the second offer.
	d := New(
		[]repository.DeliveryChannel{ch},
		NewQueue(1),
		ratelimit.New(time.Hour, 10_000),
		nopMetrics{},
		testLogger(t),
		Config{Workers: 1, MaxRetries: 3, BreakerThreshold: 10, BreakerTimeout: time.Minute},
	)

	if !d.Enqueue(note("tg", models.PriorityNormal), models.PriorityNormal) {
		t.Fatal("first enqueue rejected")
	}
	n := note("tg", models.PriorityNormal)
	if d.Enqueue(n, models.PriorityNormal) {
		t.Fatal("enqueue on full queue accepted")
	}
	if n.Status != models.StatusDropped {
		t.Fatalf("rejected notification status = %s, want %s", n.Status, models.StatusDropped)
	}
}

func TestStopReturnsWithQueuedItemsRemaining(t *testing.T) {
	ch := &fakeChannel{id: "tg"}
	q := NewQueue(16)
	limiter := ratelimit.New(time.Hour, 1)
	limiter.Allow("tg") // exhaust the budget so workers park on the limiter
	d := New(
		[]repository.DeliveryChannel{ch},
		q,
		limiter,
		nopMetrics{},
		testLogger(t),
		Config{Workers: 2, MaxRetries: 3, BreakerThreshold: 10, BreakerTimeout: time.Minute},
	)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		d.Enqueue(note("tg", models.PriorityLow), models.PriorityLow)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if ch.callCount() != 0 {
		t.Fatalf("parked deliveries fired during shutdown: %d", ch.callCount())
	}
}
