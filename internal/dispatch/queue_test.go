package dispatch

import (
	"context"
	"testing"
	"time"

	"SignalForge/internal/domain/models"
)

func note(channel string, p models.Priority) *models.Notification {
	sig := models.NewSignal("BTCUSDT", models.TF1m, map[string]float64{"sma_20": 1}, p)
	return models.NewNotification(sig, channel)
}

func TestEnqueueFullQueueReturnsFalseImmediately(t *testing.T) {
	q := NewQueue(2)

	if !q.Enqueue(note("tg", models.PriorityNormal), models.PriorityNormal) {
		t.Fatal("first enqueue rejected")
	}
	if !q.Enqueue(note("tg", models.PriorityNormal), models.PriorityNormal) {
		t.Fatal("second enqueue rejected")
	}

	start := time.Now()
	if q.Enqueue(note("tg", models.PriorityNormal), models.PriorityNormal) {
		t.Fatal("enqueue on full queue accepted")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("enqueue on full queue blocked for %v", elapsed)
	}

	// Other classes are unaffected.
	if !q.Enqueue(note("tg", models.PriorityHigh), models.PriorityHigh) {
		t.Fatal("high-priority enqueue rejected while normal is full")
	}
}

func TestDequeueStrictPriorityOrder(t *testing.T) {
	q := NewQueue(8)
	q.Enqueue(note("a", models.PriorityLow), models.PriorityLow)
	q.Enqueue(note("b", models.PriorityNormal), models.PriorityNormal)
	q.Enqueue(note("c", models.PriorityUrgent), models.PriorityUrgent)
	q.Enqueue(note("d", models.PriorityHigh), models.PriorityHigh)

	want := []models.Priority{
		models.PriorityUrgent,
		models.PriorityHigh,
		models.PriorityNormal,
		models.PriorityLow,
	}
	for _, wp := range want {
		_, p, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("queue drained early, wanted %v", wp)
		}
		if p != wp {
			t.Fatalf("got priority %v, want %v", p, wp)
		}
	}
	if _, _, ok := q.TryDequeue(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestFIFOWithinClass(t *testing.T) {
	q := NewQueue(8)
	first := note("first", models.PriorityNormal)
	second := note("second", models.PriorityNormal)
	q.Enqueue(first, models.PriorityNormal)
	q.Enqueue(second, models.PriorityNormal)

	n, _, _ := q.TryDequeue()
	if n.Channel != "first" {
		t.Fatalf("expected first, got %s", n.Channel)
	}
	n, _, _ = q.TryDequeue()
	if n.Channel != "second" {
		t.Fatalf("expected second, got %s", n.Channel)
	}
}

func TestSuspendedDequeueHonorsPriorityOnWake(t *testing.T) {
	// A waiter suspended on an empty queue must still drain the highest
	// class first when several classes fill before it wakes. Repeated
	// without any pause so the enqueues race the waiter going to sleep.
	for i := 0; i < 50; i++ {
		q := NewQueue(4)
		ctx, cancel := context.WithCancel(context.Background())

		got := make(chan models.Priority, 1)
		go func() {
			_, p, err := q.Dequeue(ctx)
			if err == nil {
				got <- p
			}
			close(got)
		}()

		q.Enqueue(note("tg", models.PriorityUrgent), models.PriorityUrgent)
		q.Enqueue(note("tg", models.PriorityLow), models.PriorityLow)

		select {
		case p := <-got:
			if p != models.PriorityUrgent {
				t.Fatalf("iteration %d: woke with %v, want urgent", i, p)
			}
		case <-time.After(time.Second):
			t.Fatal("dequeue never woke up")
		}
		cancel()
	}
}

func TestDequeueSuspendsUntilItemOrCancel(t *testing.T) {
	q := NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan *models.Notification, 1)
	go func() {
		n, _, err := q.Dequeue(ctx)
		if err == nil {
			got <- n
		}
		close(got)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(note("tg", models.PriorityLow), models.PriorityLow)

	select {
	case n := <-got:
		if n == nil || n.Channel != "tg" {
			t.Fatalf("unexpected dequeue result %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up")
	}

	// A canceled context unblocks an empty dequeue.
	errCh := make(chan error, 1)
	go func() {
		_, _, err := q.Dequeue(ctx)
		errCh <- err
	}()
	cancel()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue ignored cancellation")
	}
}
