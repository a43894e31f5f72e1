package dispatch

import (
	"context"

	"SignalForge/internal/domain/models"
)

// priorities in drain order, highest first.
var priorities = [...]models.Priority{
	models.PriorityUrgent,
	models.PriorityHigh,
	models.PriorityNormal,
	models.PriorityLow,
}

// Queue is a set of bounded FIFO queues, one per priority class. Enqueue is
// strictly non-blocking: a full class rejects instead of buffering, which is
// the producer's backpressure signal. Ordering holds within a class only.
type Queue struct {
	chans  [len(priorities)]chan *models.Notification
	notify chan struct{}
	size   int
}

// NewQueue creates queues with the given per-class capacity.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	q := &Queue{
		notify: make(chan struct{}, 1),
		size:   size,
	}
	for i := range q.chans {
		q.chans[i] = make(chan *models.Notification, size)
	}
	return q
}

// Enqueue offers a notification to its priority class. Returns false
// immediately when the class is full; it never blocks the producer.
func (q *Queue) Enqueue(n *models.Notification, p models.Priority) bool {
	n.Status = models.StatusQueued
	select {
	case q.ch(p) <- n:
		q.signal()
		return true
	default:
		return false
	}
}

// TryDequeue pops from the highest-priority non-empty class without
// blocking.
func (q *Queue) TryDequeue() (*models.Notification, models.Priority, bool) {
	for _, p := range priorities {
		select {
		case n := <-q.ch(p):
			return n, p, true
		default:
		}
	}
	return nil, 0, false
}

// Dequeue pops the next notification, draining higher classes first and
// suspending when all classes are empty. Every removal goes through the
// priority scan, so an urgent item is never passed over for a lower class
// even when both arrive while the caller is suspended.
func (q *Queue) Dequeue(ctx context.Context) (*models.Notification, models.Priority, error) {
	for {
		if n, p, ok := q.TryDequeue(); ok {
			// Other waiters may have consumed the wakeup this item
			// arrived with; pass it along so they re-scan too.
			q.signal()
			return n, p, nil
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-q.notify:
		}
	}
}

// signal wakes one suspended Dequeue without blocking. The channel holds a
// single token; a dropped send just means a scan is already pending.
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Depth returns the queued count for one class.
func (q *Queue) Depth(p models.Priority) int {
	return len(q.ch(p))
}

// Depths returns queued counts keyed by class name.
func (q *Queue) Depths() map[string]int {
	out := make(map[string]int, len(priorities))
	for _, p := range priorities {
		out[p.String()] = len(q.ch(p))
	}
	return out
}

// Capacity returns the per-class capacity.
func (q *Queue) Capacity() int { return q.size }

func (q *Queue) ch(p models.Priority) chan *models.Notification {
	if p < models.PriorityLow || p > models.PriorityUrgent {
		p = models.PriorityNormal
	}
	return q.chans[int(p)]
}
