package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority stratifies dispatch queues. Higher classes are always drained
// before lower ones.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Signal carries indicator values computed for one (pair, timeframe) cycle.
// A Signal is created once and never mutated afterwards.
type Signal struct {
	ID         uuid.UUID          `json:"id"`
	Pair       string             `json:"pair"`
	Timeframe  Timeframe          `json:"timeframe"`
	ComputedAt time.Time          `json:"computed_at"`
	Values     map[string]float64 `json:"values"`
	Priority   Priority           `json:"priority"`
}

// NewSignal builds a signal with a fresh ID.
func NewSignal(pair string, tf Timeframe, values map[string]float64, prio Priority) *Signal {
	return &Signal{
		ID:         uuid.New(),
		Pair:       pair,
		Timeframe:  tf,
		ComputedAt: time.Now().UTC(),
		Values:     values,
		Priority:   prio,
	}
}

// NotificationStatus is the delivery lifecycle state of a notification.
type NotificationStatus string

const (
	StatusQueued    NotificationStatus = "queued"
	StatusInFlight  NotificationStatus = "in_flight"
	StatusDelivered NotificationStatus = "delivered"
	StatusDropped   NotificationStatus = "dropped"
)

// Notification pairs a signal with a target channel and tracks delivery
// attempts. Status transitions Queued -> InFlight -> Delivered|Dropped.
type Notification struct {
	Signal   *Signal            `json:"signal"`
	Channel  string             `json:"channel"`
	Attempts int                `json:"attempts"`
	Status   NotificationStatus `json:"status"`
}

// NewNotification creates a queued notification for the given channel.
func NewNotification(sig *Signal, channel string) *Notification {
	return &Notification{
		Signal:  sig,
		Channel: channel,
		Status:  StatusQueued,
	}
}
