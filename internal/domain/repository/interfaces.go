package repository

import (
	"context"
	"time"

	"SignalForge/internal/domain/models"
)

// CandleSource provides historical candles. Implementations must return
// candles in ascending time order.
type CandleSource interface {
	// Latest returns the most recent n candles for (pair, tf).
	Latest(ctx context.Context, pair string, tf models.Timeframe, n int) ([]models.Candle, error)
	// Since returns up to limit candles strictly newer than after.
	Since(ctx context.Context, pair string, tf models.Timeframe, after time.Time, limit int) ([]models.Candle, error)
}

// CandleWriter persists candles produced by the ingest stream.
type CandleWriter interface {
	Store(ctx context.Context, c models.Candle) error
	StoreBatch(ctx context.Context, candles []models.Candle) error
}

// DeliveryChannel delivers signals to one external destination. Delivery is
// at-least-once; implementations must tolerate duplicates.
type DeliveryChannel interface {
	ID() string
	Deliver(ctx context.Context, sig *models.Signal) error
}

// KlineStream is a live candle feed (exchange WebSocket).
type KlineStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Candle, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics records operational measurements.
type Metrics interface {
	RecordCycle(pair, timeframe string, incremental bool, seconds float64)
	RecordSignal(pair, timeframe string)
	RecordDelivery(channel, result string)
	RecordDropped(channel, reason string)
	RecordError(kind string)
	RecordQueueDepth(priority string, depth int)
	RecordBreakerState(channel string, state int)
}
