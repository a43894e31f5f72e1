package usecase

import (
	"context"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// CandleCollector consumes closed candles from the live stream and
// persists them to the candle store.
type CandleCollector struct {
	stream  drepo.KlineStream
	writer  drepo.CandleWriter
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewCandleCollector creates a new CandleCollector instance.
func NewCandleCollector(stream drepo.KlineStream, writer drepo.CandleWriter, metrics drepo.Metrics, log *logger.Logger) *CandleCollector {
	return &CandleCollector{stream: stream, writer: writer, metrics: metrics, log: log}
}

// IsConnected returns true if the kline stream is connected.
func (c *CandleCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *CandleCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	go c.consume(ctx)
	return nil
}

func (c *CandleCollector) consume(ctx context.Context) {
	for {
		caCh, errCh := c.stream.Read(ctx)
		if !c.drain(ctx, caCh, errCh) {
			return
		}
		// Stream broke: reconnect and resume reading.
		c.metrics.RecordError("stream")
		if err := c.stream.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("stream reconnect failed", logger.Error(err))
		}
	}
}

// drain consumes until the stream errors or ctx is cancelled. It returns
// false when the collector should stop for good.
func (c *CandleCollector) drain(ctx context.Context, caCh <-chan models.Candle, errCh <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errCh:
			if !ok {
				return ctx.Err() == nil
			}
			if err != nil {
				c.log.Warn("kline stream error", logger.Error(err))
				return true
			}
		case candle, ok := <-caCh:
			if !ok {
				return ctx.Err() == nil
			}
			if err := c.writer.Store(ctx, candle); err != nil {
				c.metrics.RecordError("candle_store")
				c.log.Error("candle store failed",
					logger.String("pair", candle.Pair),
					logger.Error(err))
			}
		}
	}
}

// Shutdown closes the stream.
func (c *CandleCollector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
