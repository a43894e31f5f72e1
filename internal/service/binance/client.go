package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a KlineStream backed by the Binance WebSocket API.
// Only closed klines are emitted, so downstream consumers see each
// candle exactly once.
type Client struct {
	websocketURL   string
	pairs          []string
	timeframes     []models.Timeframe
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a Binance kline stream for the given pairs and timeframes.
func New(websocketURL string, pairs []string, timeframes []models.Timeframe, reconnectDelay, pingInterval time.Duration, log *logger.Logger) drepo.KlineStream {
	return &Client{
		websocketURL:   websocketURL,
		pairs:          pairs,
		timeframes:     timeframes,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("binance stream connected", logger.String("url", c.websocketURL))
	return nil
}

// Subscribe subscribes to kline streams for every (pair, timeframe).
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	conn, ok := c.conn, c.connected
	c.mu.Unlock()
	if conn == nil || !ok {
		return fmt.Errorf("binance not connected")
	}

	params := make([]string, 0, len(c.pairs)*len(c.timeframes))
	for _, p := range c.pairs {
		for _, tf := range c.timeframes {
			params = append(params, fmt.Sprintf("%s@kline_%s", strings.ToLower(p), tf))
		}
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	c.log.Info("binance streams subscribed", logger.Int("streams", len(params)))
	return nil
}

type wsKline struct {
	Start  int64  `json:"t"`
	Symbol string `json:"s"`
	TF     string `json:"i"`
	Open   string `json:"o"`
	Close  string `json:"c"`
	High   string `json:"h"`
	Low    string `json:"l"`
	Volume string `json:"v"`
	Closed bool   `json:"x"`
}

type wsEvent struct {
	Type  string  `json:"e"`
	Kline wsKline `json:"k"`
}

// Read streams closed candles and errors. The error channel receives at
// most one error before both channels close; callers Reconnect and call
// Read again.
func (c *Client) Read(ctx context.Context) (<-chan models.Candle, <-chan error) {
	candles := make(chan models.Candle, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(candles)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn == nil {
					errs <- fmt.Errorf("binance conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance read: %w", err)
					return
				}
				var ev wsEvent
				if err := json.Unmarshal(b, &ev); err != nil {
					// ignore non-kline frames (subscribe acks, combined wrappers)
					continue
				}
				if ev.Type != "kline" || !ev.Kline.Closed {
					continue
				}
				candle, err := toCandle(ev.Kline)
				if err != nil {
					c.log.Warn("malformed kline skipped", logger.Error(err))
					continue
				}
				select {
				case candles <- candle:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return candles, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func toCandle(k wsKline) (models.Candle, error) {
	var (
		c   models.Candle
		err error
	)
	c.Pair = k.Symbol
	c.Timeframe = models.Timeframe(k.TF)
	c.Time = time.UnixMilli(k.Start).UTC()
	if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return c, fmt.Errorf("open: %w", err)
	}
	if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return c, fmt.Errorf("high: %w", err)
	}
	if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return c, fmt.Errorf("low: %w", err)
	}
	if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return c, fmt.Errorf("close: %w", err)
	}
	if c.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
		return c, fmt.Errorf("volume: %w", err)
	}
	return c, nil
}
