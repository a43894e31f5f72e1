package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
)

// CandleSchema creates the candle table if missing.
var CandleSchema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		pair      LowCardinality(String),
		timeframe LowCardinality(String),
		time      DateTime64(3),
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64
	) ENGINE = ReplacingMergeTree()
	PARTITION BY toYYYYMM(time)
	ORDER BY (pair, timeframe, time)`,
}

// ClickHouseCandleStore implements CandleSource and CandleWriter over a
// single candle table.
type ClickHouseCandleStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseCandleStore creates ClickHouse-backed candle storage.
func NewClickHouseCandleStore(db *sql.DB, table string) *ClickHouseCandleStore {
	if table == "" {
		table = "candles"
	}
	return &ClickHouseCandleStore{db: db, table: table}
}

var _ repository.CandleSource = (*ClickHouseCandleStore)(nil)
var _ repository.CandleWriter = (*ClickHouseCandleStore)(nil)

// Latest returns the most recent n candles in ascending time order.
func (s *ClickHouseCandleStore) Latest(ctx context.Context, pair string, tf models.Timeframe, n int) ([]models.Candle, error) {
	q := fmt.Sprintf(`SELECT pair, timeframe, time, open, high, low, close, volume
		FROM %s WHERE pair = ? AND timeframe = ?
		ORDER BY time DESC LIMIT ?`, s.table)
	candles, err := s.query(ctx, q, pair, string(tf), n)
	if err != nil {
		return nil, err
	}
	// Query descends to pick the tail; callers expect ascending order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// Since returns up to limit candles strictly newer than after, ascending.
func (s *ClickHouseCandleStore) Since(ctx context.Context, pair string, tf models.Timeframe, after time.Time, limit int) ([]models.Candle, error) {
	q := fmt.Sprintf(`SELECT pair, timeframe, time, open, high, low, close, volume
		FROM %s WHERE pair = ? AND timeframe = ? AND time > ?
		ORDER BY time ASC LIMIT ?`, s.table)
	return s.query(ctx, q, pair, string(tf), after, limit)
}

func (s *ClickHouseCandleStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		var tf string
		if err := rows.Scan(&c.Pair, &tf, &c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Timeframe = models.Timeframe(tf)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

func (s *ClickHouseCandleStore) Store(ctx context.Context, c models.Candle) error {
	q := fmt.Sprintf("INSERT INTO %s (pair, timeframe, time, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		c.Pair, string(c.Timeframe), c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
	return err
}

func (s *ClickHouseCandleStore) StoreBatch(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips. Chunked at 2000 rows.
	const chunkSize = 2000
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, c := range candles[start:end] {
			if c.Pair == "" || c.Time.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, c.Pair, string(c.Timeframe), c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (pair, timeframe, time, open, high, low, close, volume) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
