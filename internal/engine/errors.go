package engine

import (
	"errors"
	"fmt"

	"SignalForge/internal/domain/models"
)

// ErrNoCandles indicates the source returned no history for a pair.
var ErrNoCandles = errors.New("engine: no candles available")

// errInconsistentState marks a missing or short cached window discovered
// mid-increment. Recovered locally by re-running the full path; it never
// crosses the engine boundary.
var errInconsistentState = errors.New("engine: cached window inconsistent")

// DataSourceError wraps a candle-source failure. It aborts only the current
// (pair, timeframe) cycle; cache and delivery failures never take this form.
type DataSourceError struct {
	Pair      string
	Timeframe models.Timeframe
	Err       error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("candle source %s/%s: %v", e.Pair, e.Timeframe, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}
