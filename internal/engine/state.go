package engine

import (
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
)

// MAState is the cached rolling window for one (pair, timeframe, period).
// The window holds at most period closes, oldest first.
type MAState struct {
	Window    []float64 `json:"window"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Append pushes one close onto the window, dropping the oldest entry once
// the window is full, and recomputes the aggregate directly from the
// window. The recomputation is exact, not a running approximation.
func (s *MAState) Append(close float64, period int) {
	s.Window = append(s.Window, close)
	if len(s.Window) > period {
		s.Window = s.Window[len(s.Window)-period:]
	}
	s.Value = mean(s.Window)
	s.UpdatedAt = time.Now().UTC()
}

// Ready reports whether the window has seen period closes.
func (s *MAState) Ready(period int) bool {
	return len(s.Window) >= period
}

// Cursor is the high-water mark of processed candle time per (pair, tf).
type Cursor struct {
	LastProcessed time.Time `json:"last_processed"`
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maKey(pair string, tf models.Timeframe, period int) string {
	return fmt.Sprintf("ma:%s:%s:%d", pair, tf, period)
}

func cursorKey(pair string, tf models.Timeframe) string {
	return fmt.Sprintf("cursor:%s:%s", pair, tf)
}
