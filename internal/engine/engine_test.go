package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/cache"
	"SignalForge/pkg/logger"
)

type fakeSource struct {
	mu      sync.Mutex
	candles []models.Candle
}

func (s *fakeSource) add(c ...models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append(s.candles, c...)
}

func (s *fakeSource) Latest(_ context.Context, pair string, tf models.Timeframe, n int) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.forPair(pair, tf)
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *fakeSource) Since(_ context.Context, pair string, tf models.Timeframe, after time.Time, limit int) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Candle
	for _, c := range s.forPair(pair, tf) {
		if c.Time.After(after) {
			out = append(out, c)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeSource) forPair(pair string, tf models.Timeframe) []models.Candle {
	var out []models.Candle
	for _, c := range s.candles {
		if c.Pair == pair && c.Timeframe == tf {
			out = append(out, c)
		}
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordCycle(string, string, bool, float64) {}
func (nopMetrics) RecordSignal(string, string)               {}
func (nopMetrics) RecordDelivery(string, string)             {}
func (nopMetrics) RecordDropped(string, string)              {}
func (nopMetrics) RecordError(string)                        {}
func (nopMetrics) RecordQueueDepth(string, int)              {}
func (nopMetrics) RecordBreakerState(string, int)            {}

// brokenCache fails every operation, simulating an unreachable backend.
type brokenCache struct{}

func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return context.DeadlineExceeded
}
func (brokenCache) Get(context.Context, string, interface{}) error {
	return context.DeadlineExceeded
}
func (brokenCache) Delete(context.Context, ...string) error { return context.DeadlineExceeded }
func (brokenCache) Exists(context.Context, ...string) (bool, error) {
	return false, context.DeadlineExceeded
}
func (brokenCache) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, context.DeadlineExceeded
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func makeCandles(pair string, tf models.Timeframe, start time.Time, n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		// Deterministic but non-trivial close series.
		close := 100.0 + 5.0*math.Sin(float64(i)/7.0) + float64(i%13)
		out[i] = models.Candle{
			Pair:      pair,
			Timeframe: tf,
			Time:      start.Add(time.Duration(i) * time.Minute),
			Open:      close - 0.5,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
			Volume:    float64(1000 + i),
		}
	}
	return out
}

func newTestEngine(t *testing.T, src *fakeSource, c cache.Service, periods []int) *Engine {
	t.Helper()
	log := testLogger(t)
	store := NewStateStore(c, log, time.Hour, 24*time.Hour)
	return New(src, store, nopMetrics{}, log, Config{
		Periods:        periods,
		HistoryLimit:   200,
		IncrementalCap: 10,
	})
}

func TestFirstRunIsFullComputation(t *testing.T) {
	src := &fakeSource{}
	src.add(makeCandles("BTCUSDT", models.TF1m, time.Unix(1_700_000_000, 0).UTC(), 60)...)
	eng := newTestEngine(t, src, cache.NewMemoryCache(), []int{20})

	res, err := eng.Process(context.Background(), "BTCUSDT", models.TF1m)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Incremental {
		t.Fatal("first run must be a full computation")
	}
	if _, ok := res.Values["sma_20"]; !ok {
		t.Fatalf("missing sma_20 in %v", res.Values)
	}
}

func TestIncrementalMatchesFull(t *testing.T) {
	const pair = "BTCUSDT"
	start := time.Unix(1_700_000_000, 0).UTC()
	all := makeCandles(pair, models.TF1m, start, 300)

	// Incremental engine: seed with 250 candles, then feed the rest in
	// small chunks, one Process per chunk.
	incSrc := &fakeSource{}
	incSrc.add(all[:250]...)
	inc := newTestEngine(t, incSrc, cache.NewMemoryCache(), []int{20, 50})
	if _, err := inc.Process(context.Background(), pair, models.TF1m); err != nil {
		t.Fatalf("seed process: %v", err)
	}

	var last *Result
	for i := 250; i < len(all); i += 3 {
		end := i + 3
		if end > len(all) {
			end = len(all)
		}
		incSrc.add(all[i:end]...)
		res, err := inc.Process(context.Background(), pair, models.TF1m)
		if err != nil {
			t.Fatalf("incremental process at %d: %v", i, err)
		}
		if !res.Incremental {
			t.Fatalf("expected incremental path at %d", i)
		}
		last = res
	}

	// Full engine: one cold computation over the complete series.
	fullSrc := &fakeSource{}
	fullSrc.add(all...)
	full := newTestEngine(t, fullSrc, cache.NewMemoryCache(), []int{20, 50})
	want, err := full.Process(context.Background(), pair, models.TF1m)
	if err != nil {
		t.Fatalf("full process: %v", err)
	}

	for key, w := range want.Values {
		got := last.Values[key]
		if math.Abs(got-w) > 1e-9 {
			t.Errorf("%s: incremental %v != full %v", key, got, w)
		}
	}
}

func TestNoNewCandlesIsNoop(t *testing.T) {
	src := &fakeSource{}
	src.add(makeCandles("ETHUSDT", models.TF5m, time.Unix(1_700_000_000, 0).UTC(), 100)...)
	eng := newTestEngine(t, src, cache.NewMemoryCache(), []int{20})

	first, err := eng.Process(context.Background(), "ETHUSDT", models.TF5m)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	second, err := eng.Process(context.Background(), "ETHUSDT", models.TF5m)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !second.Incremental {
		t.Fatal("no-op cycle should report incremental")
	}
	if second.Values["sma_20"] != first.Values["sma_20"] {
		t.Fatalf("no-op changed value: %v -> %v", first.Values["sma_20"], second.Values["sma_20"])
	}
}

func TestGapLargerThanCapForcesFull(t *testing.T) {
	const pair = "BTCUSDT"
	start := time.Unix(1_700_000_000, 0).UTC()
	all := makeCandles(pair, models.TF1m, start, 300)

	src := &fakeSource{}
	src.add(all[:200]...)
	eng := newTestEngine(t, src, cache.NewMemoryCache(), []int{20})
	if _, err := eng.Process(context.Background(), pair, models.TF1m); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Tail of 50 new candles, far beyond the cap of 10.
	src.add(all[200:250]...)
	res, err := eng.Process(context.Background(), pair, models.TF1m)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Incremental {
		t.Fatal("gap beyond the cap must force full recomputation")
	}
}

func TestCacheUnreachableFallsBackToFull(t *testing.T) {
	const pair = "BTCUSDT"
	start := time.Unix(1_700_000_000, 0).UTC()
	all := makeCandles(pair, models.TF1m, start, 120)

	src := &fakeSource{}
	src.add(all...)
	broken := newTestEngine(t, src, brokenCache{}, []int{20})

	res, err := broken.Process(context.Background(), pair, models.TF1m)
	if err != nil {
		t.Fatalf("process with broken cache: %v", err)
	}
	if res.Incremental {
		t.Fatal("unreachable cache must force the full path")
	}

	// Values must be identical to a cold run with a healthy cache.
	cold := newTestEngine(t, src, cache.NewMemoryCache(), []int{20})
	want, err := cold.Process(context.Background(), pair, models.TF1m)
	if err != nil {
		t.Fatalf("cold process: %v", err)
	}
	if math.Abs(res.Values["sma_20"]-want.Values["sma_20"]) > 1e-9 {
		t.Fatalf("broken-cache value %v != cold value %v", res.Values["sma_20"], want.Values["sma_20"])
	}
}

func TestColdStateUnderLiveCursorRecomputesOnce(t *testing.T) {
	const pair = "BTCUSDT"
	src := &fakeSource{}
	src.add(makeCandles(pair, models.TF1m, time.Unix(1_700_000_000, 0).UTC(), 100)...)

	mem := cache.NewMemoryCache()
	eng := newTestEngine(t, src, mem, []int{20})
	if _, err := eng.Process(context.Background(), pair, models.TF1m); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Simulate MA state TTL expiry while the longer-lived cursor survives.
	if err := mem.Delete(context.Background(), maKey(pair, models.TF1m, 20)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res, err := eng.Process(context.Background(), pair, models.TF1m)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Incremental {
		t.Fatal("expired MA state must trigger one full recompute")
	}

	// The rebuilt state serves the next no-op cycle incrementally again.
	res, err = eng.Process(context.Background(), pair, models.TF1m)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Incremental {
		t.Fatal("state should be warm again after the recompute")
	}
}

func TestCursorMonotonicAcrossInterleavedPairs(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).UTC()
	src := &fakeSource{}
	src.add(makeCandles("BTCUSDT", models.TF1m, start, 50)...)
	src.add(makeCandles("ETHUSDT", models.TF1m, start, 50)...)

	mem := cache.NewMemoryCache()
	eng := newTestEngine(t, src, mem, []int{10})
	store := NewStateStore(mem, testLogger(t), time.Hour, 24*time.Hour)

	lastSeen := map[string]time.Time{}
	pairs := []string{"BTCUSDT", "ETHUSDT"}
	for round := 0; round < 5; round++ {
		for _, pair := range pairs {
			if _, err := eng.Process(context.Background(), pair, models.TF1m); err != nil {
				t.Fatalf("process %s: %v", pair, err)
			}
			cur, ok := store.GetCursor(context.Background(), pair, models.TF1m)
			if !ok {
				t.Fatalf("cursor missing for %s", pair)
			}
			if cur.LastProcessed.Before(lastSeen[pair]) {
				t.Fatalf("cursor for %s moved backwards: %v -> %v", pair, lastSeen[pair], cur.LastProcessed)
			}
			lastSeen[pair] = cur.LastProcessed
		}
		// Interleave fresh candles for one pair only.
		src.add(makeCandles("BTCUSDT", models.TF1m, start.Add(time.Duration(50+round)*time.Minute), 1)...)
	}
}

func TestWindowNeverExceedsPeriod(t *testing.T) {
	st := &MAState{}
	for i := 0; i < 100; i++ {
		st.Append(float64(i), 20)
		if len(st.Window) > 20 {
			t.Fatalf("window grew to %d", len(st.Window))
		}
	}
	if !st.Ready(20) {
		t.Fatal("window should be ready after 100 appends")
	}
	// Exact mean of the last 20 values 80..99.
	if math.Abs(st.Value-89.5) > 1e-9 {
		t.Fatalf("value = %v, want 89.5", st.Value)
	}
}
