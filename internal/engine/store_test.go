package engine

import (
	"context"
	"testing"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/cache"
)

func TestStateStoreRoundTrip(t *testing.T) {
	store := NewStateStore(cache.NewMemoryCache(), testLogger(t), time.Hour, 24*time.Hour)
	ctx := context.Background()

	if _, ok := store.GetMAState(ctx, "BTCUSDT", models.TF1m, 20); ok {
		t.Fatal("expected miss on empty store")
	}

	st := &MAState{Window: []float64{1, 2, 3}, Value: 2, UpdatedAt: time.Now().UTC()}
	if err := store.SetMAState(ctx, "BTCUSDT", models.TF1m, 20, st); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := store.GetMAState(ctx, "BTCUSDT", models.TF1m, 20)
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got.Window) != 3 || got.Value != 2 {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestSetCursorNeverMovesBackwards(t *testing.T) {
	store := NewStateStore(cache.NewMemoryCache(), testLogger(t), time.Hour, 24*time.Hour)
	ctx := context.Background()

	newer := time.Unix(1_700_000_600, 0).UTC()
	older := time.Unix(1_700_000_000, 0).UTC()

	if err := store.SetCursor(ctx, "BTCUSDT", models.TF1m, newer); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetCursor(ctx, "BTCUSDT", models.TF1m, older); err != nil {
		t.Fatalf("set older: %v", err)
	}

	cur, ok := store.GetCursor(ctx, "BTCUSDT", models.TF1m)
	if !ok {
		t.Fatal("cursor missing")
	}
	if !cur.LastProcessed.Equal(newer) {
		t.Fatalf("cursor regressed to %v", cur.LastProcessed)
	}
}

func TestBackingErrorsDegradeToMiss(t *testing.T) {
	store := NewStateStore(brokenCache{}, testLogger(t), time.Hour, 24*time.Hour)
	ctx := context.Background()

	if _, ok := store.GetMAState(ctx, "BTCUSDT", models.TF1m, 20); ok {
		t.Fatal("backing error must read as a miss")
	}
	if _, ok := store.GetCursor(ctx, "BTCUSDT", models.TF1m); ok {
		t.Fatal("backing error must read as a miss")
	}
}

func TestDropForcesColdState(t *testing.T) {
	mem := cache.NewMemoryCache()
	store := NewStateStore(mem, testLogger(t), time.Hour, 24*time.Hour)
	ctx := context.Background()

	if err := store.SetMAState(ctx, "BTCUSDT", models.TF1m, 20, &MAState{Window: []float64{1}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetCursor(ctx, "BTCUSDT", models.TF1m, time.Now()); err != nil {
		t.Fatalf("set cursor: %v", err)
	}

	if err := store.Drop(ctx, "BTCUSDT", models.TF1m, []int{20}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, ok := store.GetMAState(ctx, "BTCUSDT", models.TF1m, 20); ok {
		t.Fatal("ma state should be gone")
	}
	if _, ok := store.GetCursor(ctx, "BTCUSDT", models.TF1m); ok {
		t.Fatal("cursor should be gone")
	}
}
