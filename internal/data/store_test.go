// Package data_test provides tests for the snapshot store.
package data_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voldesk/regime-backend/internal/data"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

func TestGetRangeGeneratesSampleData(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	snapshots, err := store.GetRange("SPX", 0)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(snapshots) != 252 {
		t.Fatalf("Expected 252 sample snapshots, got %d", len(snapshots))
	}

	for i, snap := range snapshots {
		if snap.Symbol != "SPX" {
			t.Fatalf("Snapshot %d has symbol %s", i, snap.Symbol)
		}
		if snap.Close <= 0 || snap.ImpliedVolATM <= 0 || snap.VIX <= 0 {
			t.Fatalf("Snapshot %d has non-positive market values: %+v", i, snap)
		}
		if i > 0 && !snap.Timestamp.After(snapshots[i-1].Timestamp) {
			t.Fatalf("Timestamps not strictly increasing at %d", i)
		}
	}
}

func TestGetRangeWindow(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	all, err := store.GetRange("SPX", 0)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	window, err := store.GetRange("SPX", 30)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}

	if len(window) != 30 {
		t.Fatalf("Expected 30 snapshots, got %d", len(window))
	}
	if !window[len(window)-1].Timestamp.Equal(all[len(all)-1].Timestamp) {
		t.Error("Window does not end at the most recent snapshot")
	}
}

func TestGetRangeDeterministic(t *testing.T) {
	store, err := data.NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	first, _ := store.GetRange("SPX", 10)
	second, _ := store.GetRange("SPX", 10)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Snapshot %d differs across reads", i)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Out of order with one duplicate timestamp; the store must sort and
	// drop the duplicate.
	raw := []types.MarketSnapshot{
		{Timestamp: start.AddDate(0, 0, 2), Symbol: "NDX", Close: 102, VIX: 20, ImpliedVolATM: 0.2, Skew: 0.03},
		{Timestamp: start, Symbol: "NDX", Close: 100, VIX: 20, ImpliedVolATM: 0.2, Skew: 0.03},
		{Timestamp: start.AddDate(0, 0, 1), Symbol: "NDX", Close: 101, VIX: 20, ImpliedVolATM: 0.2, Skew: 0.03},
		{Timestamp: start.AddDate(0, 0, 1), Symbol: "NDX", Close: 101, VIX: 20, ImpliedVolATM: 0.2, Skew: 0.03},
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "NDX_snapshots.json"), payload, 0644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	store, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	snapshots, err := store.GetRange("NDX", 0)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("Expected 3 snapshots after dedupe, got %d", len(snapshots))
	}
	if snapshots[0].Close != 100 || snapshots[1].Close != 101 || snapshots[2].Close != 102 {
		t.Errorf("Snapshots not sorted and deduped: %v %v %v",
			snapshots[0].Close, snapshots[1].Close, snapshots[2].Close)
	}
}

func TestGenerateSampleSnapshots(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	first := data.GenerateSampleSnapshots("SPX", 100, end)
	second := data.GenerateSampleSnapshots("SPX", 100, end)

	if len(first) != 100 {
		t.Fatalf("Expected 100 snapshots, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Sample generation not deterministic at %d", i)
		}
	}
	if !first[len(first)-1].Timestamp.Equal(end.Truncate(24 * time.Hour)) {
		t.Error("Sample series does not end at the requested date")
	}
}
