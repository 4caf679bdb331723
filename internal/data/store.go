// Package data provides market snapshot storage and loading. It is the
// data-access collaborator of the analytical core: the core consumes ordered
// snapshot sequences and never fetches or stores data itself.
package data

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

// Store provides access to historical market snapshots, one JSON file per
// symbol under the data directory. Symbols without a file get a seeded
// synthetic series so the engine is usable out of the box.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]types.MarketSnapshot
}

// NewStore creates a snapshot store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Store{
		logger:  logger,
		dataDir: dataDir,
		cache:   make(map[string][]types.MarketSnapshot),
	}, nil
}

// GetRange returns the most recent `days` snapshots for a symbol, ordered
// by strictly increasing timestamp. The caller is responsible for judging
// whether the returned window is long enough.
func (s *Store) GetRange(symbol string, days int) ([]types.MarketSnapshot, error) {
	all, err := s.load(symbol)
	if err != nil {
		return nil, err
	}

	if days > 0 && len(all) > days {
		all = all[len(all)-days:]
	}

	out := make([]types.MarketSnapshot, len(all))
	copy(out, all)
	return out, nil
}

// Latest returns the trailing window ending at the most recent snapshot.
func (s *Store) Latest(symbol string, window int) ([]types.MarketSnapshot, error) {
	return s.GetRange(symbol, window)
}

// load reads and caches the full series for a symbol.
func (s *Store) load(symbol string) ([]types.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[symbol]; ok {
		return cached, nil
	}

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_snapshots.json", symbol))
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("generating sample snapshots", zap.String("symbol", symbol))
			sample := GenerateSampleSnapshots(symbol, 252, time.Now().UTC())
			s.cache[symbol] = sample
			return sample, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshots []types.MarketSnapshot
	if err := json.Unmarshal(raw, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})
	snapshots = dedupe(snapshots)

	s.cache[symbol] = snapshots
	return snapshots, nil
}

// dedupe drops snapshots sharing a timestamp with their predecessor,
// keeping the first occurrence.
func dedupe(snapshots []types.MarketSnapshot) []types.MarketSnapshot {
	out := snapshots[:0]
	for i, snap := range snapshots {
		if i > 0 && snap.Timestamp.Equal(snapshots[i-1].Timestamp) {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// GenerateSampleSnapshots produces a deterministic synthetic daily series
// ending at `end`, cycling through calm, trending and stressed stretches so
// every regime shows up in demos and tests. Prices are rounded to cents via
// decimal to mimic vendor data.
func GenerateSampleSnapshots(symbol string, days int, end time.Time) []types.MarketSnapshot {
	rng := rand.New(rand.NewSource(42))
	end = end.Truncate(24 * time.Hour)

	snapshots := make([]types.MarketSnapshot, 0, days)
	price := 4500.0
	baseVol := 0.12

	for i := 0; i < days; i++ {
		// Alternate 60-day volatility phases.
		phase := (i / 60) % 3
		var drift, vol float64
		switch phase {
		case 0: // calm
			drift, vol = 0.0002, 0.10
		case 1: // trending
			drift, vol = 0.0012, 0.16
		default: // stressed
			drift, vol = -0.0008, 0.34
		}

		daily := vol / math.Sqrt(252)
		price *= math.Exp(drift + daily*rng.NormFloat64())
		baseVol += 0.15 * (vol - baseVol)

		iv := baseVol * (1 + 0.1*rng.NormFloat64()*0.2)
		if iv < 0.05 {
			iv = 0.05
		}

		rounded, _ := decimal.NewFromFloat(price).Round(2).Float64()

		snapshots = append(snapshots, types.MarketSnapshot{
			Timestamp:     end.AddDate(0, 0, i-days+1),
			Symbol:        symbol,
			Close:         rounded,
			VIX:           iv*100 + 2 + rng.Float64(),
			RealizedVol:   baseVol,
			ImpliedVolATM: iv,
			Skew:          0.02 + 0.06*math.Max(0, baseVol-0.15)/0.2 + 0.005*rng.NormFloat64(),
		})
	}

	return snapshots
}
