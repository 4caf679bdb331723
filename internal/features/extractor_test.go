// Package features_test provides tests for the feature extractor.
package features_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/voldesk/regime-backend/internal/features"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

// makeWindow builds a daily snapshot window with a constant growth rate.
func makeWindow(n int, startPrice, dailyGrowth, iv, vix, skew float64) []types.MarketSnapshot {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := make([]types.MarketSnapshot, 0, n)
	price := startPrice
	for i := 0; i < n; i++ {
		window = append(window, types.MarketSnapshot{
			Timestamp:     start.AddDate(0, 0, i),
			Symbol:        "SPX",
			Close:         price,
			VIX:           vix,
			ImpliedVolATM: iv,
			Skew:          skew,
		})
		price *= 1 + dailyGrowth
	}
	return window
}

func TestExtractInsufficientHistory(t *testing.T) {
	extractor := features.NewExtractor(zap.NewNop())

	window := makeWindow(features.MinLookback-1, 100, 0.001, 0.2, 20, 0.03)
	_, err := extractor.Extract(window)
	if err == nil {
		t.Fatal("Expected error for short window")
	}

	var insufficient *types.InsufficientHistoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected InsufficientHistoryError, got %T", err)
	}
	if insufficient.Required != features.MinLookback {
		t.Errorf("Expected required %d, got %d", features.MinLookback, insufficient.Required)
	}
}

func TestExtractDeterministic(t *testing.T) {
	extractor := features.NewExtractor(zap.NewNop())
	window := makeWindow(30, 4500, 0.0008, 0.18, 19, 0.04)

	first, err := extractor.Extract(window)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	second, err := extractor.Extract(window)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	a, b := first.Slice(), second.Slice()
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("Feature %s differs between identical windows: %v vs %v",
				types.FeatureNames[i], a[i], b[i])
		}
	}
}

func TestExtractFlatSeries(t *testing.T) {
	extractor := features.NewExtractor(zap.NewNop())

	// Constant closes: zero realized vol, ratio falls back to 1.
	window := makeWindow(features.MinLookback, 100, 0, 0.2, 22, 0.03)
	fv, err := extractor.Extract(window)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if fv.RealizedVol20 != 0 {
		t.Errorf("Expected zero realized vol on flat series, got %v", fv.RealizedVol20)
	}
	if fv.VolRatio != 1.0 {
		t.Errorf("Expected vol ratio fallback of 1.0, got %v", fv.VolRatio)
	}
	if fv.Momentum20 != 0 {
		t.Errorf("Expected zero momentum on flat series, got %v", fv.Momentum20)
	}
	if math.Abs(fv.IVPremium-0.2) > 1e-12 {
		t.Errorf("Expected IV premium 0.2 against zero realized vol, got %v", fv.IVPremium)
	}
	if math.Abs(fv.TermStructureSlope-(0.22-0.2)) > 1e-12 {
		t.Errorf("Unexpected term structure slope: %v", fv.TermStructureSlope)
	}
}

func TestExtractMomentumClamped(t *testing.T) {
	extractor := features.NewExtractor(zap.NewNop())

	// Strong drift relative to realized vol pins momentum at the clamp.
	window := makeWindow(30, 100, 0, 0.2, 20, 0.03)
	price := 100.0
	for i := range window {
		if i%2 == 0 {
			price *= 1.02
		}
		window[i].Close = price
	}
	fv, err := extractor.Extract(window)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if fv.Momentum20 < -1 || fv.Momentum20 > 1 {
		t.Errorf("Momentum outside [-1,1]: %v", fv.Momentum20)
	}
	if fv.Momentum20 != 1 {
		t.Errorf("Expected clamped momentum of 1 for steady drift, got %v", fv.Momentum20)
	}
}
