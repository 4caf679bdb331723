// Package features derives classifier feature vectors from snapshot windows.
package features

import (
	"math"

	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

const (
	// MinLookback is the minimum window length: the 20-return realized-vol
	// estimator needs 21 closes.
	MinLookback = 21

	shortVolWindow = 5
	longVolWindow  = 20
	tradingDays    = 252.0
)

// Extractor computes a fixed-width feature vector from a window of market
// snapshots. All transforms are fixed and stateless: identical windows yield
// bit-identical vectors.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a feature extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract derives the feature vector from an ordered snapshot window.
// The window must be ordered by strictly increasing timestamp and contain at
// least MinLookback snapshots.
func (e *Extractor) Extract(window []types.MarketSnapshot) (types.FeatureVector, error) {
	if len(window) < MinLookback {
		return types.FeatureVector{}, &types.InsufficientHistoryError{
			Required: MinLookback,
			Got:      len(window),
		}
	}

	last := window[len(window)-1]
	returns := logReturns(window)

	rv5 := annualizedVol(tail(returns, shortVolWindow))
	rv20 := annualizedVol(tail(returns, longVolWindow))

	volRatio := 1.0
	if rv20 > 1e-9 {
		volRatio = rv5 / rv20
	}

	fv := types.FeatureVector{
		RealizedVol5:       rv5,
		RealizedVol20:      rv20,
		VolRatio:           volRatio,
		IVATM:              last.ImpliedVolATM,
		IVPremium:          last.ImpliedVolATM - rv20,
		TermStructureSlope: last.VIX/100 - last.ImpliedVolATM,
		Skew:               last.Skew,
		SkewChange5:        last.Skew - window[len(window)-1-shortVolWindow].Skew,
		Momentum20:         momentum(window, longVolWindow, rv20),
		VolOfVol:           volOfVol(window, longVolWindow),
	}

	e.logger.Debug("features extracted",
		zap.Time("asof", last.Timestamp),
		zap.Float64("realized_vol_20d", rv20),
		zap.Float64("iv_atm", fv.IVATM),
	)

	return fv, nil
}

// logReturns computes day-over-day log returns of the close series.
func logReturns(window []types.MarketSnapshot) []float64 {
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		curr := window[i].Close
		if prev <= 0 || curr <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, math.Log(curr/prev))
	}
	return returns
}

// annualizedVol is the sample standard deviation scaled by sqrt(252).
func annualizedVol(returns []float64) float64 {
	return stdDev(returns) * math.Sqrt(tradingDays)
}

// momentum is the n-day log return normalized by its volatility-implied
// scale, clamped to [-1, 1].
func momentum(window []types.MarketSnapshot, n int, annualVol float64) float64 {
	curr := window[len(window)-1].Close
	prev := window[len(window)-1-n].Close
	if prev <= 0 || curr <= 0 {
		return 0
	}

	move := math.Log(curr / prev)
	scale := annualVol * math.Sqrt(float64(n)/tradingDays)
	if scale < 1e-9 {
		return 0
	}

	m := move / scale
	if m > 1 {
		m = 1
	} else if m < -1 {
		m = -1
	}
	return m
}

// volOfVol is the annualized standard deviation of daily changes in the
// index-vol level over the trailing n days.
func volOfVol(window []types.MarketSnapshot, n int) float64 {
	start := len(window) - 1 - n
	changes := make([]float64, 0, n)
	for i := start + 1; i < len(window); i++ {
		changes = append(changes, (window[i].VIX-window[i-1].VIX)/100)
	}
	return stdDev(changes) * math.Sqrt(tradingDays)
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)

	return math.Sqrt(variance)
}
