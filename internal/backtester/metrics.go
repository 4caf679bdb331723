// Summary statistics over a cumulative P&L series.
package backtester

import (
	"math"

	"github.com/voldesk/regime-backend/pkg/types"
)

// minDailyStdev is the daily P&L standard deviation below which the Sharpe
// ratio is reported as the nil sentinel.
const minDailyStdev = 1e-12

// SummaryCalculator computes backtest summary statistics.
type SummaryCalculator struct {
	annualizationDays int
}

// NewSummaryCalculator creates a summary calculator.
func NewSummaryCalculator(annualizationDays int) *SummaryCalculator {
	if annualizationDays <= 0 {
		annualizationDays = 252
	}
	return &SummaryCalculator{annualizationDays: annualizationDays}
}

// Calculate computes summary statistics once over the full series.
//
// total_return is the last cumulative P&L. win_rate is the fraction of
// strictly positive daily changes, the first change measured against a zero
// base. max_drawdown is min(cumulative - running maximum), always <= 0.
// sharpe_ratio is mean/stdev of daily changes scaled by sqrt(annualization
// days), nil when the variance is zero.
func (sc *SummaryCalculator) Calculate(series []types.PnlPoint) types.SummaryStatistics {
	if len(series) == 0 {
		return types.SummaryStatistics{}
	}

	changes := dailyChanges(series)

	wins := 0
	for _, c := range changes {
		if c > 0 {
			wins++
		}
	}

	stats := types.SummaryStatistics{
		TotalReturn: series[len(series)-1].Pnl,
		WinRate:     float64(wins) / float64(len(changes)),
		MaxDrawdown: maxDrawdown(series),
	}

	if stdev := stdDev(changes); stdev >= minDailyStdev {
		sharpe := mean(changes) / stdev * math.Sqrt(float64(sc.annualizationDays))
		stats.SharpeRatio = &sharpe
	}

	return stats
}

// dailyChanges diffs the cumulative series, starting from a zero base.
func dailyChanges(series []types.PnlPoint) []float64 {
	changes := make([]float64, len(series))
	prev := 0.0
	for i, p := range series {
		changes[i] = p.Pnl - prev
		prev = p.Pnl
	}
	return changes
}

// maxDrawdown is the most negative gap between the cumulative P&L and its
// running maximum, zero for a series that never falls below its peak.
func maxDrawdown(series []types.PnlPoint) float64 {
	peak := 0.0
	worst := 0.0
	for _, p := range series {
		if p.Pnl > peak {
			peak = p.Pnl
		}
		if dd := p.Pnl - peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSquares := 0.0
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
