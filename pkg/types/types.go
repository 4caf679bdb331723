// Package types provides shared type definitions for the volatility backend.
package types

import (
	"time"
)

// Regime represents a discrete market volatility regime.
type Regime string

const (
	RegimeCalm          Regime = "calm"
	RegimeTrending      Regime = "trending"
	RegimeMeanReverting Regime = "mean_reverting"
	RegimeExplosive     Regime = "explosive"
)

// Regimes lists every regime in declaration order. The classifier never
// emits a value outside this set.
var Regimes = []Regime{RegimeCalm, RegimeTrending, RegimeMeanReverting, RegimeExplosive}

// TieBreakPriority orders regimes for argmax ties, highest risk first.
// Under-classifying volatility is the costlier error.
var TieBreakPriority = []Regime{RegimeExplosive, RegimeTrending, RegimeMeanReverting, RegimeCalm}

// MarketSnapshot is one day of normalized market statistics for a symbol.
// Produced by the data collaborator; immutable once created.
type MarketSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Symbol        string    `json:"symbol"`
	Close         float64   `json:"close"`
	VIX           float64   `json:"vix"`          // index-vol level in percentage points
	RealizedVol   float64   `json:"realized_vol"` // annualized, trailing window
	ImpliedVolATM float64   `json:"implied_vol_atm"`
	Skew          float64   `json:"skew"` // 25-delta put IV minus call IV
}

// FeatureVector is the fixed, ordered set of features the classifier
// consumes. Field order matches FeatureNames and Slice().
type FeatureVector struct {
	RealizedVol5       float64 `json:"realized_vol_5d"`
	RealizedVol20      float64 `json:"realized_vol_20d"`
	VolRatio           float64 `json:"vol_ratio"`
	IVATM              float64 `json:"iv_atm"`
	IVPremium          float64 `json:"iv_premium"`
	TermStructureSlope float64 `json:"term_structure_slope"`
	Skew               float64 `json:"skew"`
	SkewChange5        float64 `json:"skew_change_5d"`
	Momentum20         float64 `json:"momentum_20d"`
	VolOfVol           float64 `json:"vol_of_vol"`
}

// FeatureNames lists feature names in vector order.
var FeatureNames = []string{
	"realized_vol_5d",
	"realized_vol_20d",
	"vol_ratio",
	"iv_atm",
	"iv_premium",
	"term_structure_slope",
	"skew",
	"skew_change_5d",
	"momentum_20d",
	"vol_of_vol",
}

// Slice returns the vector values in canonical order.
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.RealizedVol5,
		f.RealizedVol20,
		f.VolRatio,
		f.IVATM,
		f.IVPremium,
		f.TermStructureSlope,
		f.Skew,
		f.SkewChange5,
		f.Momentum20,
		f.VolOfVol,
	}
}

// RegimeClassification is the classifier output: chosen regime, the full
// probability distribution (sums to 1 within tolerance) and the probability
// mass of the chosen label.
type RegimeClassification struct {
	Regime        Regime             `json:"regime"`
	Probabilities map[Regime]float64 `json:"probabilities"`
	Confidence    float64            `json:"confidence"`
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// OptionLeg is a single resolved option position within a strategy.
// Quantity is signed: positive long, negative short.
type OptionLeg struct {
	Type       OptionType `json:"option_type"`
	Strike     float64    `json:"strike"`
	Expiration time.Time  `json:"expiration"`
	Quantity   int        `json:"quantity"`
}

// StrategyInstance is a template resolved against a concrete spot price,
// valuation date and tenor, ready to price.
type StrategyInstance struct {
	Name           string      `json:"name"`
	Type           string      `json:"type"`
	Legs           []OptionLeg `json:"legs"`
	UnderlyingSpot float64     `json:"underlying_spot"`
	OpenedAt       time.Time   `json:"opened_at"`
	BaseExpiration time.Time   `json:"base_expiration"`
}

// Greeks are the value sensitivities of a leg or strategy. Strategy-level
// Greeks are the quantity-signed sum of leg Greeks. Theta is per calendar
// day, vega per volatility point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Add returns the sum of two Greeks.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
	}
}

// Scale returns the Greeks multiplied by a signed quantity.
func (g Greeks) Scale(qty float64) Greeks {
	return Greeks{
		Delta: g.Delta * qty,
		Gamma: g.Gamma * qty,
		Theta: g.Theta * qty,
		Vega:  g.Vega * qty,
	}
}

// PnlPoint is one mark-to-market observation of cumulative strategy P&L.
type PnlPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Pnl       float64   `json:"pnl"`
}

// SummaryStatistics summarize a backtest P&L series. SharpeRatio is nil
// when the daily P&L variance is zero (sentinel, never ±Inf).
type SummaryStatistics struct {
	TotalReturn float64  `json:"total_return"`
	WinRate     float64  `json:"win_rate"`
	MaxDrawdown float64  `json:"max_drawdown"` // <= 0
	SharpeRatio *float64 `json:"sharpe_ratio"`
}

// BacktestResult is the immutable outcome of one backtest run.
type BacktestResult struct {
	ID           string            `json:"id"`
	StrategyType string            `json:"strategy_type"`
	Symbol       string            `json:"symbol"`
	PnlSeries    []PnlPoint        `json:"pnl_series"`
	Summary      SummaryStatistics `json:"summary_statistics"`
	Rolls        int               `json:"rolls"`
	StartedAt    time.Time         `json:"period_start"`
	EndedAt      time.Time         `json:"period_end"`
}

// StrategyRecommendation is one scored catalog entry. Score is in [0,1].
type StrategyRecommendation struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	RiskProfile string  `json:"risk_profile"`
	Duration    string  `json:"duration"`
	Score       float64 `json:"score"`
}

// RiskMetrics carries distribution-derived risk ratios for one strategy
// instance. SharpeRatio is nil when payoff variance is zero.
type RiskMetrics struct {
	SharpeRatio *float64 `json:"sharpe_ratio"`
}

// StrategyMetrics is the single-point analysis result for one strategy
// instance at one valuation date.
type StrategyMetrics struct {
	ExpectedProfit      float64     `json:"expected_profit"`
	MaxLoss             float64     `json:"max_loss"`
	MaxLossUnbounded    bool        `json:"max_loss_unbounded"`
	ProbabilityOfProfit float64     `json:"probability_of_profit"`
	NetPremium          float64     `json:"net_premium"`
	BreakEvenPoints     []float64   `json:"break_even_points"`
	Greeks              Greeks      `json:"greeks"`
	RiskMetrics         RiskMetrics `json:"risk_metrics"`
}
