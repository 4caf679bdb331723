// Single-point strategy risk analysis over a lognormal terminal
// distribution.
package strategy

import (
	"math"
	"time"

	"github.com/voldesk/regime-backend/internal/pricing"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

// minPayoffStdev is the payoff standard deviation below which the Sharpe
// ratio is reported as the nil sentinel instead of a near-infinite value.
const minPayoffStdev = 1e-6

// Analyzer evaluates one strategy instance at one point in time: expected
// profit, max loss, probability of profit and a payoff-distribution Sharpe
// ratio. The terminal-price expectation is integrated over a deterministic
// lognormal quadrature grid, so identical inputs yield identical results.
type Analyzer struct {
	logger  *zap.Logger
	pricer  *pricing.Pricer
	catalog *Catalog
	config  types.AnalyzerConfig
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(logger *zap.Logger, pricer *pricing.Pricer, catalog *Catalog, config types.AnalyzerConfig) *Analyzer {
	if config.GridPoints < 3 {
		config.GridPoints = 401
	}
	if config.GridWidthSigmas <= 0 {
		config.GridWidthSigmas = 5
	}
	if config.UnboundedLossCap <= 0 {
		config.UnboundedLossCap = 250000
	}
	return &Analyzer{logger: logger, pricer: pricer, catalog: catalog, config: config}
}

// Analyze resolves the template against the given market state and returns
// its risk metrics. vol is the annualized ATM volatility used both for
// pricing and for the terminal distribution.
func (a *Analyzer) Analyze(strategyType string, spot, vol float64, valuation time.Time, expirationDays int, strikePct float64, positionSize int) (*types.StrategyMetrics, error) {
	template, err := a.catalog.TemplateByType(strategyType)
	if err != nil {
		return nil, err
	}

	instance, err := Resolve(template, spot, valuation, expirationDays, strikePct, positionSize)
	if err != nil {
		return nil, err
	}

	netPremium, greeks, err := a.pricer.PriceStrategy(instance, spot, vol, a.config.RiskFreeRate, valuation)
	if err != nil {
		return nil, err
	}

	prices, weights := a.terminalGrid(spot, vol, float64(expirationDays)/365)

	payoffs := make([]float64, len(prices))
	for i, s := range prices {
		p, err := a.payoffAtExpiry(instance, s, vol)
		if err != nil {
			return nil, err
		}
		payoffs[i] = p - netPremium
	}

	expected := 0.0
	pop := 0.0
	maxLoss := payoffs[0]
	for i, p := range payoffs {
		expected += weights[i] * p
		if p > 0 {
			pop += weights[i]
		}
		if p < maxLoss {
			maxLoss = p
		}
	}

	variance := 0.0
	for i, p := range payoffs {
		diff := p - expected
		variance += weights[i] * diff * diff
	}

	var sharpe *float64
	if stdev := math.Sqrt(variance); stdev >= minPayoffStdev {
		v := expected / stdev
		sharpe = &v
	}

	unbounded := template.RiskProfile == riskUnlimited && lossGrowsAtEdge(payoffs)
	if unbounded && -a.config.UnboundedLossCap < maxLoss {
		maxLoss = -a.config.UnboundedLossCap
	}

	metrics := &types.StrategyMetrics{
		ExpectedProfit:      expected,
		MaxLoss:             maxLoss,
		MaxLossUnbounded:    unbounded,
		ProbabilityOfProfit: pop,
		NetPremium:          netPremium,
		BreakEvenPoints:     breakEvens(prices, payoffs),
		Greeks:              greeks,
		RiskMetrics:         types.RiskMetrics{SharpeRatio: sharpe},
	}

	a.logger.Debug("strategy analyzed",
		zap.String("type", strategyType),
		zap.Float64("expected_profit", expected),
		zap.Float64("probability_of_profit", pop),
	)

	return metrics, nil
}

// terminalGrid returns terminal prices and normalized probability weights
// for the lognormal distribution of S_T. Degenerate cases (zero tenor or
// zero volatility) collapse to a single point at the forward.
func (a *Analyzer) terminalGrid(spot, vol, t float64) ([]float64, []float64) {
	sd := vol * math.Sqrt(t)
	if sd < 1e-9 {
		forward := spot * math.Exp(a.config.RiskFreeRate*t)
		return []float64{forward}, []float64{1}
	}

	mu := math.Log(spot) + (a.config.RiskFreeRate-vol*vol/2)*t
	n := a.config.GridPoints
	width := a.config.GridWidthSigmas

	prices := make([]float64, n)
	weights := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		z := -width + 2*width*float64(i)/float64(n-1)
		prices[i] = math.Exp(mu + z*sd)
		weights[i] = math.Exp(-z * z / 2)
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}

	return prices, weights
}

// payoffAtExpiry values every leg at the base expiration for a terminal
// price: legs expiring then are worth intrinsic value; longer-dated legs
// (calendar far legs) keep their remaining time value.
func (a *Analyzer) payoffAtExpiry(instance types.StrategyInstance, terminal, vol float64) (float64, error) {
	total := 0.0
	for _, leg := range instance.Legs {
		var value float64
		if leg.Expiration.After(instance.BaseExpiration) {
			v, _, err := a.pricer.PriceLeg(leg, terminal, vol, a.config.RiskFreeRate, instance.BaseExpiration)
			if err != nil {
				return 0, err
			}
			value = v
		} else {
			value = pricing.IntrinsicValue(leg, terminal)
		}
		total += float64(leg.Quantity) * value
	}
	return total, nil
}

// lossGrowsAtEdge reports whether the payoff is still deteriorating at
// either boundary of the modeled outcome space.
func lossGrowsAtEdge(payoffs []float64) bool {
	n := len(payoffs)
	if n < 2 {
		return false
	}
	return payoffs[n-1] < payoffs[n-2] || payoffs[0] < payoffs[1]
}

// breakEvens interpolates the terminal prices where the payoff crosses zero.
func breakEvens(prices, payoffs []float64) []float64 {
	points := make([]float64, 0, 2)
	for i := 1; i < len(payoffs); i++ {
		prev, curr := payoffs[i-1], payoffs[i]
		if prev == 0 {
			points = append(points, prices[i-1])
			continue
		}
		if (prev < 0 && curr > 0) || (prev > 0 && curr < 0) {
			frac := -prev / (curr - prev)
			points = append(points, prices[i-1]+frac*(prices[i]-prices[i-1]))
		}
	}
	return points
}
