// Package backtester replays option strategies over historical snapshot
// sequences with daily mark-to-market.
package backtester

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/voldesk/regime-backend/internal/pricing"
	"github.com/voldesk/regime-backend/internal/strategy"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

// MinSnapshots is the minimum history length for a backtest: one snapshot
// to open on and at least one to mark against.
const MinSnapshots = 2

// Simulator replays a strategy template over a historical path, producing a
// cumulative P&L series and summary statistics. Each Run is an independent
// pure computation; the simulator is safe for concurrent use.
type Simulator struct {
	logger  *zap.Logger
	pricer  *pricing.Pricer
	catalog *strategy.Catalog
	config  types.BacktestConfig
	metrics *SummaryCalculator
}

// NewSimulator creates a simulator.
func NewSimulator(logger *zap.Logger, pricer *pricing.Pricer, catalog *strategy.Catalog, config types.BacktestConfig) *Simulator {
	if config.AnnualizationDays <= 0 {
		config.AnnualizationDays = 252
	}
	return &Simulator{
		logger:  logger,
		pricer:  pricer,
		catalog: catalog,
		config:  config,
		metrics: NewSummaryCalculator(config.AnnualizationDays),
	}
}

// position tracks the currently open strategy instance. Cash amounts are
// decimal; pricing math stays float64.
type position struct {
	instance types.StrategyInstance
	openCost decimal.Decimal
}

// Run opens the template on the first snapshot, re-prices it on every
// subsequent snapshot with that day's close and ATM implied vol, closes at
// intrinsic value on expiry and rolls into a fresh instance while history
// remains.
//
// Fails with InsufficientHistory when fewer than two snapshots are given.
func (s *Simulator) Run(strategyType string, snapshots []types.MarketSnapshot, expirationDays int, strikePct float64, positionSize int) (*types.BacktestResult, error) {
	if len(snapshots) < MinSnapshots {
		return nil, &types.InsufficientHistoryError{Required: MinSnapshots, Got: len(snapshots)}
	}

	template, err := s.catalog.TemplateByType(strategyType)
	if err != nil {
		return nil, err
	}

	open := func(snap types.MarketSnapshot) (*position, error) {
		instance, err := strategy.Resolve(template, snap.Close, snap.Timestamp, expirationDays, strikePct, positionSize)
		if err != nil {
			return nil, err
		}
		cost, _, err := s.pricer.PriceStrategy(instance, snap.Close, snap.ImpliedVolATM, s.config.RiskFreeRate, snap.Timestamp)
		if err != nil {
			return nil, err
		}
		return &position{instance: instance, openCost: decimal.NewFromFloat(cost)}, nil
	}

	pos, err := open(snapshots[0])
	if err != nil {
		return nil, err
	}

	realized := decimal.Zero
	rolls := 0
	series := make([]types.PnlPoint, 0, len(snapshots)-1)

	for i := 1; i < len(snapshots); i++ {
		snap := snapshots[i]

		if expired(pos.instance, snap.Timestamp) {
			closeValue := decimal.NewFromFloat(s.intrinsicValue(pos.instance, snap.Close))
			realized = realized.Add(closeValue.Sub(pos.openCost))
			pos = nil

			// Roll into a fresh instance while history remains.
			if i < len(snapshots)-1 {
				pos, err = open(snap)
				if err != nil {
					return nil, err
				}
				rolls++
			}
		}

		cumulative := realized
		if pos != nil {
			value, _, err := s.pricer.PriceStrategy(pos.instance, snap.Close, snap.ImpliedVolATM, s.config.RiskFreeRate, snap.Timestamp)
			if err != nil {
				return nil, err
			}
			cumulative = cumulative.Add(decimal.NewFromFloat(value).Sub(pos.openCost))
		}

		pnl, _ := cumulative.Float64()
		series = append(series, types.PnlPoint{Timestamp: snap.Timestamp, Pnl: pnl})
	}

	result := &types.BacktestResult{
		ID:           uuid.New().String(),
		StrategyType: strategyType,
		Symbol:       snapshots[0].Symbol,
		PnlSeries:    series,
		Summary:      s.metrics.Calculate(series),
		Rolls:        rolls,
		StartedAt:    snapshots[0].Timestamp,
		EndedAt:      snapshots[len(snapshots)-1].Timestamp,
	}

	s.logger.Info("backtest completed",
		zap.String("id", result.ID),
		zap.String("strategy", strategyType),
		zap.Int("points", len(series)),
		zap.Int("rolls", rolls),
		zap.Float64("total_return", result.Summary.TotalReturn),
	)

	return result, nil
}

// expired reports whether every leg of the instance has reached zero time
// to expiry. The earliest leg drives the close-and-roll: once the base
// expiration passes, the whole structure is settled.
func expired(instance types.StrategyInstance, now time.Time) bool {
	return pricing.YearsToExpiry(instance.BaseExpiration, now) == 0
}

// intrinsicValue settles an instance at exercise value. Legs that still
// have time left (calendar far legs) are also settled at intrinsic, the
// conservative convention for forced closes.
func (s *Simulator) intrinsicValue(instance types.StrategyInstance, spot float64) float64 {
	total := 0.0
	for _, leg := range instance.Legs {
		total += float64(leg.Quantity) * pricing.IntrinsicValue(leg, spot)
	}
	return total
}
