// Package strategy provides the options strategy catalog, recommendation
// scoring and single-point risk analysis.
package strategy

import (
	"sort"
	"time"

	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

// LegShape describes one leg of a template relative to the current spot and
// the base expiration: strike as percent of spot, expiration as a day offset
// from the base expiration, signed unit quantity.
type LegShape struct {
	Type       types.OptionType
	StrikePct  float64
	OffsetDays int
	Quantity   int
}

// Template is one named strategy shape with its static metadata. The
// catalog is a closed, statically declared set; declaration order is the
// ranking tie-break.
type Template struct {
	Name        string
	Type        string
	Description string
	RiskProfile string
	Duration    string
	Legs        []LegShape
	// Affinity weights the template per regime, each in [0,1].
	Affinity map[types.Regime]float64
	// TermSensitive marks calendar-type structures whose edge depends on
	// the term-structure slope.
	TermSensitive bool
	// SkewSensitive marks structures that monetize pronounced skew.
	SkewSensitive bool
}

const (
	riskLimited   = "limited_risk"
	riskUnlimited = "unlimited_risk"
)

// templates is the full catalog, carried over from the production strategy
// table. Order matters: it is the deterministic tie-break.
var templates = []Template{
	{
		Name:        "Long Calendar Spread",
		Type:        "calendar_spread",
		Description: "Buy longer-dated option, sell shorter-dated option at same strike",
		RiskProfile: riskLimited,
		Duration:    "30-60 days",
		Legs: []LegShape{
			{Type: types.OptionCall, StrikePct: 100, OffsetDays: 0, Quantity: -1},
			{Type: types.OptionCall, StrikePct: 100, OffsetDays: 30, Quantity: 1},
		},
		Affinity: map[types.Regime]float64{
			types.RegimeCalm:          1.0,
			types.RegimeMeanReverting: 0.4,
			types.RegimeTrending:      0.1,
		},
		TermSensitive: true,
	},
	{
		Name:        "Iron Butterfly",
		Type:        "butterfly",
		Description: "Combination of bull and bear spreads with same middle strike",
		RiskProfile: riskLimited,
		Duration:    "30-45 days",
		Legs: []LegShape{
			{Type: types.OptionPut, StrikePct: 95, OffsetDays: 0, Quantity: 1},
			{Type: types.OptionPut, StrikePct: 100, OffsetDays: 0, Quantity: -1},
			{Type: types.OptionCall, StrikePct: 100, OffsetDays: 0, Quantity: -1},
			{Type: types.OptionCall, StrikePct: 105, OffsetDays: 0, Quantity: 1},
		},
		Affinity: map[types.Regime]float64{
			types.RegimeCalm:          0.8,
			types.RegimeMeanReverting: 0.9,
			types.RegimeTrending:      0.1,
		},
	},
	{
		Name:        "Long Straddle",
		Type:        "straddle",
		Description: "Buy ATM call and put with same expiration",
		RiskProfile: riskUnlimited,
		Duration:    "30-45 days",
		Legs: []LegShape{
			{Type: types.OptionCall, StrikePct: 100, OffsetDays: 0, Quantity: 1},
			{Type: types.OptionPut, StrikePct: 100, OffsetDays: 0, Quantity: 1},
		},
		Affinity: map[types.Regime]float64{
			types.RegimeExplosive: 1.0,
			types.RegimeTrending:  0.5,
		},
	},
	{
		Name:        "Iron Condor",
		Type:        "iron_condor",
		Description: "Sell OTM put spread and OTM call spread",
		RiskProfile: riskLimited,
		Duration:    "30-45 days",
		Legs: []LegShape{
			{Type: types.OptionPut, StrikePct: 90, OffsetDays: 0, Quantity: 1},
			{Type: types.OptionPut, StrikePct: 95, OffsetDays: 0, Quantity: -1},
			{Type: types.OptionCall, StrikePct: 105, OffsetDays: 0, Quantity: -1},
			{Type: types.OptionCall, StrikePct: 110, OffsetDays: 0, Quantity: 1},
		},
		Affinity: map[types.Regime]float64{
			types.RegimeMeanReverting: 1.0,
			types.RegimeCalm:          0.6,
		},
	},
	{
		Name:        "Ratio Back Spread",
		Type:        "backspread",
		Description: "Buy OTM options and sell fewer ATM options",
		RiskProfile: riskUnlimited,
		Duration:    "15-30 days",
		Legs: []LegShape{
			{Type: types.OptionCall, StrikePct: 100, OffsetDays: 0, Quantity: -1},
			{Type: types.OptionCall, StrikePct: 105, OffsetDays: 0, Quantity: 2},
		},
		Affinity: map[types.Regime]float64{
			types.RegimeTrending:  0.9,
			types.RegimeExplosive: 0.7,
		},
		SkewSensitive: true,
	},
	{
		Name:        "Risk Reversal",
		Type:        "risk_reversal",
		Description: "Sell OTM put to finance an OTM call",
		RiskProfile: riskUnlimited,
		Duration:    "30-45 days",
		Legs: []LegShape{
			{Type: types.OptionPut, StrikePct: 95, OffsetDays: 0, Quantity: -1},
			{Type: types.OptionCall, StrikePct: 105, OffsetDays: 0, Quantity: 1},
		},
		Affinity: map[types.Regime]float64{
			types.RegimeTrending:  0.8,
			types.RegimeExplosive: 0.3,
		},
		SkewSensitive: true,
	},
}

// Catalog scores and ranks strategy templates for a classification and the
// current market structure. Stateless given its static template table.
type Catalog struct {
	logger        *zap.Logger
	skewThreshold float64
}

// NewCatalog creates a catalog. skewThreshold is the skew magnitude above
// which skew-sensitive structures are rewarded.
func NewCatalog(logger *zap.Logger, skewThreshold float64) *Catalog {
	if skewThreshold <= 0 {
		skewThreshold = 0.04
	}
	return &Catalog{logger: logger, skewThreshold: skewThreshold}
}

// Templates returns the catalog entries in declaration order.
func (c *Catalog) Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// TemplateByType looks up a template by its type tag.
func (c *Catalog) TemplateByType(strategyType string) (Template, error) {
	for _, t := range templates {
		if t.Type == strategyType {
			return t, nil
		}
	}
	return Template{}, &types.UnsupportedStrategyTypeError{StrategyType: strategyType}
}

// Recommend scores every template against the classification and returns
// the full list ranked by descending score; callers may truncate.
//
// Score = sum over regimes of probability*affinity, multiplied by a
// term-structure fit factor and a skew fit factor, both in [0,1]. Ties keep
// declaration order.
func (c *Catalog) Recommend(cls *types.RegimeClassification, termSlope, skew float64) []types.StrategyRecommendation {
	recs := make([]types.StrategyRecommendation, 0, len(templates))

	for _, t := range templates {
		base := 0.0
		for r, p := range cls.Probabilities {
			base += p * t.Affinity[r]
		}

		score := base * c.termFactor(t, termSlope) * c.skewFactor(t, skew)

		recs = append(recs, types.StrategyRecommendation{
			Name:        t.Name,
			Type:        t.Type,
			Description: t.Description,
			RiskProfile: t.RiskProfile,
			Duration:    t.Duration,
			Score:       score,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})

	c.logger.Debug("strategies ranked",
		zap.String("regime", string(cls.Regime)),
		zap.String("top", recs[0].Type),
		zap.Float64("top_score", recs[0].Score),
	)

	return recs
}

// termFactor rewards calendar-type structures when the term-structure slope
// favors owning the longer tenor, penalizes them otherwise. Non-sensitive
// structures are unaffected.
func (c *Catalog) termFactor(t Template, slope float64) float64 {
	if !t.TermSensitive {
		return 1.0
	}
	return clamp01(0.5 + slope*10)
}

// skewFactor rewards skew-sensitive structures when the skew magnitude
// exceeds the configured threshold and penalizes them when skew is flat.
func (c *Catalog) skewFactor(t Template, skew float64) float64 {
	if !t.SkewSensitive {
		return 1.0
	}
	if skew >= c.skewThreshold || skew <= -c.skewThreshold {
		return 1.0
	}
	return 0.5
}

// Resolve instantiates a template against a concrete spot, valuation date,
// tenor and strike shift. strikePct shifts the whole structure (100 keeps
// template strikes); positionSize scales every leg quantity.
func Resolve(t Template, spot float64, valuation time.Time, expirationDays int, strikePct float64, positionSize int) (types.StrategyInstance, error) {
	if spot <= 0 {
		return types.StrategyInstance{}, &types.InvalidInstrumentParametersError{Reason: "underlying price must be positive"}
	}
	if strikePct <= 0 {
		return types.StrategyInstance{}, &types.InvalidInstrumentParametersError{Reason: "strike percentage must be positive"}
	}
	if expirationDays < 0 {
		return types.StrategyInstance{}, &types.InvalidInstrumentParametersError{Reason: "expiration days must be non-negative"}
	}
	if positionSize <= 0 {
		return types.StrategyInstance{}, &types.InvalidInstrumentParametersError{Reason: "position size must be positive"}
	}

	base := valuation.AddDate(0, 0, expirationDays)
	legs := make([]types.OptionLeg, 0, len(t.Legs))
	for _, shape := range t.Legs {
		legs = append(legs, types.OptionLeg{
			Type:       shape.Type,
			Strike:     spot * (strikePct / 100) * (shape.StrikePct / 100),
			Expiration: base.AddDate(0, 0, shape.OffsetDays),
			Quantity:   shape.Quantity * positionSize,
		})
	}

	return types.StrategyInstance{
		Name:           t.Name,
		Type:           t.Type,
		Legs:           legs,
		UnderlyingSpot: spot,
		OpenedAt:       valuation,
		BaseExpiration: base,
	}, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
