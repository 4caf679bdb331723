// Package pricing values European option legs and multi-leg strategies with
// the Black-Scholes closed form.
package pricing

import (
	"math"
	"time"

	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

const (
	daysPerYear = 365.0
	// minVolTime is the sigma*sqrt(T) floor below which the option is
	// valued as a deterministic forward claim.
	minVolTime = 1e-9
)

// Pricer values option legs and strategies. Pure and stateless; safe for
// concurrent use.
type Pricer struct {
	logger *zap.Logger
}

// NewPricer creates a pricer.
func NewPricer(logger *zap.Logger) *Pricer {
	return &Pricer{logger: logger}
}

// PriceLeg returns the theoretical price and Greeks of a single option leg
// for one unit (the leg's signed quantity is not applied here).
//
// Time to expiry is max(days, 0)/365. At exactly zero time the leg
// degenerates to intrinsic value with zero gamma, vega and theta. Theta is
// per calendar day; vega per volatility point.
func (p *Pricer) PriceLeg(leg types.OptionLeg, spot, vol, rate float64, valuation time.Time) (float64, types.Greeks, error) {
	if err := validateInputs(leg, spot, vol, rate); err != nil {
		return 0, types.Greeks{}, err
	}

	t := YearsToExpiry(leg.Expiration, valuation)
	if t == 0 {
		return p.expiredLeg(leg, spot)
	}

	volTime := vol * math.Sqrt(t)
	discount := math.Exp(-rate * t)
	if volTime < minVolTime {
		return p.deterministicLeg(leg, spot, t, discount)
	}

	d1 := (math.Log(spot/leg.Strike) + (rate+vol*vol/2)*t) / volTime
	d2 := d1 - volTime

	var price, delta, theta float64
	switch leg.Type {
	case types.OptionPut:
		price = leg.Strike*discount*normCDF(-d2) - spot*normCDF(-d1)
		delta = normCDF(d1) - 1
		theta = -spot*normPDF(d1)*vol/(2*math.Sqrt(t)) + rate*leg.Strike*discount*normCDF(-d2)
	default:
		price = spot*normCDF(d1) - leg.Strike*discount*normCDF(d2)
		delta = normCDF(d1)
		theta = -spot*normPDF(d1)*vol/(2*math.Sqrt(t)) - rate*leg.Strike*discount*normCDF(d2)
	}

	greeks := types.Greeks{
		Delta: delta,
		Gamma: normPDF(d1) / (spot * volTime),
		Theta: theta / daysPerYear,
		Vega:  spot * normPDF(d1) * math.Sqrt(t) / 100,
	}

	return price, greeks, nil
}

// PriceStrategy values a resolved strategy at the given market inputs.
// The returned net premium is the quantity-signed sum of leg prices
// (positive = debit paid to open); Greeks are the signed sum of leg Greeks.
func (p *Pricer) PriceStrategy(instance types.StrategyInstance, spot, vol, rate float64, valuation time.Time) (float64, types.Greeks, error) {
	var net float64
	var greeks types.Greeks

	for _, leg := range instance.Legs {
		price, legGreeks, err := p.PriceLeg(leg, spot, vol, rate, valuation)
		if err != nil {
			return 0, types.Greeks{}, err
		}
		qty := float64(leg.Quantity)
		net += qty * price
		greeks = greeks.Add(legGreeks.Scale(qty))
	}

	return net, greeks, nil
}

// IntrinsicValue returns the exercise value of a leg at the given spot.
func IntrinsicValue(leg types.OptionLeg, spot float64) float64 {
	switch leg.Type {
	case types.OptionPut:
		return math.Max(leg.Strike-spot, 0)
	default:
		return math.Max(spot-leg.Strike, 0)
	}
}

// YearsToExpiry returns max(days to expiry, 0)/365, counting whole calendar
// days between the valuation date and the expiration date.
func YearsToExpiry(expiration, valuation time.Time) float64 {
	days := expiration.Sub(valuation).Hours() / 24
	if days <= 0 {
		return 0
	}
	return days / daysPerYear
}

// expiredLeg prices a leg at exactly zero time to expiry: intrinsic value,
// step delta, all other Greeks exactly zero.
func (p *Pricer) expiredLeg(leg types.OptionLeg, spot float64) (float64, types.Greeks, error) {
	price := IntrinsicValue(leg, spot)

	delta := 0.0
	switch {
	case leg.Type == types.OptionPut && spot < leg.Strike:
		delta = -1
	case leg.Type == types.OptionPut && spot == leg.Strike:
		delta = -0.5
	case leg.Type == types.OptionCall && spot > leg.Strike:
		delta = 1
	case leg.Type == types.OptionCall && spot == leg.Strike:
		delta = 0.5
	}

	return price, types.Greeks{Delta: delta}, nil
}

// deterministicLeg prices a leg under zero effective volatility: the
// terminal price is the forward, so the leg is worth its discounted
// intrinsic value on the forward.
func (p *Pricer) deterministicLeg(leg types.OptionLeg, spot, t, discount float64) (float64, types.Greeks, error) {
	forward := spot / discount

	var price, delta float64
	switch leg.Type {
	case types.OptionPut:
		if forward < leg.Strike {
			price = (leg.Strike - forward) * discount
			delta = -1
		}
	default:
		if forward > leg.Strike {
			price = (forward - leg.Strike) * discount
			delta = 1
		}
	}

	return price, types.Greeks{Delta: delta}, nil
}

func validateInputs(leg types.OptionLeg, spot, vol, rate float64) error {
	switch {
	case spot <= 0:
		return &types.InvalidInstrumentParametersError{Reason: "underlying price must be positive"}
	case leg.Strike < 0:
		return &types.InvalidInstrumentParametersError{Reason: "strike must be non-negative"}
	case vol < 0:
		return &types.InvalidInstrumentParametersError{Reason: "volatility must be non-negative"}
	case rate < 0:
		return &types.InvalidInstrumentParametersError{Reason: "risk-free rate must be non-negative"}
	case leg.Type != types.OptionCall && leg.Type != types.OptionPut:
		return &types.InvalidInstrumentParametersError{Reason: "option type must be call or put"}
	}
	return nil
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
