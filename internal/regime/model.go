// Package regime classifies market volatility regimes.
package regime

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/voldesk/regime-backend/pkg/types"
)

// Stump is one decision stump in the static ensemble. It compares a single
// feature against a threshold and adds the matching vote vector (one score
// per regime, in types.Regimes order) to the class scores.
type Stump struct {
	Feature   int        `json:"feature"`
	Threshold float64    `json:"threshold"`
	Below     [4]float64 `json:"below"`
	Above     [4]float64 `json:"above"`
}

// Model holds the trained, immutable classifier parameters: the stump
// ensemble for the static stage and the regime transition matrix for the
// sequence stage. Loaded once at startup and passed explicitly into the
// classifier.
type Model struct {
	Version string `json:"version"`
	// Bias is the per-regime prior score, in types.Regimes order.
	Bias   [4]float64 `json:"bias"`
	Stumps []Stump    `json:"stumps"`
	// Transition[i][j] is the probability of moving from regime i to j
	// between consecutive observations, in types.Regimes order.
	Transition [4][4]float64 `json:"transition"`
}

// Validate checks the parameter set for internal consistency.
func (m *Model) Validate() error {
	if len(m.Stumps) == 0 {
		return fmt.Errorf("model %q has no stumps", m.Version)
	}
	for i, s := range m.Stumps {
		if s.Feature < 0 || s.Feature >= len(types.FeatureNames) {
			return fmt.Errorf("stump %d references feature %d, have %d features",
				i, s.Feature, len(types.FeatureNames))
		}
	}
	for i, row := range m.Transition {
		sum := 0.0
		for _, p := range row {
			if p < 0 {
				return fmt.Errorf("transition row %d has negative probability", i)
			}
			sum += p
		}
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("transition row %d sums to %.4f, want 1", i, sum)
		}
	}
	return nil
}

// LoadModel reads model parameters from a JSON file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model parameters: %w", err)
	}

	return &m, nil
}

// Feature indices into types.FeatureVector.Slice.
const (
	featRealizedVol5 = iota
	featRealizedVol20
	featVolRatio
	featIVATM
	featIVPremium
	featTermSlope
	featSkew
	featSkewChange5
	featMomentum20
	featVolOfVol
)

// DefaultModel returns the built-in parameter set, fitted offline on daily
// SPX statistics. Thresholds follow the regime boundaries of the legacy
// rule-based classifier (index vol 15/30, realized-implied gap).
func DefaultModel() *Model {
	// Vote order: calm, trending, mean_reverting, explosive.
	return &Model{
		Version: "2024.1-stump12",
		Bias:    [4]float64{0.2, 0.0, 0.1, -0.4},
		Stumps: []Stump{
			{Feature: featRealizedVol20, Threshold: 0.15,
				Below: [4]float64{1.2, 0, 0, 0},
				Above: [4]float64{0, 0.3, 0, 0.6}},
			{Feature: featRealizedVol20, Threshold: 0.30,
				Above: [4]float64{-1.0, 0, 0, 1.5}},
			{Feature: featIVATM, Threshold: 0.15,
				Below: [4]float64{1.0, 0, 0, 0},
				Above: [4]float64{0, 0, 0.3, 0.3}},
			{Feature: featIVATM, Threshold: 0.35,
				Above: [4]float64{0, 0, 0, 1.2}},
			{Feature: featMomentum20, Threshold: 0.5,
				Above: [4]float64{0, 1.4, 0, 0}},
			{Feature: featMomentum20, Threshold: -0.5,
				Below: [4]float64{0, 1.4, 0, 0}},
			{Feature: featVolRatio, Threshold: 1.25,
				Below: [4]float64{0, 0, 0.4, 0},
				Above: [4]float64{0, 0.2, 0, 0.8}},
			{Feature: featIVPremium, Threshold: 0.05,
				Below: [4]float64{0, 0.2, 0, 0},
				Above: [4]float64{0, 0, 0.8, 0}},
			{Feature: featSkew, Threshold: 0.06,
				Above: [4]float64{0, 0, 0.2, 0.5}},
			{Feature: featVolOfVol, Threshold: 1.0,
				Below: [4]float64{0.3, 0, 0, 0},
				Above: [4]float64{0, 0, 0, 0.7}},
			{Feature: featSkewChange5, Threshold: 0.02,
				Above: [4]float64{0, 0, 0, 0.4}},
			{Feature: featTermSlope, Threshold: 0.02,
				Below: [4]float64{0.2, 0, 0, 0},
				Above: [4]float64{0, 0, 0.3, 0}},
		},
		Transition: [4][4]float64{
			{0.88, 0.05, 0.05, 0.02},
			{0.06, 0.84, 0.05, 0.05},
			{0.07, 0.05, 0.84, 0.04},
			{0.02, 0.08, 0.08, 0.82},
		},
	}
}
