// Package types provides configuration types for the volatility backend.
package types

import "time"

// ClassifierConfig configures the two-stage regime classifier.
type ClassifierConfig struct {
	// BlendWeight is the weight of the static ensemble distribution when the
	// sequence stage is available; the sequence stage gets 1-BlendWeight.
	// Values outside (0,1] fall back to the 0.5 default at construction, so
	// an unset field never disables the static stage.
	BlendWeight float64 `json:"blendWeight" mapstructure:"blend_weight"`
	// SequenceLength is the minimum feature-history length for the sequence
	// stage; shorter histories fall back to 100% static.
	SequenceLength int `json:"sequenceLength" mapstructure:"sequence_length"`
}

// AnalyzerConfig configures single-point strategy analysis.
type AnalyzerConfig struct {
	// GridPoints is the number of terminal-price quadrature nodes.
	GridPoints int `json:"gridPoints" mapstructure:"grid_points"`
	// GridWidthSigmas is the half-width of the log-price grid in standard
	// deviations of the terminal distribution.
	GridWidthSigmas float64 `json:"gridWidthSigmas" mapstructure:"grid_width_sigmas"`
	// UnboundedLossCap caps reported max loss for undefined-risk structures.
	UnboundedLossCap float64 `json:"unboundedLossCap" mapstructure:"unbounded_loss_cap"`
	// RiskFreeRate is the continuously compounded annual rate.
	RiskFreeRate float64 `json:"riskFreeRate" mapstructure:"risk_free_rate"`
}

// BacktestConfig configures backtest simulation.
type BacktestConfig struct {
	// AnnualizationDays scales the daily Sharpe ratio by sqrt(days).
	AnnualizationDays int `json:"annualizationDays" mapstructure:"annualization_days"`
	// RiskFreeRate is the continuously compounded annual rate used when
	// marking open positions to market.
	RiskFreeRate float64 `json:"riskFreeRate" mapstructure:"risk_free_rate"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
}

// EngineConfig aggregates every engine knob. Loaded once at startup and
// passed explicitly into components; never read from ambient global state.
type EngineConfig struct {
	Classifier ClassifierConfig `json:"classifier" mapstructure:"classifier"`
	Analyzer   AnalyzerConfig   `json:"analyzer" mapstructure:"analyzer"`
	Backtest   BacktestConfig   `json:"backtest" mapstructure:"backtest"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	// ModelPath optionally points at a JSON regime-model parameter file.
	ModelPath string `json:"modelPath" mapstructure:"model_path"`
	// SkewThreshold is the skew magnitude above which skew-sensitive
	// structures are favored by the catalog.
	SkewThreshold float64 `json:"skewThreshold" mapstructure:"skew_threshold"`
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Classifier: ClassifierConfig{
			BlendWeight:    0.5,
			SequenceLength: 10,
		},
		Analyzer: AnalyzerConfig{
			GridPoints:       401,
			GridWidthSigmas:  5.0,
			UnboundedLossCap: 250000,
			RiskFreeRate:     0.02,
		},
		Backtest: BacktestConfig{
			AnnualizationDays: 252,
			RiskFreeRate:      0.02,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		SkewThreshold: 0.04,
	}
}
