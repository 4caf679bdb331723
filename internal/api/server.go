// Package api provides the HTTP server exposing the analytical engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/voldesk/regime-backend/internal/backtester"
	"github.com/voldesk/regime-backend/internal/data"
	"github.com/voldesk/regime-backend/internal/features"
	"github.com/voldesk/regime-backend/internal/regime"
	"github.com/voldesk/regime-backend/internal/strategy"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

const defaultSymbol = "SPX"

// Server is the HTTP API server. It owns no analytical state: every request
// is a pure computation over store data.
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	seqLength  int
	router     *mux.Router
	httpServer *http.Server
	metrics    *Metrics

	store      *data.Store
	extractor  *features.Extractor
	classifier *regime.Classifier
	catalog    *strategy.Catalog
	analyzer   *strategy.Analyzer
	simulator  *backtester.Simulator
}

// NewServer creates the API server around the engine components.
func NewServer(
	logger *zap.Logger,
	config *types.ServerConfig,
	seqLength int,
	store *data.Store,
	extractor *features.Extractor,
	classifier *regime.Classifier,
	catalog *strategy.Catalog,
	analyzer *strategy.Analyzer,
	simulator *backtester.Simulator,
) *Server {
	s := &Server{
		logger:     logger,
		config:     config,
		seqLength:  seqLength,
		router:     mux.NewRouter(),
		metrics:    NewMetrics(),
		store:      store,
		extractor:  extractor,
		classifier: classifier,
		catalog:    catalog,
		analyzer:   analyzer,
		simulator:  simulator,
	}

	s.setupRoutes()
	return s
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.instrument("health", s.handleHealth)).Methods("GET")

	s.router.HandleFunc("/api/v1/market/regime", s.instrument("regime_current", s.handleCurrentRegime)).Methods("GET")
	s.router.HandleFunc("/api/v1/market/regime/history", s.instrument("regime_history", s.handleRegimeHistory)).Methods("GET")
	s.router.HandleFunc("/api/v1/market/regime/summary", s.instrument("regime_summary", s.handleRegimeSummary)).Methods("GET")

	s.router.HandleFunc("/api/v1/strategy/recommend", s.instrument("recommend", s.handleRecommend)).Methods("GET")
	s.router.HandleFunc("/api/v1/strategy/analyze", s.instrument("analyze", s.handleAnalyze)).Methods("POST")
	s.router.HandleFunc("/api/v1/strategy/backtest", s.instrument("backtest", s.handleBacktest)).Methods("POST")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// instrument wraps a handler with request duration metrics.
func (s *Server) instrument(endpoint string, next func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := next(w, r)
		s.metrics.RequestDuration.
			WithLabelValues(endpoint, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) int {
	return s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"model_version": s.classifier.ModelVersion(),
		"time":          time.Now().Unix(),
	})
}

// classificationWindow is the snapshot lookback needed for one current
// classification with full sequence context.
func (s *Server) classificationWindow() int {
	return features.MinLookback + s.seqLength
}

// featureSeries slides the extractor over the snapshot sequence, returning
// one vector per snapshot from index MinLookback-1 on.
func (s *Server) featureSeries(snapshots []types.MarketSnapshot) ([]types.FeatureVector, error) {
	if len(snapshots) < features.MinLookback {
		return nil, &types.InsufficientHistoryError{Required: features.MinLookback, Got: len(snapshots)}
	}

	vectors := make([]types.FeatureVector, 0, len(snapshots)-features.MinLookback+1)
	for i := features.MinLookback; i <= len(snapshots); i++ {
		fv, err := s.extractor.Extract(snapshots[:i])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, fv)
	}
	return vectors, nil
}

// classifyLatest runs the full pipeline for the most recent snapshot.
func (s *Server) classifyLatest(symbol string) (*types.RegimeClassification, types.FeatureVector, types.MarketSnapshot, error) {
	snapshots, err := s.store.Latest(symbol, s.classificationWindow())
	if err != nil {
		return nil, types.FeatureVector{}, types.MarketSnapshot{}, err
	}

	vectors, err := s.featureSeries(snapshots)
	if err != nil {
		return nil, types.FeatureVector{}, types.MarketSnapshot{}, err
	}

	current := vectors[len(vectors)-1]
	history := vectors[:len(vectors)-1]

	cls, err := s.classifier.Classify(current, history)
	if err != nil {
		return nil, types.FeatureVector{}, types.MarketSnapshot{}, err
	}

	s.metrics.Classifications.WithLabelValues(string(cls.Regime)).Inc()
	return cls, current, snapshots[len(snapshots)-1], nil
}

func (s *Server) handleCurrentRegime(w http.ResponseWriter, r *http.Request) int {
	symbol := querySymbol(r)

	cls, fv, last, err := s.classifyLatest(symbol)
	if err != nil {
		return s.writeError(w, err)
	}

	return s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":     last.Timestamp.Format(time.RFC3339),
		"symbol":        symbol,
		"regime":        cls.Regime,
		"confidence":    cls.Confidence,
		"probabilities": cls.Probabilities,
		"features":      fv,
		"market_conditions": map[string]float64{
			"vix":          last.VIX,
			"realized_vol": last.RealizedVol,
			"implied_vol":  last.ImpliedVolATM,
			"skew":         last.Skew,
		},
	})
}

// classifySpan classifies up to `days` trailing snapshots, fetching the extra
// lookback the first day's feature window needs. The returned series may be
// shorter than requested when the store holds less history.
func (s *Server) classifySpan(symbol string, days int) ([]types.MarketSnapshot, []*types.RegimeClassification, error) {
	snapshots, err := s.store.GetRange(symbol, days+features.MinLookback-1)
	if err != nil {
		return nil, nil, err
	}

	vectors, err := s.featureSeries(snapshots)
	if err != nil {
		return nil, nil, err
	}

	series, err := s.classifier.ClassifySeries(vectors)
	if err != nil {
		return nil, nil, err
	}

	return snapshots, series, nil
}

func (s *Server) handleRegimeHistory(w http.ResponseWriter, r *http.Request) int {
	symbol := querySymbol(r)
	days := queryInt(r, "days", 30)

	snapshots, series, err := s.classifySpan(symbol, days)
	if err != nil {
		return s.writeError(w, err)
	}

	offset := len(snapshots) - len(series)
	entries := make([]map[string]interface{}, 0, len(series))
	for i, cls := range series {
		snap := snapshots[offset+i]
		entries = append(entries, map[string]interface{}{
			"timestamp":          snap.Timestamp.Format(time.RFC3339),
			"close":              snap.Close,
			"vix":                snap.VIX,
			"realized_vol":       snap.RealizedVol,
			"implied_vol_atm":    snap.ImpliedVolATM,
			"regime":             cls.Regime,
			"regime_probability": cls.Confidence,
		})
	}

	return s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":         symbol,
		"requested_days": days,
		"days":           len(entries),
		"history":        entries,
	})
}

func (s *Server) handleRegimeSummary(w http.ResponseWriter, r *http.Request) int {
	symbol := querySymbol(r)
	days := queryInt(r, "days", 30)

	snapshots, series, err := s.classifySpan(symbol, days)
	if err != nil {
		return s.writeError(w, err)
	}

	counts := make(map[types.Regime]int, len(types.Regimes))
	for _, cls := range series {
		counts[cls.Regime]++
	}

	distribution := make(map[types.Regime]map[string]interface{}, len(types.Regimes))
	for _, regime := range types.Regimes {
		pct := 0.0
		if len(series) > 0 {
			pct = float64(counts[regime]) / float64(len(series))
		}
		distribution[regime] = map[string]interface{}{
			"count":      counts[regime],
			"percentage": pct,
		}
	}

	offset := len(snapshots) - len(series)
	return s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"period": map[string]string{
			"start": snapshots[offset].Timestamp.Format(time.RFC3339),
			"end":   snapshots[len(snapshots)-1].Timestamp.Format(time.RFC3339),
		},
		"total_observations":  len(series),
		"regime_distribution": distribution,
		"current_regime":      series[len(series)-1].Regime,
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) int {
	symbol := querySymbol(r)

	cls, fv, last, err := s.classifyLatest(symbol)
	if err != nil {
		return s.writeError(w, err)
	}

	recommendations := s.catalog.Recommend(cls, fv.TermStructureSlope, fv.Skew)

	return s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": last.Timestamp.Format(time.RFC3339),
		"symbol":    symbol,
		"market_conditions": map[string]interface{}{
			"regime":       cls.Regime,
			"confidence":   cls.Confidence,
			"vix":          last.VIX,
			"realized_vol": last.RealizedVol,
			"implied_vol":  last.ImpliedVolATM,
			"skew":         last.Skew,
		},
		"recommendations": recommendations,
	})
}

// analyzeRequest carries the analyze/backtest parameters.
type analyzeRequest struct {
	Symbol           string  `json:"symbol"`
	StrategyType     string  `json:"strategy_type"`
	Days             int     `json:"days"`
	ExpirationDays   int     `json:"expiration_days"`
	StrikePercentage float64 `json:"strike_percentage"`
	PositionSize     int     `json:"position_size"`
}

func (req *analyzeRequest) applyDefaults() {
	if req.Symbol == "" {
		req.Symbol = defaultSymbol
	}
	if req.Days == 0 {
		req.Days = 30
	}
	if req.ExpirationDays == 0 {
		req.ExpirationDays = 30
	}
	if req.StrikePercentage == 0 {
		req.StrikePercentage = 100
	}
	if req.PositionSize == 0 {
		req.PositionSize = 1
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) int {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.applyDefaults()

	snapshots, err := s.store.Latest(req.Symbol, 1)
	if err != nil {
		return s.writeError(w, err)
	}
	if len(snapshots) == 0 {
		return s.writeError(w, &types.InsufficientHistoryError{Required: 1, Got: 0})
	}
	last := snapshots[len(snapshots)-1]

	metrics, err := s.analyzer.Analyze(
		req.StrategyType,
		last.Close,
		last.ImpliedVolATM,
		last.Timestamp,
		req.ExpirationDays,
		req.StrikePercentage,
		req.PositionSize,
	)
	if err != nil {
		return s.writeError(w, err)
	}

	return s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":     last.Timestamp.Format(time.RFC3339),
		"strategy_type": req.StrategyType,
		"parameters": map[string]interface{}{
			"expiration_days":   req.ExpirationDays,
			"strike_percentage": req.StrikePercentage,
			"position_size":     req.PositionSize,
		},
		"metrics": metrics,
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) int {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.applyDefaults()

	snapshots, err := s.store.GetRange(req.Symbol, req.Days)
	if err != nil {
		return s.writeError(w, err)
	}

	start := time.Now()
	result, err := s.simulator.Run(req.StrategyType, snapshots, req.ExpirationDays, req.StrikePercentage, req.PositionSize)
	if err != nil {
		return s.writeError(w, err)
	}

	s.metrics.BacktestRuns.Inc()
	s.metrics.BacktestSeconds.Observe(time.Since(start).Seconds())

	return s.writeJSON(w, http.StatusOK, result)
}

// writeError maps typed engine failures to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) int {
	status := http.StatusInternalServerError

	var insufficientHistory *types.InsufficientHistoryError
	var invalidParams *types.InvalidInstrumentParametersError
	var unsupported *types.UnsupportedStrategyTypeError
	var notLoaded *types.ModelNotLoadedError

	switch {
	case errors.As(err, &insufficientHistory):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &invalidParams):
		status = http.StatusBadRequest
	case errors.As(err, &unsupported):
		status = http.StatusBadRequest
	case errors.As(err, &notLoaded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}

	return s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
	return status
}

func querySymbol(r *http.Request) string {
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		return symbol
	}
	return defaultSymbol
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
