// Package api_test provides HTTP-level tests for the API server.
package api_test

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voldesk/regime-backend/internal/api"
	"github.com/voldesk/regime-backend/internal/backtester"
	"github.com/voldesk/regime-backend/internal/data"
	"github.com/voldesk/regime-backend/internal/features"
	"github.com/voldesk/regime-backend/internal/pricing"
	"github.com/voldesk/regime-backend/internal/regime"
	"github.com/voldesk/regime-backend/internal/strategy"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, model *regime.Model) *api.Server {
	t.Helper()
	logger := zap.NewNop()

	store, err := data.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	cfg := types.DefaultEngineConfig()
	pricer := pricing.NewPricer(logger)
	catalog := strategy.NewCatalog(logger, cfg.SkewThreshold)

	return api.NewServer(
		logger,
		&cfg.Server,
		cfg.Classifier.SequenceLength,
		store,
		features.NewExtractor(logger),
		regime.NewClassifier(logger, model, cfg.Classifier),
		catalog,
		strategy.NewAnalyzer(logger, pricer, catalog, cfg.Analyzer),
		backtester.NewSimulator(logger, pricer, catalog, cfg.Backtest),
	)
}

func doRequest(t *testing.T, s *api.Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("Response is not JSON: %v", err)
		}
	}
	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, body := doRequest(t, server, "GET", "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
	if body["model_version"] == "" {
		t.Error("Expected model version in health response")
	}
}

func TestCurrentRegimeEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, body := doRequest(t, server, "GET", "/api/v1/market/regime", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}

	regimeName, _ := body["regime"].(string)
	valid := false
	for _, r := range types.Regimes {
		if string(r) == regimeName {
			valid = true
		}
	}
	if !valid {
		t.Errorf("Regime %q outside the known set", regimeName)
	}

	probs, ok := body["probabilities"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing probabilities map")
	}
	total := 0.0
	for _, v := range probs {
		total += v.(float64)
	}
	if math.Abs(total-1) > 1e-6 {
		t.Errorf("Probabilities sum to %v, want 1", total)
	}

	if _, ok := body["market_conditions"].(map[string]interface{}); !ok {
		t.Error("Missing market_conditions")
	}
}

func TestRegimeHistoryEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, body := doRequest(t, server, "GET", "/api/v1/market/regime/history?days=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}

	history, ok := body["history"].([]interface{})
	if !ok {
		t.Fatal("Missing history array")
	}
	if len(history) != 10 {
		t.Errorf("Expected 10 history entries, got %d", len(history))
	}

	entry := history[0].(map[string]interface{})
	for _, key := range []string{"timestamp", "close", "regime", "regime_probability"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("History entry missing %s", key)
		}
	}
}

func TestRegimeHistoryReportsActualDays(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	// The sample store holds 252 snapshots; asking for 500 days must
	// report the shorter span actually classified, not the request.
	rec, body := doRequest(t, server, "GET", "/api/v1/market/regime/history?days=500", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}

	history := body["history"].([]interface{})
	if body["requested_days"].(float64) != 500 {
		t.Errorf("Expected requested_days 500, got %v", body["requested_days"])
	}
	if int(body["days"].(float64)) != len(history) {
		t.Errorf("days %v does not match returned entries %d", body["days"], len(history))
	}
	if len(history) >= 500 {
		t.Errorf("Expected a truncated series, got %d entries", len(history))
	}
}

func TestRegimeSummaryEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, body := doRequest(t, server, "GET", "/api/v1/market/regime/summary?days=30", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}

	total := int(body["total_observations"].(float64))
	if total != 30 {
		t.Errorf("Expected 30 observations, got %d", total)
	}

	distribution, ok := body["regime_distribution"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing regime_distribution")
	}
	countSum := 0
	pctSum := 0.0
	for _, r := range types.Regimes {
		entry, ok := distribution[string(r)].(map[string]interface{})
		if !ok {
			t.Fatalf("Distribution missing regime %s", r)
		}
		countSum += int(entry["count"].(float64))
		pctSum += entry["percentage"].(float64)
	}
	if countSum != total {
		t.Errorf("Regime counts sum to %d, want %d", countSum, total)
	}
	if math.Abs(pctSum-1) > 1e-9 {
		t.Errorf("Regime percentages sum to %v, want 1", pctSum)
	}

	current, _ := body["current_regime"].(string)
	valid := false
	for _, r := range types.Regimes {
		if string(r) == current {
			valid = true
		}
	}
	if !valid {
		t.Errorf("current_regime %q outside the known set", current)
	}

	period, ok := body["period"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing period")
	}
	if period["start"] == "" || period["end"] == "" {
		t.Error("Period bounds missing")
	}
}

func TestRegimeSummaryModelUnavailable(t *testing.T) {
	server := newTestServer(t, nil)

	rec, _ := doRequest(t, server, "GET", "/api/v1/market/regime/summary", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a model, got %d", rec.Code)
	}
}

func TestRecommendEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, body := doRequest(t, server, "GET", "/api/v1/strategy/recommend", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}

	recs, ok := body["recommendations"].([]interface{})
	if !ok {
		t.Fatal("Missing recommendations array")
	}
	if len(recs) != 6 {
		t.Errorf("Expected the full 6-entry catalog, got %d", len(recs))
	}

	prev := math.Inf(1)
	for i, raw := range recs {
		entry := raw.(map[string]interface{})
		score := entry["score"].(float64)
		if score > prev {
			t.Errorf("Recommendations not ranked at index %d", i)
		}
		prev = score
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, body := doRequest(t, server, "POST", "/api/v1/strategy/analyze", map[string]interface{}{
		"strategy_type":     "iron_condor",
		"expiration_days":   45,
		"strike_percentage": 100,
		"position_size":     1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}

	metrics, ok := body["metrics"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing metrics object")
	}
	for _, key := range []string{"expected_profit", "max_loss", "probability_of_profit", "greeks", "risk_metrics"} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("Metrics missing %s", key)
		}
	}

	greeks := metrics["greeks"].(map[string]interface{})
	for _, key := range []string{"delta", "gamma", "theta", "vega"} {
		if _, ok := greeks[key]; !ok {
			t.Errorf("Greeks missing %s", key)
		}
	}
}

func TestAnalyzeUnsupportedType(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, _ := doRequest(t, server, "POST", "/api/v1/strategy/analyze", map[string]interface{}{
		"strategy_type": "strangle",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsupported strategy, got %d", rec.Code)
	}
}

func TestAnalyzeInvalidBody(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	req := httptest.NewRequest("POST", "/api/v1/strategy/analyze", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestBacktestEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, body := doRequest(t, server, "POST", "/api/v1/strategy/backtest", map[string]interface{}{
		"strategy_type":   "straddle",
		"days":            60,
		"expiration_days": 30,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}

	series, ok := body["pnl_series"].([]interface{})
	if !ok || len(series) == 0 {
		t.Fatal("Missing pnl_series")
	}
	summary, ok := body["summary_statistics"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing summary_statistics")
	}
	for _, key := range []string{"total_return", "win_rate", "max_drawdown", "sharpe_ratio"} {
		if _, ok := summary[key]; !ok {
			t.Errorf("Summary missing %s", key)
		}
	}
	if dd := summary["max_drawdown"].(float64); dd > 0 {
		t.Errorf("Max drawdown must be non-positive, got %v", dd)
	}
}

func TestBacktestInsufficientHistory(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	rec, _ := doRequest(t, server, "POST", "/api/v1/strategy/backtest", map[string]interface{}{
		"strategy_type": "straddle",
		"days":          1,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for single-snapshot backtest, got %d", rec.Code)
	}
}

func TestRegimeModelUnavailable(t *testing.T) {
	server := newTestServer(t, nil)

	rec, _ := doRequest(t, server, "GET", "/api/v1/market/regime", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a model, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, regime.DefaultModel())

	// Generate some traffic first so collectors have samples.
	doRequest(t, server, "GET", "/api/v1/health", nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("regime_backend_request_duration_seconds")) {
		t.Error("Metrics output missing request duration histogram")
	}
}
