//go:build integration

// Package integration contains integration tests for the order routing gateway.
//
// API Integration Tests
// These tests verify the full HTTP request cycle:
// - Order preview and idempotent execution through the pipeline
// - Reject mapping to HTTP statuses
// - Risk guard panic / unlock flow
// - Authentication middleware
// - Health and metrics endpoints
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tradegate/internal/api"
	"tradegate/internal/models"
	"tradegate/internal/risk"
	"tradegate/internal/router"
	"tradegate/pkg/crypto"
)

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthAPI_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	resp, err := http.Get(ts.Server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("expected OK, got %q", string(body))
	}
}

func TestMetricsAPI_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	resp, err := http.Get(ts.Server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("go_goroutines")) {
		t.Error("expected Prometheus metrics output")
	}
}

func TestOrderLifecycle_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	intent := `{
		"exchange": "binance",
		"symbol": "btc/usdt",
		"side": "buy",
		"qty": 0.002,
		"stop_loss": 19000,
		"take_profit": 21000,
		"idempotency_key": "lifecycle-1"
	}`

	// Preview must not touch the adapter
	resp := postJSON(t, ts.Server.URL+"/api/v1/orders/preview", intent)
	var preview router.PreviewOutcome
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &preview)
	if preview.Symbol != "BTCUSDT" {
		t.Errorf("expected canonical BTCUSDT, got %q", preview.Symbol)
	}
	if ts.Adapter.executions() != 0 {
		t.Error("preview must not dispatch to the exchange")
	}

	// First execute dispatches
	resp = postJSON(t, ts.Server.URL+"/api/v1/orders", intent)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("execute: expected 201, got %d", resp.StatusCode)
	}
	var first struct {
		Order    *models.OrderRecord `json:"order"`
		Replayed bool                `json:"replayed"`
	}
	decodeBody(t, resp, &first)
	if first.Replayed {
		t.Error("first execute must not be replayed")
	}
	if first.Order.Status != models.OrderStatusFilled {
		t.Errorf("expected filled, got %q", first.Order.Status)
	}

	// Second execute with the same key replays without dispatch
	resp = postJSON(t, ts.Server.URL+"/api/v1/orders", intent)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", resp.StatusCode)
	}
	var second struct {
		Order    *models.OrderRecord `json:"order"`
		Replayed bool                `json:"replayed"`
	}
	decodeBody(t, resp, &second)
	if !second.Replayed {
		t.Error("expected replayed=true for repeated key")
	}
	if ts.Adapter.executions() != 1 {
		t.Errorf("expected exactly 1 dispatch, got %d", ts.Adapter.executions())
	}

	// The journal shows one order
	resp, err := http.Get(ts.Server.URL + "/api/v1/orders")
	if err != nil {
		t.Fatalf("GET /orders failed: %v", err)
	}
	var list struct {
		Orders []*models.OrderRecord `json:"orders"`
		Total  int                   `json:"total"`
	}
	decodeBody(t, resp, &list)
	if list.Total != 1 {
		t.Errorf("expected 1 order in journal, got %d", list.Total)
	}
}

func TestOrderRejects_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{
			name:     "missing risk bounds",
			body:     `{"exchange":"binance","symbol":"BTCUSDT","side":"buy","qty":0.002}`,
			wantCode: http.StatusBadRequest,
			wantKind: "missing_risk_bounds",
		},
		{
			name:     "unknown symbol",
			body:     `{"exchange":"binance","symbol":"NOPEUSDT","side":"buy","qty":1,"stop_loss":1,"take_profit":2}`,
			wantCode: http.StatusNotFound,
			wantKind: "unknown_symbol",
		},
		{
			name:     "halted symbol",
			body:     `{"exchange":"binance","symbol":"ETHUSDT","side":"buy","qty":1,"stop_loss":1,"take_profit":2}`,
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "inactive_symbol",
		},
		{
			name:     "below min qty",
			body:     `{"exchange":"binance","symbol":"BTCUSDT","side":"buy","qty":0.00001,"stop_loss":19000,"take_profit":21000}`,
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "below_min_qty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.Server.URL+"/api/v1/orders", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
			var errResp struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			decodeBody(t, resp, &errResp)
			if errResp.Code != tt.wantKind {
				t.Errorf("expected code %q, got %q", tt.wantKind, errResp.Code)
			}
		})
	}

	if ts.Adapter.executions() != 0 {
		t.Errorf("rejected intents must not dispatch, got %d executions", ts.Adapter.executions())
	}
}

func TestRiskPanicUnlock_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	intent := `{"exchange":"binance","symbol":"BTCUSDT","side":"buy","qty":0.002,"stop_loss":19000,"take_profit":21000}`

	// Panic locks the guard and cancels open orders
	resp := postJSON(t, ts.Server.URL+"/api/v1/risk/panic", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("panic: expected 200, got %d", resp.StatusCode)
	}
	var panicResp struct {
		State   risk.Status `json:"state"`
		Cancels []struct {
			Exchange string `json:"exchange"`
			OK       bool   `json:"ok"`
		} `json:"cancels"`
	}
	decodeBody(t, resp, &panicResp)
	if panicResp.State.State != risk.StateLocked {
		t.Errorf("expected LOCKED after panic, got %q", panicResp.State.State)
	}
	if len(panicResp.Cancels) != 1 || !panicResp.Cancels[0].OK {
		t.Errorf("expected one successful cancel, got %+v", panicResp.Cancels)
	}

	// Orders are rejected while locked
	resp = postJSON(t, ts.Server.URL+"/api/v1/orders", intent)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 while locked, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unlock restores trading
	resp = postJSON(t, ts.Server.URL+"/api/v1/risk/unlock", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.Server.URL+"/api/v1/orders", intent)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201 after unlock, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConcurrentExecutes_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	intent := `{"exchange":"binance","symbol":"BTCUSDT","side":"buy","qty":0.002,"stop_loss":19000,"take_profit":21000,"idempotency_key":"concurrent-1"}`

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.Server.URL+"/api/v1/orders", "application/json", strings.NewReader(intent))
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if ts.Adapter.executions() != 1 {
		t.Errorf("expected exactly 1 dispatch for concurrent requests, got %d", ts.Adapter.executions())
	}
}

func TestAuthMiddleware_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	hash, err := crypto.HashToken("secret-token")
	if err != nil {
		t.Fatalf("failed to hash token: %v", err)
	}

	// Separate server with auth enabled
	mux := api.SetupRoutes(&api.Dependencies{
		Validator:    &noopValidator{},
		APITokenHash: hash,
	})
	authServer := httptest.NewServer(mux)
	defer authServer.Close()

	// No token
	resp, err := http.Get(authServer.URL + "/api/v1/symbols/binance/BTCUSDT")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	// Wrong token
	req, _ := http.NewRequest(http.MethodGet, authServer.URL+"/api/v1/symbols/binance/BTCUSDT", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", resp.StatusCode)
	}

	// Valid token
	req, _ = http.NewRequest(http.MethodGet, authServer.URL+"/api/v1/symbols/binance/BTCUSDT", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", resp.StatusCode)
	}

	// Health endpoint stays public
	resp, err = http.Get(authServer.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected public /health, got %d", resp.StatusCode)
	}
}
