package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradegate/internal/models"

	"github.com/gorilla/mux"
)

// ============ SymbolHandler Tests ============

func TestSymbolHandler_ValidateSymbol(t *testing.T) {
	t.Run("returns rule for listed symbol", func(t *testing.T) {
		mockValidator := NewMockSymbolValidator()
		mockValidator.AddRule("binance", "BTCUSDT", &models.MarketRule{
			Exchange:    "binance",
			Symbol:      "BTCUSDT",
			Status:      models.MarketStatusTradable,
			StepSize:    0.001,
			MinQty:      0.001,
			MinNotional: 10,
		})
		handler := NewSymbolHandler(mockValidator)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/symbols/binance/BTCUSDT", nil)
		req = mux.SetURLVars(req, map[string]string{"exchange": "binance", "symbol": "BTCUSDT"})
		w := httptest.NewRecorder()

		handler.ValidateSymbol(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response ValidateSymbolResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !response.Valid {
			t.Error("expected valid=true for listed symbol")
		}
		if response.Rule == nil || response.Rule.StepSize != 0.001 {
			t.Error("expected market rule in response")
		}
	})

	t.Run("returns reason for unknown symbol", func(t *testing.T) {
		handler := NewSymbolHandler(NewMockSymbolValidator())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/symbols/binance/NOPEUSDT", nil)
		req = mux.SetURLVars(req, map[string]string{"exchange": "binance", "symbol": "NOPEUSDT"})
		w := httptest.NewRecorder()

		handler.ValidateSymbol(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response ValidateSymbolResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Valid {
			t.Error("expected valid=false for unknown symbol")
		}
		if response.Reason != "unknown_symbol" {
			t.Errorf("expected reason unknown_symbol, got %q", response.Reason)
		}
	})

	t.Run("returns 502 when listing unavailable", func(t *testing.T) {
		mockValidator := NewMockSymbolValidator()
		mockValidator.reason = "listing_unavailable"
		handler := NewSymbolHandler(mockValidator)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/symbols/binance/BTCUSDT", nil)
		req = mux.SetURLVars(req, map[string]string{"exchange": "binance", "symbol": "BTCUSDT"})
		w := httptest.NewRecorder()

		handler.ValidateSymbol(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected status %d, got %d", http.StatusBadGateway, w.Code)
		}
	})
}

func TestSymbolHandler_RefreshListing(t *testing.T) {
	t.Run("refreshes listing", func(t *testing.T) {
		mockValidator := NewMockSymbolValidator()
		handler := NewSymbolHandler(mockValidator)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/symbols/kraken/refresh", nil)
		req = mux.SetURLVars(req, map[string]string{"exchange": "kraken"})
		w := httptest.NewRecorder()

		handler.RefreshListing(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if len(mockValidator.refreshed) != 1 || mockValidator.refreshed[0] != "kraken" {
			t.Errorf("expected refresh call for kraken, got %v", mockValidator.refreshed)
		}
	})

	t.Run("returns 502 when exchange unreachable", func(t *testing.T) {
		mockValidator := NewMockSymbolValidator()
		mockValidator.refreshErr = errors.New("failed to refresh binance listing: connection refused")
		handler := NewSymbolHandler(mockValidator)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/symbols/binance/refresh", nil)
		req = mux.SetURLVars(req, map[string]string{"exchange": "binance"})
		w := httptest.NewRecorder()

		handler.RefreshListing(w, req)

		if w.Code != http.StatusBadGateway {
			t.Fatalf("expected status %d, got %d", http.StatusBadGateway, w.Code)
		}

		var response ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Code != string(models.KindListingUnavailable) {
			t.Errorf("expected code listing_unavailable, got %q", response.Code)
		}
	})
}
