package handlers

import (
	"context"
	"net/http"

	"tradegate/internal/models"
	"tradegate/internal/symbols"

	"github.com/gorilla/mux"
)

// SymbolValidatorInterface - контракт валидатора символов для handlers
type SymbolValidatorInterface interface {
	ValidateWithReason(ctx context.Context, exchangeName, symbol string) (bool, string)
	Rule(ctx context.Context, exchangeName, symbol string) (*models.MarketRule, error)
	Refresh(ctx context.Context, exchangeName string) error
}

// SymbolHandler отвечает за валидацию символов и кеш листингов
//
// Endpoints:
// - GET /api/v1/symbols/{exchange}/{symbol} - проверка символа и его правила
// - POST /api/v1/symbols/{exchange}/refresh - принудительное обновление листинга
type SymbolHandler struct {
	validator SymbolValidatorInterface
}

// NewSymbolHandler создает новый SymbolHandler с внедрением зависимости
func NewSymbolHandler(validator SymbolValidatorInterface) *SymbolHandler {
	return &SymbolHandler{
		validator: validator,
	}
}

// ValidateSymbolResponse представляет вердикт по символу
type ValidateSymbolResponse struct {
	Exchange string             `json:"exchange"`
	Symbol   string             `json:"symbol"` // как прислал клиент
	Valid    bool               `json:"valid"`
	Reason   string             `json:"reason,omitempty"` // bad_format, unknown_symbol, inactive, listing_unavailable
	Rule     *models.MarketRule `json:"rule,omitempty"`   // правила биржи для валидного символа
}

// ValidateSymbol проверяет символ против грамматики биржи и листинга
//
// GET /api/v1/symbols/{exchange}/{symbol}
//
// Символ принимается в любом пользовательском написании - нормализация
// под конвенцию биржи происходит внутри. Для валидного символа в ответ
// включаются правила биржи (шаг объёма, минимумы).
//
// HTTP коды:
// - 200 OK: проверка выполнена (valid может быть и false)
// - 502 Bad Gateway: листинг недоступен и кеша нет
func (h *SymbolHandler) ValidateSymbol(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	exchangeName := vars["exchange"]
	symbol := vars["symbol"]

	valid, reason := h.validator.ValidateWithReason(r.Context(), exchangeName, symbol)

	response := ValidateSymbolResponse{
		Exchange: exchangeName,
		Symbol:   symbol,
		Valid:    valid,
		Reason:   reason,
	}

	if valid {
		rule, err := h.validator.Rule(r.Context(), exchangeName, symbol)
		if err != nil {
			handlePipelineError(w, err)
			return
		}
		response.Rule = rule
	} else if reason == symbols.ReasonListingUnavailable {
		respondWithJSON(w, http.StatusBadGateway, response)
		return
	}

	respondWithJSON(w, http.StatusOK, response)
}

// RefreshListing принудительно обновляет кеш листинга биржи
//
// POST /api/v1/symbols/{exchange}/refresh
//
// HTTP коды:
// - 200 OK: листинг обновлен
// - 502 Bad Gateway: биржа недоступна, кеш не тронут
func (h *SymbolHandler) RefreshListing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	exchangeName := vars["exchange"]

	if err := h.validator.Refresh(r.Context(), exchangeName); err != nil {
		if kind := models.KindOf(err); kind != "" {
			respondWithReject(w, kind, err.Error())
			return
		}
		// Сетевой отказ биржи или неизвестная биржа
		respondWithJSON(w, http.StatusBadGateway, ErrorResponse{
			Error: err.Error(),
			Code:  string(models.KindListingUnavailable),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Listing refreshed for " + exchangeName,
	})
}
