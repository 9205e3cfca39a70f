package handlers

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"tradegate/internal/models"
)

// json — общий сериализатор для всех handlers. jsoniter быстрее
// encoding/json и полностью совместим с ним по тегам.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondWithReject отправляет отказ пайплайна с кодом вида отказа
// и HTTP статусом, соответствующим виду
func respondWithReject(w http.ResponseWriter, kind models.RejectKind, message string) {
	respondWithJSON(w, rejectStatus(kind), ErrorResponse{
		Error: message,
		Code:  string(kind),
	})
}

// rejectStatus отображает вид отказа в HTTP статус.
// Клиентские ошибки запроса дают 4xx, проблемы на стороне биржи - 5xx.
func rejectStatus(kind models.RejectKind) int {
	switch kind {
	case models.KindInvalidFormat, models.KindMissingRiskBounds:
		return http.StatusBadRequest
	case models.KindUnknownSymbol:
		return http.StatusNotFound
	case models.KindInactiveSymbol,
		models.KindBelowMinQty,
		models.KindMinNotionalUnreachable:
		return http.StatusUnprocessableEntity
	case models.KindLockedOut,
		models.KindDailyDrawdownExceeded,
		models.KindPerTradeRiskExceeded:
		return http.StatusForbidden
	case models.KindRateLimited:
		return http.StatusTooManyRequests
	case models.KindDuplicateRequest:
		return http.StatusConflict
	case models.KindAdapterTimeout:
		return http.StatusGatewayTimeout
	case models.KindListingUnavailable, models.KindAdapterError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handlePipelineError разбирает ошибку конвейера: типизированный отказ
// уходит клиенту с соответствующим статусом, всё остальное - как 500
func handlePipelineError(w http.ResponseWriter, err error) {
	if kind := models.KindOf(err); kind != "" {
		respondWithReject(w, kind, err.Error())
		return
	}
	respondWithError(w, http.StatusInternalServerError, err.Error())
}
