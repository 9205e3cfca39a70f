package handlers

import (
	"context"
	"errors"
	"net/http"

	"tradegate/internal/exchange"
	"tradegate/internal/risk"
)

// RiskControllerInterface - контракт управления риск-гардом для handlers
type RiskControllerInterface interface {
	RiskStatus() risk.Status
	Panic(ctx context.Context) []exchange.CancelOutcome
	Unlock() error
	RecordFill(tradeID string, realizedPnL float64)
}

// RiskHandler отвечает за управление риск-гардом
//
// Endpoints:
// - GET /api/v1/risk - текущее состояние гарда
// - POST /api/v1/risk/panic - ручная блокировка + отмена всех ордеров
// - POST /api/v1/risk/unlock - снятие блокировки
// - POST /api/v1/risk/fills - учет реализованного PnL закрытой сделки
type RiskHandler struct {
	controller RiskControllerInterface
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимости
func NewRiskHandler(controller RiskControllerInterface) *RiskHandler {
	return &RiskHandler{
		controller: controller,
	}
}

// GetRiskStatus возвращает текущее состояние риск-гарда
//
// GET /api/v1/risk
//
// Возвращает состояние (OPEN/LOCKED), причину блокировки, счетчики
// потерь подряд, дневную просадку и границы капитала.
func (h *RiskHandler) GetRiskStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.controller.RiskStatus())
}

// PanicResponse представляет результат аварийной остановки
type PanicResponse struct {
	Message string                   `json:"message"`
	State   risk.Status              `json:"state"`
	Cancels []exchange.CancelOutcome `json:"cancels"`
}

// Panic переводит гард в LOCKED и отменяет все открытые ордера
//
// POST /api/v1/risk/panic
//
// Блокировка ставится до начала отмен: новые ордера отклоняются
// немедленно, даже если какая-то биржа отменяет долго или с ошибкой.
// Исходы отмен по каждой бирже возвращаются в ответе.
//
// HTTP коды:
// - 200 OK: гард заблокирован, отмены выполнены (возможно частично)
func (h *RiskHandler) Panic(w http.ResponseWriter, r *http.Request) {
	cancels := h.controller.Panic(r.Context())
	if cancels == nil {
		cancels = []exchange.CancelOutcome{}
	}

	respondWithJSON(w, http.StatusOK, PanicResponse{
		Message: "Trading locked, open orders cancelled",
		State:   h.controller.RiskStatus(),
		Cancels: cancels,
	})
}

// Unlock снимает блокировку гарда
//
// POST /api/v1/risk/unlock
//
// HTTP коды:
// - 200 OK: блокировка снята
// - 409 Conflict: дневная просадка все еще выше лимита, разблокировка
//   отклонена (счетчик потерь подряд при этом сброшен)
func (h *RiskHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Unlock(); err != nil {
		var refused *risk.UnlockRefusedError
		if errors.As(err, &refused) {
			respondWithJSON(w, http.StatusConflict, ErrorResponse{
				Error: err.Error(),
				Code:  "unlock_refused",
			})
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Risk guard unlocked",
		Data:    h.controller.RiskStatus(),
	})
}

// RecordFillRequest представляет закрытую сделку для учета в гарде
type RecordFillRequest struct {
	TradeID     string  `json:"trade_id"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// RecordFill учитывает реализованный PnL закрытой сделки
//
// POST /api/v1/risk/fills
//
// Вызывается внешней сверкой после закрытия позиции. Отрицательный
// PnL двигает счетчик потерь подряд и дневную просадку; превышение
// лимитов блокирует гард.
//
// HTTP коды:
// - 200 OK: сделка учтена, возвращает новое состояние гарда
// - 400 Bad Request: невалидное тело запроса
func (h *RiskHandler) RecordFill(w http.ResponseWriter, r *http.Request) {
	var req RecordFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.TradeID == "" {
		respondWithError(w, http.StatusBadRequest, "trade_id is required")
		return
	}

	h.controller.RecordFill(req.TradeID, req.RealizedPnL)

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Fill recorded",
		Data:    h.controller.RiskStatus(),
	})
}
