package handlers

import (
	"context"
	"net/http"
	"strconv"

	"tradegate/internal/models"
	"tradegate/internal/router"
)

// OrderRouterInterface - контракт конвейера маршрутизации для handlers
type OrderRouterInterface interface {
	Preview(ctx context.Context, intent *models.TradeIntent) (*router.PreviewOutcome, error)
	Execute(ctx context.Context, intent *models.TradeIntent) (*router.ExecuteOutcome, error)
}

// OrderReaderInterface - контракт чтения журнала ордеров
type OrderReaderInterface interface {
	GetRecent(limit int) ([]*models.OrderRecord, error)
	GetPending() ([]*models.OrderRecord, error)
	CountByStatus() (map[string]int, error)
}

// OrderHandler отвечает за прием и просмотр ордеров
//
// Endpoints:
// - POST /api/v1/orders/preview - прогон интента через конвейер без диспатча
// - POST /api/v1/orders - исполнение интента (идемпотентное)
// - GET /api/v1/orders - последние ордера
// - GET /api/v1/orders/pending - ордера с неизвестным исходом
// - GET /api/v1/orders/stats - счетчики по статусам
type OrderHandler struct {
	router OrderRouterInterface
	orders OrderReaderInterface
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимостей
func NewOrderHandler(router OrderRouterInterface, orders OrderReaderInterface) *OrderHandler {
	return &OrderHandler{
		router: router,
		orders: orders,
	}
}

// ExecuteOrderResponse представляет результат исполнения интента
type ExecuteOrderResponse struct {
	Order    *models.OrderRecord `json:"order"`
	Replayed bool                `json:"replayed"`
}

// PreviewOrder прогоняет интент через конвейер без обращения к бирже
//
// POST /api/v1/orders/preview
//
// Body: TradeIntent (exchange, symbol, side, qty или notional, stop_loss,
// take_profit, опционально idempotency_key и waive_risk_bounds).
//
// HTTP коды:
// - 200 OK: интент прошел бы конвейер, возвращает нормализованный ордер
// - 400/404/422/403: отказ конвейера, код вида отказа в поле code
// - 500 Internal Server Error: внутренняя ошибка
func (h *OrderHandler) PreviewOrder(w http.ResponseWriter, r *http.Request) {
	var intent models.TradeIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	outcome, err := h.router.Preview(r.Context(), &intent)
	if err != nil {
		handlePipelineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}

// ExecuteOrder исполняет интент через конвейер
//
// POST /api/v1/orders
//
// Повторный запрос с тем же ключом идемпотентности возвращает запись
// первого исполнения с replayed=true, без повторного диспатча на биржу.
//
// HTTP коды:
// - 201 Created: ордер отправлен впервые
// - 200 OK: повтор по ключу идемпотентности (replayed=true)
// - 400/404/422/403/429: отказ конвейера
// - 502/504: ошибка или таймаут адаптера биржи
func (h *OrderHandler) ExecuteOrder(w http.ResponseWriter, r *http.Request) {
	var intent models.TradeIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	outcome, err := h.router.Execute(r.Context(), &intent)
	if err != nil {
		handlePipelineError(w, err)
		return
	}

	code := http.StatusCreated
	if outcome.Replayed {
		code = http.StatusOK
	}
	respondWithJSON(w, code, ExecuteOrderResponse{
		Order:    outcome.Record,
		Replayed: outcome.Replayed,
	})
}

// GetOrdersResponse представляет список ордеров
type GetOrdersResponse struct {
	Orders []*models.OrderRecord `json:"orders"`
	Total  int                   `json:"total"`
}

// GetOrders возвращает последние ордера
//
// GET /api/v1/orders
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 500 {
		limit = 500
	}

	orders, err := h.orders.GetRecent(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get orders: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetOrdersResponse{
		Orders: orders,
		Total:  len(orders),
	})
}

// GetPendingOrders возвращает ордера с неизвестным исходом
//
// GET /api/v1/orders/pending
//
// Такие ордера возникают при таймауте адаптера: запись создана,
// но исполнился ли ордер на бирже - неизвестно до внешней сверки.
func (h *OrderHandler) GetPendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetPending()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get pending orders: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetOrdersResponse{
		Orders: orders,
		Total:  len(orders),
	})
}

// GetOrderStats возвращает счетчики ордеров по статусам
//
// GET /api/v1/orders/stats
func (h *OrderHandler) GetOrderStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.orders.CountByStatus()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get order stats: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, counts)
}
