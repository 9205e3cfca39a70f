package models

import "time"

// OrderRecord - запись об отправленном ордере
//
// Ключуется уникально по IdempotencyKey и является единственным
// источником истины для вопроса "этот логический ордер уже был?".
// Создаётся при первой попытке execute; повторная попытка с тем же
// ключом находит запись и возвращает её исход без диспатча.
type OrderRecord struct {
	ID              int        `json:"id" db:"id"`
	IdempotencyKey  string     `json:"idempotency_key" db:"idempotency_key"`
	Exchange        string     `json:"exchange" db:"exchange"`
	Symbol          string     `json:"symbol" db:"symbol"` // канонический символ
	Side            string     `json:"side" db:"side"`
	Quantity        float64    `json:"quantity" db:"quantity"` // нормализованный объём
	Status          string     `json:"status" db:"status"`     // pending, filled, rejected, error
	ExchangeOrderID string     `json:"exchange_order_id,omitempty" db:"exchange_order_id"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	FilledAt        *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Статусы ордера
const (
	// OrderStatusPending - ордер отправлен, исход неизвестен
	// (например, таймаут адаптера); разрешается внешней сверкой
	OrderStatusPending  = "pending"
	OrderStatusFilled   = "filled"
	OrderStatusRejected = "rejected"
	OrderStatusError    = "error"
)
