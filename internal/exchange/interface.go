// Package exchange предоставляет унифицированный интерфейс адаптеров бирж.
package exchange

import (
	"context"
	"time"

	"tradegate/internal/models"
)

// Adapter определяет узкий контракт, который ядро требует от биржи.
// Как именно адаптер общается с биржей (REST, подписи, WebSocket) -
// его личное дело; ядро видит только эти операции.
type Adapter interface {
	// Connect сохраняет учётные данные для подписанных запросов
	Connect(apiKey, secret, passphrase string) error

	// Name возвращает имя биржи (ключ в реестре)
	Name() string

	// ListMarkets возвращает полный листинг правил биржи.
	// Результат заменяет предыдущий снапшот целиком.
	ListMarkets(ctx context.Context) ([]models.MarketRule, error)

	// Preview оценивает ордер без отправки на биржу
	Preview(ctx context.Context, req OrderRequest) (*PreviewResult, error)

	// Execute размещает ордер. Вызывается не более одного раза
	// на ключ идемпотентности - это гарантирует Router.
	Execute(ctx context.Context, req OrderRequest) (*ExecutionResult, error)

	// CancelAll отменяет все открытые ордера на бирже.
	// Возвращает исход по каждому ордеру.
	CancelAll(ctx context.Context) ([]CancelOutcome, error)

	// Close закрывает соединения с биржей
	Close() error
}

// OrderRequest - ордер в терминах ядра (символ уже канонический)
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // "buy" или "sell"
	Qty        float64 `json:"qty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	// ClientOrderID передаётся бирже для её собственной дедупликации
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// PreviewResult - оценка ордера без исполнения
type PreviewResult struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Qty        float64 `json:"qty"`
	RefPrice   float64 `json:"ref_price"`    // текущая справочная цена
	Notional   float64 `json:"notional"`     // qty * ref_price
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	EstMaxLoss float64 `json:"est_max_loss"` // |entry - stop| * qty
	RiskReward float64 `json:"risk_reward"`  // |tp - entry| / |entry - stop|
}

// ExecutionResult - результат размещения ордера
type ExecutionResult struct {
	OrderID      string    `json:"order_id"` // ID ордера на бирже
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"` // filled, pending
	SubmittedAt  time.Time `json:"submitted_at"`
}

// CancelOutcome - исход отмены одного ордера при CancelAll
type CancelOutcome struct {
	Exchange string `json:"exchange"`
	OrderID  string `json:"order_id"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}
