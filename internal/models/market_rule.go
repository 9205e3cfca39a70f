package models

import "time"

// Статусы торгуемости символа (публикуются биржей)
const (
	MarketStatusTradable = "tradable"
	MarketStatusHalted   = "halted"
	MarketStatusDelisted = "delisted"
)

// MarketRule - правила биржи для одного символа
//
// Иммутабельна после получения: обновление листинга заменяет
// весь набор правил целиком, отдельные поля никогда не мутируются.
type MarketRule struct {
	Exchange       string    `json:"exchange"`
	Symbol         string    `json:"symbol"` // канонический символ биржи
	BaseAsset      string    `json:"base_asset"`
	QuoteAsset     string    `json:"quote_asset"`
	Status         string    `json:"status"`          // tradable, halted, delisted
	StepSize       float64   `json:"step_size"`       // шаг изменения объёма (lot size)
	MinQty         float64   `json:"min_qty"`         // минимальный объём ордера
	MinNotional    float64   `json:"min_notional"`    // минимальная сумма сделки в quote
	PricePrecision int       `json:"price_precision"` // знаков после запятой в цене
	FetchedAt      time.Time `json:"fetched_at"`
}

// IsTradable возвращает true если символ сейчас можно торговать
func (m *MarketRule) IsTradable() bool {
	return m.Status == MarketStatusTradable
}
