package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Стороны сделки
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// IdempotencyBucket - ширина временного окна для производного ключа
// идемпотентности. Два одинаковых интента внутри одного окна считаются
// одним логическим ордером; в разных окнах - разными.
const IdempotencyBucket = time.Minute

// TradeIntent - намерение совершить сделку, как его прислал вызывающий
//
// Создаётся один раз на запрос и никогда не мутируется. Symbol хранится
// в том виде, в каком его ввёл пользователь - нормализация происходит
// в валидаторе символов.
type TradeIntent struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`               // buy, sell
	Qty      float64 `json:"qty,omitempty"`      // объём в базовой валюте
	Notional float64 `json:"notional,omitempty"` // либо сумма в quote (одно из двух)
	StopLoss float64 `json:"stop_loss,omitempty"`
	TakeProf float64 `json:"take_profit,omitempty"`

	// WaiveRiskBounds - явный отказ от обязательных SL/TP.
	// Без него интент без стопов отклоняется до всех остальных проверок.
	WaiveRiskBounds bool `json:"waive_risk_bounds,omitempty"`

	// IdempotencyKey - ключ от клиента; пустой ключ выводится
	// детерминированно из полей интента (см. DeriveKey)
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// HasRiskBounds возвращает true если заданы оба выходных условия
func (ti *TradeIntent) HasRiskBounds() bool {
	return ti.StopLoss > 0 && ti.TakeProf > 0
}

// Key возвращает ключ идемпотентности интента: клиентский, если задан,
// иначе производный от полей
func (ti *TradeIntent) Key() string {
	if ti.IdempotencyKey != "" {
		return ti.IdempotencyKey
	}
	return ti.DeriveKey(time.Now())
}

// DeriveKey выводит ключ идемпотентности из полей интента и временного
// окна. SHA-256 от канонической строки полей - два повторных вызова с
// тем же интентом в одном окне дают один и тот же ключ.
func (ti *TradeIntent) DeriveKey(now time.Time) string {
	bucket := now.UTC().Unix() / int64(IdempotencyBucket.Seconds())
	payload := fmt.Sprintf("%s|%s|%s|%.12f|%.12f|%.12f|%.12f|%d",
		ti.Exchange, ti.Symbol, ti.Side, ti.Qty, ti.Notional, ti.StopLoss, ti.TakeProf, bucket)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Validate проверяет базовую корректность интента до пайплайна
func (ti *TradeIntent) Validate() error {
	if ti.Exchange == "" {
		return NewReject(KindInvalidFormat, "exchange is required")
	}
	if ti.Symbol == "" {
		return NewReject(KindInvalidFormat, "symbol is required")
	}
	if ti.Side != SideBuy && ti.Side != SideSell {
		return NewReject(KindInvalidFormat, "side must be %q or %q, got %q", SideBuy, SideSell, ti.Side)
	}
	if ti.Qty <= 0 && ti.Notional <= 0 {
		return NewReject(KindInvalidFormat, "either qty or notional must be positive")
	}
	return nil
}
