package models

import (
	"errors"
	"fmt"
)

// RejectKind - стабильный код отказа, по которому UI и оператор
// различают постоянные отказы (LockedOut) от временных (RateLimited)
type RejectKind string

// Все виды отказов пайплайна маршрутизации
const (
	KindInvalidFormat          RejectKind = "invalid_format"
	KindUnknownSymbol          RejectKind = "unknown_symbol"
	KindInactiveSymbol         RejectKind = "inactive_symbol"
	KindListingUnavailable     RejectKind = "listing_unavailable"
	KindBelowMinQty            RejectKind = "below_min_qty"
	KindMinNotionalUnreachable RejectKind = "min_notional_unreachable"
	KindMissingRiskBounds      RejectKind = "missing_risk_bounds"
	KindLockedOut              RejectKind = "locked_out"
	KindDailyDrawdownExceeded  RejectKind = "daily_drawdown_exceeded"
	KindPerTradeRiskExceeded   RejectKind = "per_trade_risk_exceeded"
	KindRateLimited            RejectKind = "rate_limited"
	KindAdapterTimeout         RejectKind = "adapter_timeout"
	KindAdapterError           RejectKind = "adapter_error"
	KindDuplicateRequest       RejectKind = "duplicate_request"
)

// Reject - типизированный отказ пайплайна
//
// Не является фатальной ошибкой: Preview/Execute возвращают Reject
// вместо паники, вызывающий код смотрит на Kind и решает что делать
// (retry с backoff для rate_limited, ручной unlock для locked_out).
type Reject struct {
	Kind    RejectKind
	Message string
	Cause   error // оригинальная ошибка адаптера (если есть)
}

func (r *Reject) Error() string {
	if r.Message == "" {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (r *Reject) Unwrap() error {
	return r.Cause
}

// NewReject создает отказ с форматированным сообщением
func NewReject(kind RejectKind, format string, args ...interface{}) *Reject {
	return &Reject{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapReject создает отказ, сохраняя оригинальную ошибку для Unwrap
func WrapReject(kind RejectKind, cause error, format string, args ...interface{}) *Reject {
	return &Reject{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf возвращает вид отказа или пустую строку для прочих ошибок
func KindOf(err error) RejectKind {
	var reject *Reject
	if errors.As(err, &reject) {
		return reject.Kind
	}
	return ""
}

// IsRetryable возвращает true для отказов, которые имеет смысл
// повторить позже без вмешательства оператора
func (r *Reject) IsRetryable() bool {
	switch r.Kind {
	case KindRateLimited, KindListingUnavailable, KindAdapterTimeout:
		return true
	}
	return false
}
