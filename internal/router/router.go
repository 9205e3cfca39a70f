// Package router - оркестратор конвейера маршрутизации ордеров:
// валидация символа → риск-гард → sizing → rate limiter → диспатч
// на адаптер → идемпотентная запись.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradegate/internal/exchange"
	"tradegate/internal/models"
	"tradegate/internal/repository"
	"tradegate/internal/risk"
	"tradegate/internal/sizing"
	"tradegate/internal/symbols"
	"tradegate/pkg/ratelimit"
	"tradegate/pkg/retry"
)

// OrderStore - требуемый роутеру контракт персистентности.
// GetByKey возвращает repository.ErrOrderNotFound для неизвестного ключа.
type OrderStore interface {
	CreateIfAbsent(order *models.OrderRecord) (bool, error)
	GetByKey(key string) (*models.OrderRecord, error)
	UpdateStatus(key, status, exchangeOrderID, errorMessage string, filledAt *time.Time) error
}

// RiskEstimator превращает параметры входа в денежный риск.
// Контракт: entry и stop - цены, qty - объём в базовой валюте;
// результат - максимальная потеря в валюте капитала.
type RiskEstimator func(entry, stop, qty float64) float64

// DefaultRiskEstimator - дистанция до стопа, умноженная на объём.
// При неизвестной цене входа риск оценить нельзя - возвращается 0 и
// per-trade лимит не срабатывает; так бывает только в preview интента
// без notional (execute запрашивает цену у биржи). Блокировку и
// просадку гард проверяет в любом случае.
func DefaultRiskEstimator(entry, stop, qty float64) float64 {
	if entry <= 0 || stop <= 0 {
		return 0
	}
	diff := entry - stop
	if diff < 0 {
		diff = -diff
	}
	return diff * qty
}

// Config - конфигурация роутера
type Config struct {
	// AdapterTimeout - таймаут одного вызова адаптера. Превышение
	// трактуется как неизвестный исход (adapter_timeout), не как отказ.
	AdapterTimeout time.Duration

	// CancelTimeout - таймаут отмены ордеров одной биржи при панике
	CancelTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		AdapterTimeout: 10 * time.Second,
		CancelTimeout:  30 * time.Second,
	}
}

// PreviewOutcome - нормализованный ордер и вердикт риска без диспатча
type PreviewOutcome struct {
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"` // канонический
	Side          string  `json:"side"`
	Qty           float64 `json:"qty"` // после sizing
	RefPrice      float64 `json:"ref_price,omitempty"`
	Notional      float64 `json:"notional,omitempty"`
	StopLoss      float64 `json:"stop_loss,omitempty"`
	TakeProfit    float64 `json:"take_profit,omitempty"`
	EstimatedRisk float64 `json:"estimated_risk"`
	MaxTradeRisk  float64 `json:"max_trade_risk"`
}

// ExecuteOutcome - результат execute: запись ордера и признак повтора
type ExecuteOutcome struct {
	Record *models.OrderRecord `json:"record"`

	// Replayed = true если ответ отдан из существующей записи
	// по ключу идемпотентности, без обращения к бирже
	Replayed bool `json:"replayed"`
}

// Router координирует конвейер. Запросы обрабатываются конкурентно;
// единственная сериализация - по ключу идемпотентности.
type Router struct {
	cfg       Config
	adapters  *exchange.Registry
	validator *symbols.Validator
	guard     *risk.Guard
	limits    *ratelimit.Registry
	store     OrderStore
	estimate  RiskEstimator

	notifications chan<- *models.Notification

	// Сериализация execute по ключу: первый вошедший диспатчит,
	// конкуренты ждут его завершения и перечитывают запись
	inflight   map[string]chan struct{}
	inflightMu sync.Mutex

	now func() time.Time
}

// New создает роутер поверх готовых компонентов конвейера
func New(cfg Config, adapters *exchange.Registry, validator *symbols.Validator, guard *risk.Guard, limits *ratelimit.Registry, store OrderStore) *Router {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultConfig().AdapterTimeout
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = DefaultConfig().CancelTimeout
	}
	return &Router{
		cfg:       cfg,
		adapters:  adapters,
		validator: validator,
		guard:     guard,
		limits:    limits,
		store:     store,
		estimate:  DefaultRiskEstimator,
		inflight:  make(map[string]chan struct{}),
		now:       time.Now,
	}
}

// SetNotifications задает канал уведомлений для оператора
func (r *Router) SetNotifications(ch chan<- *models.Notification) {
	r.notifications = ch
}

// SetRiskEstimator подменяет оценку риска (контракт см. RiskEstimator)
func (r *Router) SetRiskEstimator(fn RiskEstimator) {
	if fn != nil {
		r.estimate = fn
	}
}

// Guard возвращает риск-гард (для API статуса и unlock)
func (r *Router) Guard() *risk.Guard {
	return r.guard
}

// RiskStatus возвращает снапшот состояния риск-гарда
func (r *Router) RiskStatus() risk.Status {
	return r.guard.Status()
}

// ============================================================
// Preview
// ============================================================

// Preview прогоняет интент через валидацию, риск и sizing, не трогая
// rate limiter и адаптеры. Записи об ордере не создаёт.
func (r *Router) Preview(ctx context.Context, intent *models.TradeIntent) (*PreviewOutcome, error) {
	if err := r.precheck(intent); err != nil {
		return nil, r.rejected(intent, err)
	}

	res, err := r.resolve(ctx, intent, false)
	if err != nil {
		return nil, r.rejected(intent, err)
	}

	if err := r.guard.Approve(intent, res.estRisk); err != nil {
		return nil, r.rejected(intent, err)
	}

	return &PreviewOutcome{
		Exchange:      intent.Exchange,
		Symbol:        res.canonical,
		Side:          intent.Side,
		Qty:           res.qty,
		RefPrice:      res.refPrice,
		Notional:      res.qty * res.refPrice,
		StopLoss:      intent.StopLoss,
		TakeProfit:    intent.TakeProf,
		EstimatedRisk: res.estRisk,
		MaxTradeRisk:  r.guard.MaxRiskAmount(),
	}, nil
}

// ============================================================
// Execute
// ============================================================

// Execute прогоняет полный конвейер и отправляет ордер на биржу.
//
// Идемпотентность: существующая запись по ключу интента возвращается
// как есть, без повторного прогона конвейера и без второго диспатча.
// Конкурентный вызов с тем же ключом дожидается первого и отдаёт его
// записанный исход.
func (r *Router) Execute(ctx context.Context, intent *models.TradeIntent) (*ExecuteOutcome, error) {
	if err := r.precheck(intent); err != nil {
		return nil, r.rejected(intent, err)
	}

	key := intent.Key()

	for {
		rec, err := r.store.GetByKey(key)
		if err == nil {
			IdempotentReplays.Inc()
			return &ExecuteOutcome{Record: rec, Replayed: true}, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}

		done, winner := r.enterFlight(key)
		if winner {
			break
		}
		// Другой запрос уже диспатчит этот ключ: ждём и перечитываем.
		// Если победитель был отклонён до диспатча, записи не будет -
		// цикл сделает этот запрос новым победителем.
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer r.leaveFlight(key)

	return r.dispatch(ctx, intent, key)
}

// dispatch выполняет конвейер для победителя гонки по ключу
func (r *Router) dispatch(ctx context.Context, intent *models.TradeIntent, key string) (*ExecuteOutcome, error) {
	started := r.now()

	res, err := r.resolve(ctx, intent, true)
	if err != nil {
		return nil, r.rejected(intent, err)
	}

	if err := r.guard.Approve(intent, res.estRisk); err != nil {
		return nil, r.rejected(intent, err)
	}

	// Rate limit проверяется после одобрения риска: Approve ничего
	// не резервирует, поэтому отказ ведра не сжигает риск-бюджет
	if !r.limits.Acquire(intent.Exchange, ratelimit.ActionOrders) {
		RateLimitDenials.WithLabelValues(intent.Exchange).Inc()
		return nil, r.rejected(intent, models.NewReject(models.KindRateLimited,
			"rate bucket for %s orders is exhausted, retry with backoff", intent.Exchange))
	}

	adapter, err := r.adapters.Get(intent.Exchange)
	if err != nil {
		return nil, r.rejected(intent, models.WrapReject(models.KindAdapterError, err,
			"no adapter registered for %s", intent.Exchange))
	}

	PipelineLatency.Observe(float64(r.now().Sub(started).Microseconds()) / 1000.0)

	// Запись создаётся до диспатча в статусе pending: если процесс
	// умрёт между диспатчем и записью исхода, ключ уже занят и повтор
	// не отправит ордер второй раз
	rec := &models.OrderRecord{
		IdempotencyKey: key,
		Exchange:       intent.Exchange,
		Symbol:         res.canonical,
		Side:           intent.Side,
		Quantity:       res.qty,
		Status:         models.OrderStatusPending,
		CreatedAt:      r.now(),
	}
	created, err := r.store.CreateIfAbsent(rec)
	if err != nil {
		return nil, err
	}
	if !created {
		// Ключ занят другим инстансом процесса
		existing, err := r.store.GetByKey(key)
		if err != nil {
			return nil, err
		}
		IdempotentReplays.Inc()
		return &ExecuteOutcome{Record: existing, Replayed: true}, nil
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, r.cfg.AdapterTimeout)
	defer cancel()

	dispatchStart := r.now()
	result, execErr := adapter.Execute(dispatchCtx, exchange.OrderRequest{
		Symbol:        res.canonical,
		Side:          intent.Side,
		Qty:           res.qty,
		StopLoss:      intent.StopLoss,
		TakeProfit:    intent.TakeProf,
		ClientOrderID: key,
	})
	DispatchLatency.WithLabelValues(intent.Exchange).
		Observe(float64(r.now().Sub(dispatchStart).Milliseconds()))

	if execErr != nil {
		// Таймаут или обрыв контекста (клиент отсоединился, процесс
		// гасят): ответа от биржи нет, но ордер мог быть принят. Исход
		// неизвестен - запись остаётся pending до внешней сверки,
		// провал НЕ предполагается
		if errors.Is(execErr, context.DeadlineExceeded) ||
			errors.Is(execErr, context.Canceled) || dispatchCtx.Err() != nil {
			r.notify(models.NotificationTypeError, models.SeverityWarn, intent.Exchange,
				"order %s dispatch interrupted (%v), outcome unknown, left pending", key, execErr)
			return nil, models.WrapReject(models.KindAdapterTimeout, execErr,
				"%s gave no answer before the call was interrupted, order left pending for reconciliation",
				intent.Exchange)
		}

		// Биржа ответила отказом: исход известен
		if updErr := r.store.UpdateStatus(key, models.OrderStatusError, "", execErr.Error(), nil); updErr != nil {
			return nil, updErr
		}
		OrdersDispatched.WithLabelValues(intent.Exchange, intent.Side, models.OrderStatusError).Inc()
		r.notify(models.NotificationTypeError, models.SeverityError, intent.Exchange,
			"order %s failed: %v", key, execErr)
		return nil, r.rejected(intent, models.WrapReject(models.KindAdapterError, execErr,
			"%s rejected the order", intent.Exchange))
	}

	status := models.OrderStatusPending
	var filledAt *time.Time
	if result.Status == models.OrderStatusFilled {
		status = models.OrderStatusFilled
		now := r.now()
		filledAt = &now
	}

	if err := r.store.UpdateStatus(key, status, result.OrderID, "", filledAt); err != nil {
		return nil, err
	}
	rec.Status = status
	rec.ExchangeOrderID = result.OrderID
	rec.FilledAt = filledAt

	if status == models.OrderStatusFilled {
		r.guard.RecordOutcome(key, 0)
		r.notify(models.NotificationTypeFill, models.SeverityInfo, intent.Exchange,
			"%s %s %g filled (%s)", intent.Side, res.canonical, res.qty, result.OrderID)
	}
	OrdersDispatched.WithLabelValues(intent.Exchange, intent.Side, status).Inc()

	return &ExecuteOutcome{Record: rec}, nil
}

// RecordFill фиксирует реализованный PnL закрытой сделки в риск-гарде
// (вызывается слоем сверки, когда исход позиции известен)
func (r *Router) RecordFill(tradeID string, realizedPnL float64) {
	r.guard.RecordOutcome(tradeID, realizedPnL)
	if st := r.guard.Status(); st.State == risk.StateLocked {
		r.notify(models.NotificationTypeLockout, models.SeverityError, "",
			"trading locked: %s", risk.ReasonInfo(st.LockReason))
	}
}

// ============================================================
// Panic / Unlock
// ============================================================

// Panic блокирует торговлю и запускает best-effort отмену всех
// открытых ордеров на каждой зарегистрированной бирже. Провал отмены
// на одной бирже не мешает попыткам на остальных; исходы собираются
// по каждой бирже отдельно.
func (r *Router) Panic(ctx context.Context) []exchange.CancelOutcome {
	r.guard.Panic()
	PanicSweeps.Inc()
	r.notify(models.NotificationTypePanic, models.SeverityError, "",
		"panic engaged, cancelling all open orders")

	adapters := r.adapters.All()

	var mu sync.Mutex
	var outcomes []exchange.CancelOutcome
	var wg sync.WaitGroup

	for name, adapter := range adapters {
		wg.Add(1)
		go func(name string, adapter exchange.Adapter) {
			defer wg.Done()

			cancelCtx, cancel := context.WithTimeout(ctx, r.cfg.CancelTimeout)
			defer cancel()

			// Отмена при панике критична: retry агрессивнее обычного
			result, err := retry.DoWithResult(cancelCtx, func() ([]exchange.CancelOutcome, error) {
				return adapter.CancelAll(cancelCtx)
			}, retry.AggressiveConfig())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcomes = append(outcomes, exchange.CancelOutcome{
					Exchange: name,
					OK:       false,
					Error:    err.Error(),
				})
				return
			}
			outcomes = append(outcomes, result...)
		}(name, adapter)
	}
	wg.Wait()

	return outcomes
}

// Unlock снимает блокировку риск-гарда
func (r *Router) Unlock() error {
	if err := r.guard.Unlock(); err != nil {
		return err
	}
	r.notify(models.NotificationTypeUnlock, models.SeverityInfo, "", "trading unlocked")
	return nil
}

// ============================================================
// Конвейер: общие стадии
// ============================================================

type resolved struct {
	canonical string
	rule      *models.MarketRule
	qty       float64
	refPrice  float64
	estRisk   float64
}

// precheck - проверки до конвейера: корректность интента и
// обязательные SL/TP. Голый ордер без выходных условий отклоняется
// раньше всех остальных стадий.
func (r *Router) precheck(intent *models.TradeIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if !intent.HasRiskBounds() && !intent.WaiveRiskBounds {
		return models.NewReject(models.KindMissingRiskBounds,
			"stop-loss and take-profit are required (or explicitly waived)")
	}
	return nil
}

// resolve выполняет валидацию символа и sizing. Сеть затрагивается
// только при протухшем листинге и - на execute-пути - при запросе
// справочной цены (интент суммой без объёма либо оценка риска по стопу).
func (r *Router) resolve(ctx context.Context, intent *models.TradeIntent, allowAdapter bool) (*resolved, error) {
	rule, err := r.validator.Rule(ctx, intent.Exchange, intent.Symbol)
	if err != nil {
		return nil, err
	}

	qty := intent.Qty
	refPrice := 0.0

	switch {
	case qty > 0 && intent.Notional > 0:
		refPrice = intent.Notional / qty
	case qty <= 0 && intent.Notional > 0:
		// Объём из суммы требует живой цены
		if !allowAdapter {
			return nil, models.NewReject(models.KindInvalidFormat,
				"preview of a notional-only intent requires qty (no reference price without the exchange)")
		}
		refPrice, err = r.referencePrice(ctx, intent, rule.Symbol)
		if err != nil {
			return nil, err
		}
		qty = intent.Notional / refPrice

	case qty > 0 && intent.StopLoss > 0 && allowAdapter:
		// Риск по стопу считается от цены входа: без неё per-trade
		// лимит проверить нечем. На execute-пути цена берётся с биржи;
		// preview остаётся без сети и оценивает риск только когда цена
		// выводится из notional
		refPrice, err = r.referencePrice(ctx, intent, rule.Symbol)
		if err != nil {
			return nil, err
		}
	}

	normalized, err := sizing.Normalize(rule, qty, refPrice)
	if err != nil {
		return nil, err
	}

	return &resolved{
		canonical: rule.Symbol,
		rule:      rule,
		qty:       normalized,
		refPrice:  refPrice,
		estRisk:   r.estimate(refPrice, intent.StopLoss, normalized),
	}, nil
}

// referencePrice запрашивает справочную цену через preview адаптера
// (класс marketdata, отдельное ведро от ордеров)
func (r *Router) referencePrice(ctx context.Context, intent *models.TradeIntent, canonical string) (float64, error) {
	if !r.limits.Acquire(intent.Exchange, ratelimit.ActionMarketData) {
		RateLimitDenials.WithLabelValues(intent.Exchange).Inc()
		return 0, models.NewReject(models.KindRateLimited,
			"rate bucket for %s market data is exhausted", intent.Exchange)
	}

	adapter, err := r.adapters.Get(intent.Exchange)
	if err != nil {
		return 0, models.WrapReject(models.KindAdapterError, err,
			"no adapter registered for %s", intent.Exchange)
	}

	previewCtx, cancel := context.WithTimeout(ctx, r.cfg.AdapterTimeout)
	defer cancel()

	preview, err := adapter.Preview(previewCtx, exchange.OrderRequest{
		Symbol: canonical,
		Side:   intent.Side,
		Qty:    1, // цена не зависит от объёма
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, models.WrapReject(models.KindAdapterTimeout, err,
				"%s price lookup timed out", intent.Exchange)
		}
		return 0, models.WrapReject(models.KindAdapterError, err,
			"%s price lookup failed", intent.Exchange)
	}
	if preview.RefPrice <= 0 {
		return 0, models.NewReject(models.KindAdapterError,
			"%s returned a non-positive reference price", intent.Exchange)
	}
	return preview.RefPrice, nil
}

// rejected учитывает отказ в метриках и уведомлениях и возвращает его
func (r *Router) rejected(intent *models.TradeIntent, err error) error {
	kind := models.KindOf(err)
	if kind == "" {
		return err
	}
	OrdersRejected.WithLabelValues(intent.Exchange, string(kind)).Inc()
	r.notify(models.NotificationTypeReject, models.SeverityWarn, intent.Exchange,
		"%s %s rejected: %v", intent.Side, intent.Symbol, err)
	return err
}

// notify отправляет уведомление без блокировки: переполненный канал
// теряет сообщение, но не тормозит конвейер
func (r *Router) notify(ntype, severity, exchangeName, format string, args ...interface{}) {
	if r.notifications == nil {
		return
	}
	n := models.NewNotification(ntype, severity, exchangeName, format, args...)
	select {
	case r.notifications <- n:
	default:
	}
}

// ============================================================
// In-flight учёт по ключу идемпотентности
// ============================================================

// enterFlight возвращает (done, true) если вызывающий стал победителем
// по ключу, иначе (канал победителя, false)
func (r *Router) enterFlight(key string) (chan struct{}, bool) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()

	if ch, ok := r.inflight[key]; ok {
		return ch, false
	}
	ch := make(chan struct{})
	r.inflight[key] = ch
	return ch, true
}

func (r *Router) leaveFlight(key string) {
	r.inflightMu.Lock()
	ch := r.inflight[key]
	delete(r.inflight, key)
	r.inflightMu.Unlock()
	if ch != nil {
		close(ch)
	}
}
