// Package risk реализует процессный риск-гард: дневная просадка,
// лимит риска на сделку, серии убытков и экстренная блокировка.
package risk

import (
	"sync"
	"time"

	"tradegate/internal/models"
	"tradegate/pkg/utils"
)

// Config - конфигурация риск-гарда
type Config struct {
	// RiskPerTrade - доля капитала, допустимая к потере в одной
	// сделке (0.01 = 1%)
	RiskPerTrade float64

	// DailyDDMax - максимальная дневная просадка от стартового
	// капитала дня (0.05 = 5%)
	DailyDDMax float64

	// MaxSeqLosses - блокировка после N убыточных сделок подряд.
	// 0 отключает проверку.
	MaxSeqLosses int

	// LockoutTTL - автоматическая разблокировка по истечении.
	// 0 = блокировка снимается только вручную.
	LockoutTTL time.Duration
}

// DefaultConfig возвращает консервативные значения по умолчанию
func DefaultConfig() Config {
	return Config{
		RiskPerTrade: 0.01,
		DailyDDMax:   0.05,
		MaxSeqLosses: 3,
		LockoutTTL:   0,
	}
}

// Status - снапшот состояния гарда для API и персистентности
type Status struct {
	State          string     `json:"state"`
	LockReason     string     `json:"lock_reason,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	SeqLosses      int        `json:"seq_losses"`
	TradesToday    int        `json:"trades_today"`
	StartingEquity float64    `json:"starting_equity"`
	CurrentEquity  float64    `json:"current_equity"`
	DailyHigh      float64    `json:"daily_high"`
	DailyLow       float64    `json:"daily_low"`
	DailyDrawdown  float64    `json:"daily_drawdown"`
	DayStart       time.Time  `json:"day_start"`
}

// Guard - один экземпляр на процесс, разделяемый всеми запросами.
//
// Каждый переход состояния выполняется под mu целиком: ни один
// вызывающий не увидит наполовину обновлённый счётчик просадки
// или смену состояния посреди решения.
type Guard struct {
	cfg Config

	mu          sync.Mutex
	state       string
	lockReason  string
	lockedAt    time.Time
	seqLosses   int
	tradesToday int

	startingEquity float64 // капитал на начало дня
	currentEquity  float64
	dailyHigh      float64
	dailyLow       float64
	dayStart       time.Time

	now func() time.Time // подменяется в тестах
}

// NewGuard создает гард в состоянии OPEN с указанным капиталом
func NewGuard(cfg Config, startingEquity float64) *Guard {
	now := time.Now()
	return &Guard{
		cfg:            cfg,
		state:          StateOpen,
		startingEquity: startingEquity,
		currentEquity:  startingEquity,
		dailyHigh:      startingEquity,
		dailyLow:       startingEquity,
		dayStart:       utils.DayStartFrom(now),
		now:            time.Now,
	}
}

// Approve решает, допустима ли сделка с оценочным риском estimatedRisk
// (в валюте капитала). При одобрении возвращает nil.
func (g *Guard) Approve(intent *models.TradeIntent, estimatedRisk float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refreshLocked(g.now())

	if g.state == StateLocked {
		return models.NewReject(models.KindLockedOut,
			"trading is locked (%s)", ReasonInfo(g.lockReason))
	}

	if g.startingEquity > 0 {
		projected := (g.startingEquity - g.currentEquity + estimatedRisk) / g.startingEquity
		if projected > g.cfg.DailyDDMax {
			return models.NewReject(models.KindDailyDrawdownExceeded,
				"projected daily drawdown %.4f exceeds max %.4f", projected, g.cfg.DailyDDMax)
		}
	}

	if limit := g.maxRiskLocked(); estimatedRisk > limit {
		return models.NewReject(models.KindPerTradeRiskExceeded,
			"estimated risk %.2f exceeds per-trade cap %.2f", estimatedRisk, limit)
	}

	return nil
}

// RecordOutcome обновляет капитал и счётчики по результату сделки.
// Может перевести гард в LOCKED (просадка или серия убытков).
func (g *Guard) RecordOutcome(tradeID string, realizedPnL float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.refreshLocked(now)

	g.tradesToday++
	if realizedPnL < 0 {
		g.seqLosses++
	} else {
		g.seqLosses = 0
	}

	g.currentEquity += realizedPnL
	if g.currentEquity > g.dailyHigh {
		g.dailyHigh = g.currentEquity
	}
	if g.currentEquity < g.dailyLow {
		g.dailyLow = g.currentEquity
	}

	if g.state == StateOpen {
		if g.dailyDrawdownLocked() >= g.cfg.DailyDDMax {
			g.lockLocked(ReasonDailyDrawdown, now)
		} else if g.cfg.MaxSeqLosses > 0 && g.seqLosses >= g.cfg.MaxSeqLosses {
			g.lockLocked(ReasonSeqLosses, now)
		}
	}
}

// Panic принудительно блокирует торговлю. Отмену открытых ордеров
// по всем биржам запускает Router, не гард.
func (g *Guard) Panic() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lockLocked(ReasonManualPanic, g.now())
}

// UnlockRefusedError возвращается когда блокировку нельзя снять вручную
type UnlockRefusedError struct {
	Reason string
}

func (e *UnlockRefusedError) Error() string {
	return "unlock refused: " + ReasonInfo(e.Reason)
}

// Unlock снимает ручную или TTL-блокировку. Блокировка по дневной
// просадке не снимается, пока просадка превышает лимит: состояние
// вернулось бы в LOCKED на следующей же сделке. Учёт просадки unlock
// не откатывает.
func (g *Guard) Unlock() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refreshLocked(g.now())

	if g.state == StateOpen {
		return nil
	}
	if g.lockReason == ReasonDailyDrawdown && g.dailyDrawdownLocked() >= g.cfg.DailyDDMax {
		return &UnlockRefusedError{Reason: g.lockReason}
	}

	if g.lockReason == ReasonSeqLosses {
		g.seqLosses = 0
	}
	g.unlockLocked()
	return nil
}

// MaxRiskAmount возвращает текущий лимит риска на одну сделку
func (g *Guard) MaxRiskAmount() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxRiskLocked()
}

// Status возвращает консистентный снапшот состояния
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refreshLocked(g.now())

	st := Status{
		State:          g.state,
		LockReason:     g.lockReason,
		SeqLosses:      g.seqLosses,
		TradesToday:    g.tradesToday,
		StartingEquity: g.startingEquity,
		CurrentEquity:  g.currentEquity,
		DailyHigh:      g.dailyHigh,
		DailyLow:       g.dailyLow,
		DailyDrawdown:  g.dailyDrawdownLocked(),
		DayStart:       g.dayStart,
	}
	if g.state == StateLocked {
		lockedAt := g.lockedAt
		st.LockedAt = &lockedAt
	}
	return st
}

// Restore восстанавливает состояние из сохранённого снапшота
// (используется при старте процесса)
func (g *Guard) Restore(st Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st.State == StateLocked || st.State == StateOpen {
		g.state = st.State
	}
	g.lockReason = st.LockReason
	if st.LockedAt != nil {
		g.lockedAt = *st.LockedAt
	}
	g.seqLosses = st.SeqLosses
	g.tradesToday = st.TradesToday
	if st.StartingEquity > 0 {
		g.startingEquity = st.StartingEquity
		g.currentEquity = st.CurrentEquity
		g.dailyHigh = st.DailyHigh
		g.dailyLow = st.DailyLow
	}
	if !st.DayStart.IsZero() {
		g.dayStart = st.DayStart
	}
}

// ============================================================
// Внутренние методы (вызываются только под mu)
// ============================================================

func (g *Guard) maxRiskLocked() float64 {
	return g.currentEquity * g.cfg.RiskPerTrade
}

func (g *Guard) dailyDrawdownLocked() float64 {
	if g.startingEquity <= 0 {
		return 0
	}
	dd := (g.startingEquity - g.currentEquity) / g.startingEquity
	if dd < 0 {
		return 0
	}
	return dd
}

func (g *Guard) lockLocked(reason string, now time.Time) {
	if !CanTransition(g.state, StateLocked) && g.state != StateLocked {
		return
	}
	g.state = StateLocked
	g.lockReason = reason
	g.lockedAt = now
}

func (g *Guard) unlockLocked() {
	g.state = StateOpen
	g.lockReason = ""
	g.lockedAt = time.Time{}
}

// refreshLocked лениво применяет истечение TTL блокировки и смену
// торгового дня. Фоновый таймер не нужен: проверка выполняется при
// каждом обращении к гарду.
func (g *Guard) refreshLocked(now time.Time) {
	if g.state == StateLocked && g.cfg.LockoutTTL > 0 &&
		now.Sub(g.lockedAt) >= g.cfg.LockoutTTL {
		g.unlockLocked()
	}

	if !utils.SameDay(g.dayStart, now) {
		g.resetDayLocked(now)
	}
}

// resetDayLocked начинает новый торговый день: стартовый капитал
// переустанавливается, счётчики обнуляются. Блокировка по просадке
// и серии убытков снимается; ручной panic новый день не отменяет.
func (g *Guard) resetDayLocked(now time.Time) {
	g.startingEquity = g.currentEquity
	g.dailyHigh = g.currentEquity
	g.dailyLow = g.currentEquity
	g.dayStart = utils.DayStartFrom(now)
	g.tradesToday = 0
	g.seqLosses = 0

	if g.state == StateLocked && g.lockReason != ReasonManualPanic {
		g.unlockLocked()
	}
}
