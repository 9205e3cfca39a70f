package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket - Token Bucket лимитер для контроля частоты запросов к API бирж
//
// Алгоритм:
// - Ведро наполняется токенами с постоянной скоростью (refill токенов/сек)
// - Максимальная ёмкость ведра = capacity (позволяет короткие всплески)
// - Каждый запрос потребляет 1 токен
// - Если токенов нет, Acquire сразу отвечает отказом - решение о retry
//   с backoff принимает вызывающий код
//
// Инвариант: количество токенов всегда в [0, capacity], в минус ведро
// не уходит - попытка либо списывает токен, либо отклоняется.
type Bucket struct {
	capacity   float64   // максимальная ёмкость (burst)
	refillRate float64   // токенов в секунду
	tokens     float64   // текущее количество токенов
	lastRefill time.Time // время последнего пополнения
	mu         sync.Mutex
}

// NewBucket создаёт новое ведро с полным запасом токенов
//
// Параметры:
//   - capacity: максимальный burst (например, 20)
//   - refillRate: скорость пополнения в токенах/сек (например, 10)
//
// Типичные лимиты бирж:
//   - binance:  10 req/sec на ордера (burst 20)
//   - coinbase: 15 req/sec (burst 30)
//   - kraken:   1 req/sec на ордера (burst 15)
func NewBucket(capacity, refillRate float64) *Bucket {
	if capacity <= 0 {
		capacity = 10
	}
	if refillRate <= 0 {
		refillRate = capacity / 2
	}

	return &Bucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity, // начинаем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены на основе прошедшего времени
// ВАЖНО: вызывается под lock'ом
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Acquire пытается получить токен без блокировки
//
// Возвращает:
//   - true: токен списан, запрос можно отправлять
//   - false: токенов нет, запрос отклоняется (RateLimited)
func (b *Bucket) Acquire() bool {
	return b.acquireAt(time.Now())
}

// acquireAt - версия Acquire с явным временем, для тестов
func (b *Bucket) acquireAt(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait блокирует до получения токена или отмены контекста
//
// Используется фоновыми задачами (прогрев листингов), где немедленный
// отказ не нужен. Торговый пайплайн использует Acquire.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.refill(now)

		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}

		// Время до появления следующего токена
		waitTime := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tokens возвращает текущее количество доступных токенов
// Полезно для мониторинга и отладки
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(time.Now())
	return b.tokens
}

// Capacity возвращает максимальную ёмкость ведра
func (b *Bucket) Capacity() float64 {
	return b.capacity
}

// RefillRate возвращает скорость пополнения (токенов/сек)
func (b *Bucket) RefillRate() float64 {
	return b.refillRate
}

// ============================================================
// Registry - набор независимых вёдер по (биржа, класс действия)
// ============================================================

// Классы действий с независимыми лимитами
const (
	ActionOrders     = "orders"     // размещение/отмена ордеров
	ActionMarketData = "marketdata" // листинги, тикеры
	ActionAccount    = "account"    // балансы, позиции
)

// Key идентифицирует ведро: одна биржа + один класс действий
type Key struct {
	Exchange string
	Action   string
}

// BucketConfig - конфигурация одного ведра
type BucketConfig struct {
	Capacity   float64
	RefillRate float64
}

// Registry управляет вёдрами для всех пар (биржа, действие)
//
// Вёдра полностью независимы: исчерпание лимита ордеров на одной бирже
// не влияет ни на другую биржу, ни на market data той же биржи.
// Все конкурентные вызовы для одной пары делят одно ведро.
type Registry struct {
	buckets  map[Key]*Bucket
	defaults BucketConfig
	mu       sync.RWMutex
}

// NewRegistry создаёт реестр; defaults применяются к вёдрам,
// для которых не было явного Configure
func NewRegistry(defaults BucketConfig) *Registry {
	if defaults.Capacity <= 0 {
		defaults.Capacity = 10
	}
	if defaults.RefillRate <= 0 {
		defaults.RefillRate = 5
	}
	return &Registry{
		buckets:  make(map[Key]*Bucket),
		defaults: defaults,
	}
}

// Configure задаёт конфигурацию конкретного ведра.
// Пересоздаёт ведро: накопленные токены сбрасываются в полную ёмкость.
func (r *Registry) Configure(exchange, action string, cfg BucketConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[Key{Exchange: exchange, Action: action}] = NewBucket(cfg.Capacity, cfg.RefillRate)
}

// Acquire пытается получить токен из ведра (exchange, action)
//
// Ведро создаётся лениво с дефолтной конфигурацией при первом обращении.
func (r *Registry) Acquire(exchange, action string) bool {
	return r.bucket(exchange, action).Acquire()
}

// Wait блокирует до токена из ведра (exchange, action) или отмены контекста
func (r *Registry) Wait(ctx context.Context, exchange, action string) error {
	return r.bucket(exchange, action).Wait(ctx)
}

// Bucket возвращает ведро для пары (exchange, action), создавая при
// необходимости. Экспортируется для мониторинга остатка токенов.
func (r *Registry) Bucket(exchange, action string) *Bucket {
	return r.bucket(exchange, action)
}

func (r *Registry) bucket(exchange, action string) *Bucket {
	key := Key{Exchange: exchange, Action: action}

	r.mu.RLock()
	b, ok := r.buckets[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Перепроверка после захвата write-lock'а
	if b, ok = r.buckets[key]; ok {
		return b
	}
	b = NewBucket(r.defaults.Capacity, r.defaults.RefillRate)
	r.buckets[key] = b
	return b
}
