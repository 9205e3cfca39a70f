// Package symbols нормализует и проверяет символы по правилам бирж.
package symbols

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"tradegate/internal/exchange"
	"tradegate/internal/models"
	"tradegate/pkg/retry"
)

// Причины отказа валидации (для ValidateWithReason)
const (
	ReasonBadFormat          = "bad_format"
	ReasonUnknownSymbol      = "unknown_symbol"
	ReasonInactive           = "inactive"
	ReasonListingUnavailable = "listing_unavailable"
)

// DefaultListingTTL - срок жизни кэшированного листинга
const DefaultListingTTL = 10 * time.Minute

// Лексические грамматики бирж. Биржи несовместимы: binance запрещает
// разделитель, coinbase требует дефис, kraken принимает altname без
// разделителей длиной от 6 символов.
var (
	binanceRe  = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)
	coinbaseRe = regexp.MustCompile(`^[A-Z0-9]+-[A-Z0-9]+$`)
	krakenSep  = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// expectedExample возвращает образец корректного символа для подсказки
func expectedExample(exchangeName string) string {
	switch exchangeName {
	case "binance":
		return "BTCUSDT"
	case "coinbase":
		return "BTC-USD"
	case "kraken":
		return "XBTUSD"
	}
	return "BTCUSDT"
}

// Normalize приводит символ к каноническому виду биржи.
//
// Чистая функция без сетевых вызовов. Возвращает InvalidFormat если
// вход не соответствует грамматике биржи.
func Normalize(exchangeName, symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))

	switch strings.ToLower(exchangeName) {
	case "binance":
		// Binance не допускает разделитель: BTC-USD здесь ошибка
		// формата, а не повод молча склеить
		if !binanceRe.MatchString(s) {
			return "", models.NewReject(models.KindInvalidFormat,
				"binance expects symbols like %s (uppercase, no dash), got %q", expectedExample("binance"), symbol)
		}
		return s, nil

	case "coinbase":
		// Пара без дефиса достраивается по трёхбуквенной базе
		if !strings.Contains(s, "-") && len(s) > 3 {
			s = s[:3] + "-" + s[3:]
		}
		if !coinbaseRe.MatchString(s) {
			return "", models.NewReject(models.KindInvalidFormat,
				"coinbase expects product ids like %s, got %q", expectedExample("coinbase"), symbol)
		}
		return s, nil

	case "kraken":
		s = krakenSep.ReplaceAllString(s, "")
		s = strings.ReplaceAll(s, "BTC", "XBT") // kraken именует биткоин XBT
		if len(s) < 6 {
			return "", models.NewReject(models.KindInvalidFormat,
				"kraken expects altnames like %s, got %q", expectedExample("kraken"), symbol)
		}
		return s, nil
	}

	return "", models.NewReject(models.KindInvalidFormat, "unknown exchange %q", exchangeName)
}

// listingSnapshot - кэшированный листинг одной биржи
type listingSnapshot struct {
	rules     map[string]*models.MarketRule // по каноническому символу
	fetchedAt time.Time
}

// Validator проверяет символы против TTL-кэшированных листингов бирж
//
// Listing refresh - единственная сетевая операция валидатора; всё
// остальное считается в памяти. Сетевой сбой не роняет вызывающего:
// используется последний хороший кэш, а при его отсутствии валидация
// закрывается (fail closed) с причиной listing_unavailable.
type Validator struct {
	registry *exchange.Registry
	ttl      time.Duration
	offline  bool // не ходить в сеть, жить на кэше
	retryCfg retry.Config

	cache map[string]*listingSnapshot
	mu    sync.RWMutex

	// Сериализация обновления листинга по бирже: при истечении TTL
	// в сеть идёт один запрос, конкуренты ждут его результат
	refreshLocks   map[string]*sync.Mutex
	refreshLocksMu sync.Mutex
}

// Config - настройки валидатора
type Config struct {
	TTL     time.Duration // 0 = DefaultListingTTL
	Offline bool
	Retry   *retry.Config // nil = retry.NetworkConfig()
}

// NewValidator создает валидатор поверх реестра адаптеров
func NewValidator(registry *exchange.Registry, cfg Config) *Validator {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	retryCfg := retry.NetworkConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	return &Validator{
		registry:     registry,
		ttl:          ttl,
		offline:      cfg.Offline,
		retryCfg:     retryCfg,
		cache:        make(map[string]*listingSnapshot),
		refreshLocks: make(map[string]*sync.Mutex),
	}
}

// Validate проверяет символ; false для любого отказа (формат, неизвестный
// символ, неактивный статус, недоступный листинг) - булев API остаётся
// простым, детали даёт ValidateWithReason
func (v *Validator) Validate(ctx context.Context, exchangeName, symbol string) bool {
	ok, _ := v.ValidateWithReason(ctx, exchangeName, symbol)
	return ok
}

// ValidateWithReason проверяет символ и объясняет отказ оператору
func (v *Validator) ValidateWithReason(ctx context.Context, exchangeName, symbol string) (bool, string) {
	canonical, err := Normalize(exchangeName, symbol)
	if err != nil {
		return false, fmt.Sprintf("%s: %v", ReasonBadFormat, err)
	}

	rule, reason := v.lookup(ctx, strings.ToLower(exchangeName), canonical)
	if reason != "" {
		return false, reason
	}
	if !rule.IsTradable() {
		return false, fmt.Sprintf("%s: %s is %s on %s", ReasonInactive, canonical, rule.Status, exchangeName)
	}
	return true, ""
}

// Rule возвращает правило рынка для канонического символа.
// Используется роутером для sizing после успешной валидации.
func (v *Validator) Rule(ctx context.Context, exchangeName, symbol string) (*models.MarketRule, error) {
	canonical, err := Normalize(exchangeName, symbol)
	if err != nil {
		return nil, err
	}

	rule, reason := v.lookup(ctx, strings.ToLower(exchangeName), canonical)
	if reason != "" {
		kind := models.KindUnknownSymbol
		if strings.HasPrefix(reason, ReasonListingUnavailable) {
			kind = models.KindListingUnavailable
		}
		return nil, models.NewReject(kind, "%s", reason)
	}
	if !rule.IsTradable() {
		return nil, models.NewReject(models.KindInactiveSymbol,
			"%s is %s on %s", canonical, rule.Status, exchangeName)
	}
	return rule, nil
}

// lookup находит правило в кэше, при необходимости обновляя листинг.
// Пустая строка причины = найдено.
func (v *Validator) lookup(ctx context.Context, exchangeName, canonical string) (*models.MarketRule, string) {
	snap := v.snapshot(exchangeName)

	if v.needsRefresh(snap) {
		if err := v.refreshGuarded(ctx, exchangeName); err != nil {
			// Сетевой сбой: едем на последнем хорошем кэше
			if snap == nil {
				return nil, fmt.Sprintf("%s: no market listing for %s: %v", ReasonListingUnavailable, exchangeName, err)
			}
		} else {
			snap = v.snapshot(exchangeName)
		}
	}

	if snap == nil {
		return nil, fmt.Sprintf("%s: no market listing for %s", ReasonListingUnavailable, exchangeName)
	}

	rule, ok := snap.rules[canonical]
	if !ok {
		return nil, fmt.Sprintf("%s: %s is not listed on %s (example: %s)",
			ReasonUnknownSymbol, canonical, exchangeName, expectedExample(exchangeName))
	}
	return rule, ""
}

func (v *Validator) snapshot(exchangeName string) *listingSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cache[exchangeName]
}

// needsRefresh: в offline-режиме кэш живёт вечно, иначе по TTL
func (v *Validator) needsRefresh(snap *listingSnapshot) bool {
	if v.offline {
		return false
	}
	return snap == nil || time.Since(snap.fetchedAt) >= v.ttl
}

// refreshLock возвращает мьютекс обновления данной биржи
func (v *Validator) refreshLock(exchangeName string) *sync.Mutex {
	key := strings.ToLower(exchangeName)
	v.refreshLocksMu.Lock()
	defer v.refreshLocksMu.Unlock()
	lock, ok := v.refreshLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		v.refreshLocks[key] = lock
	}
	return lock
}

// refreshGuarded обновляет протухший листинг, пропуская в сеть не
// больше одного запроса на биржу: проигравшие гонку дожидаются
// победителя и переиспользуют его снапшот
func (v *Validator) refreshGuarded(ctx context.Context, exchangeName string) error {
	lock := v.refreshLock(exchangeName)
	lock.Lock()
	defer lock.Unlock()

	// Пока ждали мьютекс, листинг мог обновить победитель
	if !v.needsRefresh(v.snapshot(exchangeName)) {
		return nil
	}
	return v.fetchListing(ctx, exchangeName)
}

// Refresh принудительно обновляет листинг биржи через её адаптер
// (API-путь: оператор явно просит свежий листинг, TTL игнорируется)
func (v *Validator) Refresh(ctx context.Context, exchangeName string) error {
	lock := v.refreshLock(exchangeName)
	lock.Lock()
	defer lock.Unlock()
	return v.fetchListing(ctx, exchangeName)
}

// fetchListing выполняет сетевое обновление; вызывается только под
// мьютексом биржи
func (v *Validator) fetchListing(ctx context.Context, exchangeName string) error {
	if v.offline {
		return fmt.Errorf("offline mode: listing refresh disabled")
	}

	adapter, err := v.registry.Get(exchangeName)
	if err != nil {
		return err
	}

	markets, err := retry.DoWithResult(ctx, func() ([]models.MarketRule, error) {
		return adapter.ListMarkets(ctx)
	}, v.retryCfg)
	if err != nil {
		return fmt.Errorf("failed to refresh %s listing: %w", exchangeName, err)
	}

	rules := make(map[string]*models.MarketRule, len(markets))
	for i := range markets {
		rule := markets[i]
		rules[strings.ToUpper(rule.Symbol)] = &rule
	}

	v.mu.Lock()
	// Снапшот заменяется целиком, частичных обновлений не бывает
	v.cache[strings.ToLower(exchangeName)] = &listingSnapshot{
		rules:     rules,
		fetchedAt: time.Now(),
	}
	v.mu.Unlock()

	return nil
}

// Warmup прогревает листинги всех зарегистрированных бирж параллельно,
// чтобы первый запрос не ждал сетевой round trip
func (v *Validator) Warmup(ctx context.Context) error {
	names := v.registry.Names()

	var wg sync.WaitGroup
	errChan := make(chan error, len(names))

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := v.Refresh(ctx, name); err != nil {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}(name)
	}

	wg.Wait()
	close(errChan)

	// Частичный прогрев не критичен: недостающие листинги подтянутся лениво
	var errs []string
	for err := range errChan {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("warmup incomplete: %s", strings.Join(errs, "; "))
	}
	return nil
}
