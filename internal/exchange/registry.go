package exchange

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrAdapterNotFound возвращается при запросе незарегистрированной биржи
var ErrAdapterNotFound = errors.New("adapter not found")

// SupportedExchanges - список поддерживаемых бирж
var SupportedExchanges = []string{
	"binance",
	"coinbase",
	"kraken",
}

// New создает новый экземпляр адаптера биржи по имени
func New(name string) (Adapter, error) {
	switch strings.ToLower(name) {
	case "binance":
		return NewBinance(), nil
	case "coinbase":
		return NewCoinbase(), nil
	case "kraken":
		return NewKraken(), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли биржа
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}

// Registry - реестр адаптеров по имени биржи
//
// Это шов для тестирования: тесты регистрируют фейковые адаптеры под
// теми же именами, которые Router ищет в рантайме, и ядро работает
// без единого сетевого вызова.
type Registry struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewRegistry создает пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register регистрирует адаптер. Повторная регистрация под тем же
// именем замещает предыдущий адаптер (так тесты подменяют реальные).
func (r *Registry) Register(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(name)] = adapter
}

// Get возвращает адаптер по имени биржи
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}
	return adapter, nil
}

// Names возвращает отсортированный список зарегистрированных бирж
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All возвращает копию карты адаптеров (для panic sweep по всем биржам)
func (r *Registry) All() map[string]Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Adapter, len(r.adapters))
	for name, adapter := range r.adapters {
		out[name] = adapter
	}
	return out
}

// Close закрывает все зарегистрированные адаптеры, собирая ошибки
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []string
	for name, adapter := range r.adapters {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close adapters: %s", strings.Join(errs, "; "))
	}
	return nil
}
