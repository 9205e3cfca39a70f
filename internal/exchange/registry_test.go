package exchange

import (
	"context"
	"errors"
	"testing"

	"tradegate/internal/models"
)

// fakeAdapter - минимальный адаптер для тестов реестра
type fakeAdapter struct {
	name   string
	closed bool
}

func (f *fakeAdapter) Connect(_, _, _ string) error { return nil }
func (f *fakeAdapter) Name() string                 { return f.name }
func (f *fakeAdapter) ListMarkets(context.Context) ([]models.MarketRule, error) {
	return nil, nil
}
func (f *fakeAdapter) Preview(context.Context, OrderRequest) (*PreviewResult, error) {
	return nil, nil
}
func (f *fakeAdapter) Execute(context.Context, OrderRequest) (*ExecutionResult, error) {
	return nil, nil
}
func (f *fakeAdapter) CancelAll(context.Context) ([]CancelOutcome, error) {
	return nil, nil
}
func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	adapter := &fakeAdapter{name: "binance"}
	r.Register("binance", adapter)

	got, err := r.Get("binance")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != Adapter(adapter) {
		t.Error("Get returned a different adapter")
	}

	// Имена нечувствительны к регистру
	if _, err := r.Get("BINANCE"); err != nil {
		t.Errorf("lookup must be case-insensitive: %v", err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("bitfinex")
	if !errors.Is(err, ErrAdapterNotFound) {
		t.Errorf("expected ErrAdapterNotFound, got %v", err)
	}
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	real := &fakeAdapter{name: "kraken"}
	fake := &fakeAdapter{name: "kraken-fake"}

	r.Register("kraken", real)
	r.Register("kraken", fake) // тестовая подмена под тем же именем

	got, _ := r.Get("kraken")
	if got.Name() != "kraken-fake" {
		t.Error("re-registration must replace the adapter")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("kraken", &fakeAdapter{name: "kraken"})
	r.Register("binance", &fakeAdapter{name: "binance"})
	r.Register("coinbase", &fakeAdapter{name: "coinbase"})

	names := r.Names()
	want := []string{"binance", "coinbase", "kraken"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a := &fakeAdapter{name: "binance"}
	b := &fakeAdapter{name: "kraken"}
	r.Register("binance", a)
	r.Register("kraken", b)

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("all adapters must be closed")
	}
}

func TestFactoryNew(t *testing.T) {
	for _, name := range SupportedExchanges {
		adapter, err := New(name)
		if err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
			continue
		}
		if adapter.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, adapter.Name())
		}
	}

	if _, err := New("bitmex"); err == nil {
		t.Error("unsupported exchange must fail")
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("Binance") {
		t.Error("IsSupported must be case-insensitive")
	}
	if IsSupported("bitmex") {
		t.Error("bitmex is not supported")
	}
}
