package handlers

import (
	"context"
	"sync"

	"tradegate/internal/exchange"
	"tradegate/internal/models"
	"tradegate/internal/risk"
	"tradegate/internal/router"
)

// ============ Mock Order Router ============

// MockOrderRouter мок для OrderRouterInterface
type MockOrderRouter struct {
	previewOutcome *router.PreviewOutcome
	previewErr     error
	executeOutcome *router.ExecuteOutcome
	executeErr     error

	lastIntent   *models.TradeIntent
	executeCalls int
	mu           sync.Mutex
}

// NewMockOrderRouter создает новый мок конвейера
func NewMockOrderRouter() *MockOrderRouter {
	return &MockOrderRouter{}
}

func (m *MockOrderRouter) Preview(ctx context.Context, intent *models.TradeIntent) (*router.PreviewOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastIntent = intent
	if m.previewErr != nil {
		return nil, m.previewErr
	}
	return m.previewOutcome, nil
}

func (m *MockOrderRouter) Execute(ctx context.Context, intent *models.TradeIntent) (*router.ExecuteOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastIntent = intent
	m.executeCalls++
	if m.executeErr != nil {
		return nil, m.executeErr
	}
	return m.executeOutcome, nil
}

// ============ Mock Order Reader ============

// MockOrderReader мок для OrderReaderInterface
type MockOrderReader struct {
	orders    []*models.OrderRecord
	getErr    error
	lastLimit int
	mu        sync.RWMutex
}

// NewMockOrderReader создает новый мок журнала ордеров
func NewMockOrderReader() *MockOrderReader {
	return &MockOrderReader{}
}

func (m *MockOrderReader) AddOrder(order *models.OrderRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
}

func (m *MockOrderReader) GetRecent(limit int) ([]*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	m.lastLimit = limit

	result := m.orders
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockOrderReader) GetPending() ([]*models.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	var pending []*models.OrderRecord
	for _, o := range m.orders {
		if o.Status == models.OrderStatusPending {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

func (m *MockOrderReader) CountByStatus() (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	counts := make(map[string]int)
	for _, o := range m.orders {
		counts[o.Status]++
	}
	return counts, nil
}

// ============ Mock Risk Controller ============

// MockRiskController мок для RiskControllerInterface
type MockRiskController struct {
	status     risk.Status
	cancels    []exchange.CancelOutcome
	unlockErr  error
	panicCalls int
	fills      map[string]float64
	mu         sync.Mutex
}

// NewMockRiskController создает новый мок управления риском
func NewMockRiskController() *MockRiskController {
	return &MockRiskController{
		status: risk.Status{State: risk.StateOpen},
		fills:  make(map[string]float64),
	}
}

func (m *MockRiskController) RiskStatus() risk.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MockRiskController) Panic(ctx context.Context) []exchange.CancelOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.panicCalls++
	m.status.State = risk.StateLocked
	m.status.LockReason = risk.ReasonManualPanic
	return m.cancels
}

func (m *MockRiskController) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unlockErr != nil {
		return m.unlockErr
	}
	m.status.State = risk.StateOpen
	m.status.LockReason = ""
	return nil
}

func (m *MockRiskController) RecordFill(tradeID string, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills[tradeID] = realizedPnL
}

// ============ Mock Symbol Validator ============

// MockSymbolValidator мок для SymbolValidatorInterface
type MockSymbolValidator struct {
	rules      map[string]*models.MarketRule // exchange/symbol -> rule
	reason     string                        // причина отказа для неизвестных символов
	ruleErr    error
	refreshErr error
	refreshed  []string
	mu         sync.Mutex
}

// NewMockSymbolValidator создает новый мок валидатора символов
func NewMockSymbolValidator() *MockSymbolValidator {
	return &MockSymbolValidator{
		rules:  make(map[string]*models.MarketRule),
		reason: "unknown_symbol",
	}
}

func (m *MockSymbolValidator) AddRule(exchangeName, symbol string, rule *models.MarketRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[exchangeName+"/"+symbol] = rule
}

func (m *MockSymbolValidator) ValidateWithReason(ctx context.Context, exchangeName, symbol string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[exchangeName+"/"+symbol]; ok {
		return true, ""
	}
	return false, m.reason
}

func (m *MockSymbolValidator) Rule(ctx context.Context, exchangeName, symbol string) (*models.MarketRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ruleErr != nil {
		return nil, m.ruleErr
	}
	if rule, ok := m.rules[exchangeName+"/"+symbol]; ok {
		return rule, nil
	}
	return nil, models.NewReject(models.KindUnknownSymbol, "symbol %q is not listed on %s", symbol, exchangeName)
}

func (m *MockSymbolValidator) Refresh(ctx context.Context, exchangeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshErr != nil {
		return m.refreshErr
	}
	m.refreshed = append(m.refreshed, exchangeName)
	return nil
}
