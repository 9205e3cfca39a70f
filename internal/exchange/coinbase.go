package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradegate/internal/models"
)

const coinbaseBaseURL = "https://api.coinbase.com"

// Coinbase реализует интерфейс Adapter для Coinbase Advanced Trade
type Coinbase struct {
	apiKey    string
	secretKey string

	httpClient *http.Client
}

// NewCoinbase создает новый адаптер Coinbase
func NewCoinbase() *Coinbase {
	return &Coinbase{
		httpClient: GetHTTPClient(),
	}
}

func (c *Coinbase) Connect(apiKey, secret, _ string) error {
	c.apiKey = apiKey
	c.secretKey = secret
	return nil
}

func (c *Coinbase) Name() string { return "coinbase" }

// sign создает CB-ACCESS-SIGN: HMAC-SHA256 от timestamp+method+path+body
func (c *Coinbase) sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к Coinbase Advanced Trade API
func (c *Coinbase) doRequest(ctx context.Context, method, path, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, coinbaseBaseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CB-ACCESS-KEY", c.apiKey)
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("CB-ACCESS-SIGN", c.sign(timestamp, method, path, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: "coinbase", Message: "request failed", Original: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return nil, &ExchangeError{
			Exchange: "coinbase",
			Code:     apiErr.Error,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, apiErr.Message),
		}
	}

	return data, nil
}

// coinbaseProduct - часть ответа /api/v3/brokerage/products
type coinbaseProduct struct {
	ProductID       string `json:"product_id"` // "BTC-USD"
	BaseCurrencyID  string `json:"base_currency_id"`
	QuoteCurrencyID string `json:"quote_currency_id"`
	Status          string `json:"status"` // "online", "offline", "delisted"
	TradingDisabled bool   `json:"trading_disabled"`
	BaseIncrement   string `json:"base_increment"`
	BaseMinSize     string `json:"base_min_size"`
	QuoteMinSize    string `json:"quote_min_size"`
	QuoteIncrement  string `json:"quote_increment"`
}

func (c *Coinbase) ListMarkets(ctx context.Context) ([]models.MarketRule, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v3/brokerage/products", "")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Products []coinbaseProduct `json:"products"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ExchangeError{Exchange: "coinbase", Message: "bad products payload", Original: err}
	}

	now := time.Now()
	rules := make([]models.MarketRule, 0, len(payload.Products))
	for _, p := range payload.Products {
		step, _ := strconv.ParseFloat(p.BaseIncrement, 64)
		minQty, _ := strconv.ParseFloat(p.BaseMinSize, 64)
		minNotional, _ := strconv.ParseFloat(p.QuoteMinSize, 64)

		rules = append(rules, models.MarketRule{
			Exchange:       "coinbase",
			Symbol:         p.ProductID,
			BaseAsset:      p.BaseCurrencyID,
			QuoteAsset:     p.QuoteCurrencyID,
			Status:         coinbaseStatus(p),
			StepSize:       step,
			MinQty:         minQty,
			MinNotional:    minNotional,
			PricePrecision: precisionFromIncrement(p.QuoteIncrement),
			FetchedAt:      now,
		})
	}
	return rules, nil
}

func coinbaseStatus(p coinbaseProduct) string {
	switch {
	case p.Status == "delisted":
		return models.MarketStatusDelisted
	case p.TradingDisabled || p.Status != "online":
		return models.MarketStatusHalted
	default:
		return models.MarketStatusTradable
	}
}

// precisionFromIncrement выводит число знаков из шага цены ("0.01" -> 2)
func precisionFromIncrement(inc string) int {
	if i := strings.IndexByte(inc, '.'); i >= 0 {
		return len(strings.TrimRight(inc[i+1:], "0"))
	}
	return 0
}

func (c *Coinbase) Preview(ctx context.Context, req OrderRequest) (*PreviewResult, error) {
	path := "/api/v3/brokerage/products/" + req.Symbol
	data, err := c.doRequest(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}

	var product struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, &ExchangeError{Exchange: "coinbase", Message: "bad product payload", Original: err}
	}
	price, _ := strconv.ParseFloat(product.Price, 64)

	return buildPreview(req, price), nil
}

func (c *Coinbase) Execute(ctx context.Context, req OrderRequest) (*ExecutionResult, error) {
	order := map[string]interface{}{
		"product_id": req.Symbol,
		"side":       strings.ToUpper(req.Side),
		"order_configuration": map[string]interface{}{
			"market_market_ioc": map[string]string{
				"base_size": strconv.FormatFloat(req.Qty, 'f', -1, 64),
			},
		},
	}
	if req.ClientOrderID != "" {
		order["client_order_id"] = clampClientOrderID(req.ClientOrderID)
	}
	body, _ := json.Marshal(order)

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v3/brokerage/orders", string(body))
	if err != nil {
		return nil, err
	}

	var placed struct {
		Success      bool `json:"success"`
		OrderID      string `json:"order_id"`
		FailureReason string `json:"failure_reason"`
		SuccessResponse struct {
			OrderID string `json:"order_id"`
		} `json:"success_response"`
	}
	if err := json.Unmarshal(data, &placed); err != nil {
		return nil, &ExchangeError{Exchange: "coinbase", Message: "bad order payload", Original: err}
	}
	if !placed.Success {
		return nil, &ExchangeError{Exchange: "coinbase", Code: placed.FailureReason, Message: "order rejected"}
	}

	orderID := placed.OrderID
	if orderID == "" {
		orderID = placed.SuccessResponse.OrderID
	}

	// Market IOC исполняется сразу; средняя цена приходит асинхронно,
	// поэтому статус pending до сверки с fills
	return &ExecutionResult{
		OrderID:     orderID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		FilledQty:   req.Qty,
		Status:      models.OrderStatusPending,
		SubmittedAt: time.Now(),
	}, nil
}

func (c *Coinbase) CancelAll(ctx context.Context) ([]CancelOutcome, error) {
	data, err := c.doRequest(ctx, http.MethodGet,
		"/api/v3/brokerage/orders/historical/batch?order_status=OPEN", "")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Orders []struct {
			OrderID string `json:"order_id"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ExchangeError{Exchange: "coinbase", Message: "bad orders payload", Original: err}
	}
	if len(payload.Orders) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(payload.Orders))
	for _, o := range payload.Orders {
		ids = append(ids, o.OrderID)
	}
	body, _ := json.Marshal(map[string][]string{"order_ids": ids})

	data, err = c.doRequest(ctx, http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", string(body))
	if err != nil {
		return nil, err
	}

	var result struct {
		Results []struct {
			Success       bool   `json:"success"`
			OrderID       string `json:"order_id"`
			FailureReason string `json:"failure_reason"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &ExchangeError{Exchange: "coinbase", Message: "bad batch_cancel payload", Original: err}
	}

	outcomes := make([]CancelOutcome, 0, len(result.Results))
	for _, r := range result.Results {
		outcome := CancelOutcome{Exchange: "coinbase", OrderID: r.OrderID, OK: r.Success}
		if !r.Success {
			outcome.Error = r.FailureReason
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (c *Coinbase) Close() error { return nil }
