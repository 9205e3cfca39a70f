package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradegate/internal/models"
)

const binanceBaseURL = "https://api.binance.com"

// Binance реализует интерфейс Adapter для Binance Spot
type Binance struct {
	apiKey    string
	secretKey string

	httpClient *http.Client
}

// NewBinance создает новый адаптер Binance.
// Использует общий HTTP клиент с connection pooling.
func NewBinance() *Binance {
	return &Binance{
		httpClient: GetHTTPClient(),
	}
}

func (b *Binance) Connect(apiKey, secret, _ string) error {
	b.apiKey = apiKey
	b.secretKey = secret
	return nil
}

func (b *Binance) Name() string { return "binance" }

// sign создает HMAC-SHA256 подпись query string
func (b *Binance) sign(query string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к Binance API
func (b *Binance) doRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", b.sign(params.Encode()))
	}

	reqURL := binanceBaseURL + endpoint
	var body io.Reader
	if method == http.MethodGet {
		if encoded := params.Encode(); encoded != "" {
			reqURL += "?" + encoded
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: "binance", Message: "request failed", Original: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return nil, &ExchangeError{
			Exchange: "binance",
			Code:     strconv.Itoa(apiErr.Code),
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, apiErr.Msg),
		}
	}

	return data, nil
}

// binanceSymbolInfo - часть ответа /api/v3/exchangeInfo
type binanceSymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	Filters    []struct {
		FilterType  string `json:"filterType"`
		StepSize    string `json:"stepSize"`
		MinQty      string `json:"minQty"`
		MinNotional string `json:"minNotional"`
	} `json:"filters"`
	QuotePrecision int `json:"quotePrecision"`
}

func (b *Binance) ListMarkets(ctx context.Context) ([]models.MarketRule, error) {
	data, err := b.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}

	var info struct {
		Symbols []binanceSymbolInfo `json:"symbols"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Message: "bad exchangeInfo payload", Original: err}
	}

	now := time.Now()
	rules := make([]models.MarketRule, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		rule := models.MarketRule{
			Exchange:       "binance",
			Symbol:         s.Symbol,
			BaseAsset:      s.BaseAsset,
			QuoteAsset:     s.QuoteAsset,
			Status:         binanceStatus(s.Status),
			PricePrecision: s.QuotePrecision,
			FetchedAt:      now,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				rule.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
				rule.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
			case "NOTIONAL", "MIN_NOTIONAL":
				rule.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// binanceStatus переводит статус Binance в статусы ядра
func binanceStatus(s string) string {
	switch s {
	case "TRADING":
		return models.MarketStatusTradable
	case "HALT", "BREAK":
		return models.MarketStatusHalted
	default:
		return models.MarketStatusDelisted
	}
}

func (b *Binance) Preview(ctx context.Context, req OrderRequest) (*PreviewResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)

	data, err := b.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return nil, err
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(data, &ticker); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Message: "bad ticker payload", Original: err}
	}
	price, _ := strconv.ParseFloat(ticker.Price, 64)

	return buildPreview(req, price), nil
}

func (b *Binance) Execute(ctx context.Context, req OrderRequest) (*ExecutionResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(req.Qty, 'f', -1, 64))
	if req.ClientOrderID != "" {
		// Биржа дедуплицирует по newClientOrderId - вторая линия защиты
		// поверх нашей идемпотентности
		params.Set("newClientOrderId", clampClientOrderID(req.ClientOrderID))
	}

	data, err := b.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var placed struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		Fills       []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(data, &placed); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Message: "bad order payload", Original: err}
	}

	filled, _ := strconv.ParseFloat(placed.ExecutedQty, 64)
	var avg, qtySum float64
	for _, f := range placed.Fills {
		p, _ := strconv.ParseFloat(f.Price, 64)
		q, _ := strconv.ParseFloat(f.Qty, 64)
		avg += p * q
		qtySum += q
	}
	if qtySum > 0 {
		avg /= qtySum
	}

	status := models.OrderStatusPending
	if placed.Status == "FILLED" {
		status = models.OrderStatusFilled
	}

	return &ExecutionResult{
		OrderID:      strconv.FormatInt(placed.OrderID, 10),
		Symbol:       req.Symbol,
		Side:         req.Side,
		FilledQty:    filled,
		AvgFillPrice: avg,
		Status:       status,
		SubmittedAt:  time.Now(),
	}, nil
}

func (b *Binance) CancelAll(ctx context.Context) ([]CancelOutcome, error) {
	// Binance отменяет открытые ордера per-symbol: сначала собираем
	// символы с открытыми ордерами, потом отменяем по каждому
	data, err := b.doRequest(ctx, http.MethodGet, "/api/v3/openOrders", url.Values{}, true)
	if err != nil {
		return nil, err
	}

	var open []struct {
		Symbol  string `json:"symbol"`
		OrderID int64  `json:"orderId"`
	}
	if err := json.Unmarshal(data, &open); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Message: "bad openOrders payload", Original: err}
	}

	outcomes := make([]CancelOutcome, 0, len(open))
	for _, o := range open {
		params := url.Values{}
		params.Set("symbol", o.Symbol)
		params.Set("orderId", strconv.FormatInt(o.OrderID, 10))

		outcome := CancelOutcome{
			Exchange: "binance",
			OrderID:  strconv.FormatInt(o.OrderID, 10),
			OK:       true,
		}
		if _, err := b.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, true); err != nil {
			outcome.OK = false
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (b *Binance) Close() error { return nil }

// buildPreview собирает PreviewResult из запроса и справочной цены.
// Общая часть всех адаптеров: сама оценка риска делается локально.
func buildPreview(req OrderRequest, refPrice float64) *PreviewResult {
	pr := &PreviewResult{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Qty:        req.Qty,
		RefPrice:   refPrice,
		Notional:   req.Qty * refPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	}
	if req.StopLoss > 0 && refPrice > 0 {
		stopDist := refPrice - req.StopLoss
		if stopDist < 0 {
			stopDist = -stopDist
		}
		pr.EstMaxLoss = stopDist * req.Qty
		if req.TakeProfit > 0 && stopDist > 0 {
			tpDist := req.TakeProfit - refPrice
			if tpDist < 0 {
				tpDist = -tpDist
			}
			pr.RiskReward = tpDist / stopDist
		}
	}
	return pr
}

// clampClientOrderID обрезает ключ под лимит бирж на clientOrderId (36 символов)
func clampClientOrderID(key string) string {
	if len(key) > 36 {
		return key[:36]
	}
	return key
}
