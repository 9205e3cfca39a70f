package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradegate/internal/models"
)

const krakenBaseURL = "https://api.kraken.com"

// Kraken реализует интерфейс Adapter для Kraken
type Kraken struct {
	apiKey    string
	secretKey []byte // base64-декодированный секрет

	httpClient *http.Client
}

// NewKraken создает новый адаптер Kraken
func NewKraken() *Kraken {
	return &Kraken{
		httpClient: GetHTTPClient(),
	}
}

func (k *Kraken) Connect(apiKey, secret, _ string) error {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return &ExchangeError{Exchange: "kraken", Message: "secret must be base64", Original: err}
	}
	k.apiKey = apiKey
	k.secretKey = decoded
	return nil
}

func (k *Kraken) Name() string { return "kraken" }

// sign создает API-Sign: HMAC-SHA512(path + SHA256(nonce + postdata))
func (k *Kraken) sign(path string, nonce string, postData string) string {
	sha := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, k.secretKey)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// doRequest выполняет запрос к Kraken API; private=true добавляет подпись
func (k *Kraken) doRequest(ctx context.Context, path string, params url.Values, private bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	var req *http.Request
	var err error

	if private {
		params.Set("nonce", strconv.FormatInt(time.Now().UnixNano(), 10))
		postData := params.Encode()

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, krakenBaseURL+path, strings.NewReader(postData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("API-Key", k.apiKey)
		req.Header.Set("API-Sign", k.sign(path, params.Get("nonce"), postData))
	} else {
		reqURL := krakenBaseURL + path
		if encoded := params.Encode(); encoded != "" {
			reqURL += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: "kraken", Message: "request failed", Original: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Kraken возвращает ошибки в теле с HTTP 200
	var envelope struct {
		Error []string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &ExchangeError{Exchange: "kraken", Message: "bad response payload", Original: err}
	}
	if len(envelope.Error) > 0 {
		return nil, &ExchangeError{
			Exchange: "kraken",
			Code:     envelope.Error[0],
			Message:  strings.Join(envelope.Error, "; "),
		}
	}

	return data, nil
}

// krakenPair - часть ответа /0/public/AssetPairs
type krakenPair struct {
	Altname     string `json:"altname"` // "XBTUSD"
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	Status      string `json:"status"` // "online"
	LotDecimals int    `json:"lot_decimals"`
	PairDecimal int    `json:"pair_decimals"`
	OrderMin    string `json:"ordermin"`
	CostMin     string `json:"costmin"`
}

func (k *Kraken) ListMarkets(ctx context.Context) ([]models.MarketRule, error) {
	data, err := k.doRequest(ctx, "/0/public/AssetPairs", nil, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result map[string]krakenPair `json:"result"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ExchangeError{Exchange: "kraken", Message: "bad AssetPairs payload", Original: err}
	}

	now := time.Now()
	rules := make([]models.MarketRule, 0, len(payload.Result))
	for _, p := range payload.Result {
		minQty, _ := strconv.ParseFloat(p.OrderMin, 64)
		minNotional, _ := strconv.ParseFloat(p.CostMin, 64)

		rules = append(rules, models.MarketRule{
			Exchange:       "kraken",
			Symbol:         p.Altname,
			BaseAsset:      p.Base,
			QuoteAsset:     p.Quote,
			Status:         krakenStatus(p.Status),
			StepSize:       math.Pow(10, -float64(p.LotDecimals)),
			MinQty:         minQty,
			MinNotional:    minNotional,
			PricePrecision: p.PairDecimal,
			FetchedAt:      now,
		})
	}
	return rules, nil
}

func krakenStatus(s string) string {
	switch s {
	case "online":
		return models.MarketStatusTradable
	case "cancel_only", "post_only", "limit_only", "reduce_only":
		return models.MarketStatusHalted
	default:
		return models.MarketStatusDelisted
	}
}

func (k *Kraken) Preview(ctx context.Context, req OrderRequest) (*PreviewResult, error) {
	params := url.Values{}
	params.Set("pair", req.Symbol)

	data, err := k.doRequest(ctx, "/0/public/Ticker", params, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result map[string]struct {
			C []string `json:"c"` // [цена последней сделки, объём]
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ExchangeError{Exchange: "kraken", Message: "bad Ticker payload", Original: err}
	}

	var price float64
	for _, t := range payload.Result {
		if len(t.C) > 0 {
			price, _ = strconv.ParseFloat(t.C[0], 64)
		}
		break
	}

	return buildPreview(req, price), nil
}

func (k *Kraken) Execute(ctx context.Context, req OrderRequest) (*ExecutionResult, error) {
	params := url.Values{}
	params.Set("pair", req.Symbol)
	params.Set("type", req.Side)
	params.Set("ordertype", "market")
	params.Set("volume", strconv.FormatFloat(req.Qty, 'f', -1, 64))
	if req.ClientOrderID != "" {
		params.Set("cl_ord_id", clampClientOrderID(req.ClientOrderID))
	}

	data, err := k.doRequest(ctx, "/0/private/AddOrder", params, true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result struct {
			Txid []string `json:"txid"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ExchangeError{Exchange: "kraken", Message: "bad AddOrder payload", Original: err}
	}
	if len(payload.Result.Txid) == 0 {
		return nil, &ExchangeError{Exchange: "kraken", Message: "AddOrder returned no txid"}
	}

	// AddOrder подтверждает приём, не исполнение: fill подтверждается
	// через QueryOrders внешней сверкой
	return &ExecutionResult{
		OrderID:     payload.Result.Txid[0],
		Symbol:      req.Symbol,
		Side:        req.Side,
		FilledQty:   req.Qty,
		Status:      models.OrderStatusPending,
		SubmittedAt: time.Now(),
	}, nil
}

func (k *Kraken) CancelAll(ctx context.Context) ([]CancelOutcome, error) {
	data, err := k.doRequest(ctx, "/0/private/CancelAll", nil, true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ExchangeError{Exchange: "kraken", Message: "bad CancelAll payload", Original: err}
	}

	// Kraken отменяет всё одним вызовом и возвращает только счётчик
	outcomes := make([]CancelOutcome, 0, payload.Result.Count)
	for i := 0; i < payload.Result.Count; i++ {
		outcomes = append(outcomes, CancelOutcome{
			Exchange: "kraken",
			OrderID:  fmt.Sprintf("order-%d", i+1),
			OK:       true,
		})
	}
	return outcomes, nil
}

func (k *Kraken) Close() error { return nil }
