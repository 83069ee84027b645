package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/polyecho/echobot/internal/crypto"
	"github.com/polyecho/echobot/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit Order
// Book) API. It submits HMAC-authenticated market orders.
type ClobClient struct {
	baseURL    string
	address    string // funder wallet address for POLY_ADDRESS
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// address is the funder wallet address carried in POLY_ADDRESS headers.
func NewClobClient(baseURL, address string, hmac *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		address: address,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		hmacAuth: hmac,
	}
}

// ExecuteMarketOrder submits a fill-or-kill market order. BUY orders are
// denominated in USD; SELL orders in token units. The returned OrderResult
// carries Success=false plus Err for venue rejections, with a nil error, so
// callers can journal the rejection without treating it as a transport
// failure.
func (c *ClobClient) ExecuteMarketOrder(ctx context.Context, order domain.MarketOrder) (domain.OrderResult, error) {
	var amount string
	switch order.Side {
	case domain.OrderSideBuy:
		amount = strconv.FormatFloat(order.AmountUSD, 'f', 2, 64)
	case domain.OrderSideSell:
		amount = strconv.FormatFloat(order.Tokens, 'f', 6, 64)
	default:
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: unknown side %q", order.Side)
	}

	body := map[string]any{
		"order": map[string]any{
			"tokenID": order.TokenID,
			"amount":  amount,
			"side":    string(order.Side),
		},
		"owner":     c.address,
		"orderType": "FOK",
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	return apiResult.ToDomainOrderResult(order.Side), nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		headers := c.hmacAuth.L2Headers(c.address, method, path, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Order rejections come back as JSON bodies with non-2xx codes; pass
	// those through so the caller can decode errorMsg.
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// Compile-time interface check.
var _ domain.TradeExecutor = (*ClobClient)(nil)
