package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/polyecho/echobot/internal/domain"
)

// DataClient is the REST client for the Polymarket Data API, which exposes
// wallet portfolio values and per-token holdings.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a new Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WalletBalance returns the total portfolio USD value of a wallet address.
func (d *DataClient) WalletBalance(ctx context.Context, address string) (float64, error) {
	params := url.Values{}
	params.Set("user", address)

	body, err := d.doGet(ctx, "/value?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/data: wallet balance %s: %w", address, err)
	}

	// The endpoint returns either a single object or a one-element array.
	var values []APIUserValue
	if err := json.Unmarshal(body, &values); err != nil {
		var single APIUserValue
		if err := json.Unmarshal(body, &single); err != nil {
			return 0, fmt.Errorf("polymarket/data: decode value response: %w", err)
		}
		return single.Value, nil
	}
	if len(values) == 0 {
		return 0, nil
	}
	return values[0].Value, nil
}

// UserBalance returns the portfolio USD value for an internal user ID. User
// IDs here are proxy wallet addresses, so this is an alias of WalletBalance.
func (d *DataClient) UserBalance(ctx context.Context, userID string) (float64, error) {
	return d.WalletBalance(ctx, userID)
}

// WalletPosition returns the token count a wallet currently holds for one
// clob token ID. A wallet with no holding returns zero, not an error.
func (d *DataClient) WalletPosition(ctx context.Context, address, tokenID string) (float64, error) {
	params := url.Values{}
	params.Set("user", address)
	params.Set("asset", tokenID)

	body, err := d.doGet(ctx, "/positions?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/data: wallet position %s/%s: %w", address, tokenID, err)
	}

	var positions []APIUserPosition
	if err := json.Unmarshal(body, &positions); err != nil {
		return 0, fmt.Errorf("polymarket/data: decode positions response: %w", err)
	}

	for _, p := range positions {
		if p.Asset == tokenID {
			return p.Size, nil
		}
	}
	return 0, nil
}

// doGet performs a GET request against the Data API and returns the raw
// response body.
func (d *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Compile-time interface check.
var _ domain.BalanceProvider = (*DataClient)(nil)
