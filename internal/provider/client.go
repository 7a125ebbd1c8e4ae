package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/metrics"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// ErrCredentialExhausted is returned when the provider rejects a request
// because the API key's quota is consumed. Callers rotate the pool and retry.
var ErrCredentialExhausted = errors.New("provider credential exhausted")

// ClientConfig holds provider client configuration
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// Client talks to the blockchain-data provider's REST API. The API key is
// passed per call so the credential pool can rotate between requests.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new provider client
func NewClient(config *ClientConfig) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  false,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: utils.GetLogger(),
	}
}

// SetMetrics attaches request metrics
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// FetchSwaps retrieves swap transactions for a wallet on a chain, newest first
func (c *Client) FetchSwaps(ctx context.Context, apiKey, wallet, chain, order string) ([]RawSwap, error) {
	if order == "" {
		order = "DESC"
	}

	params := url.Values{}
	params.Set("chain", chain)
	params.Set("order", order)

	var response swapsResponse
	path := fmt.Sprintf("/wallets/%s/swaps", wallet)
	if err := c.get(ctx, apiKey, "swaps", path, params, &response); err != nil {
		return nil, err
	}

	return response.Result, nil
}

// FetchWalletTokens retrieves current token holdings for a wallet on a chain
func (c *Client) FetchWalletTokens(ctx context.Context, apiKey, wallet, chain string, excludeSpam bool, limit int) ([]TokenBalance, error) {
	params := url.Values{}
	params.Set("chain", chain)
	if excludeSpam {
		params.Set("exclude_spam", "true")
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var response tokensResponse
	path := fmt.Sprintf("/wallets/%s/tokens", wallet)
	if err := c.get(ctx, apiKey, "tokens", path, params, &response); err != nil {
		return nil, err
	}

	return response.Result, nil
}

// FetchTokenMetadata retrieves price and metadata for a token on a chain
func (c *Client) FetchTokenMetadata(ctx context.Context, apiKey, token, chain string) (*TokenMetadata, error) {
	params := url.Values{}
	params.Set("chain", chain)
	params.Set("include", "percent_change")

	var response TokenMetadata
	path := fmt.Sprintf("/erc20/%s/price", token)
	if err := c.get(ctx, apiKey, "token_metadata", path, params, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchTokenPnl retrieves per-token profitability rows for a wallet on a chain
func (c *Client) FetchTokenPnl(ctx context.Context, apiKey, wallet, chain string) ([]TokenPnl, error) {
	params := url.Values{}
	params.Set("chain", chain)

	var response pnlResponse
	path := fmt.Sprintf("/wallets/%s/profitability", wallet)
	if err := c.get(ctx, apiKey, "pnl", path, params, &response); err != nil {
		return nil, err
	}

	return response.Result, nil
}

// FetchPnlSummary retrieves the wallet-level profitability summary
func (c *Client) FetchPnlSummary(ctx context.Context, apiKey, wallet, chain string) (*PnlSummary, error) {
	params := url.Values{}
	params.Set("chain", chain)

	var response PnlSummary
	path := fmt.Sprintf("/wallets/%s/profitability/summary", wallet)
	if err := c.get(ctx, apiKey, "pnl_summary", path, params, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// get performs an authenticated GET and decodes the JSON response. Provider
// failures carrying a quota-exhaustion message map to ErrCredentialExhausted.
func (c *Client) get(ctx context.Context, apiKey, endpoint, path string, params url.Values, out interface{}) error {
	target := c.config.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeProvider, "Failed to build provider request", err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, "error", start)
		return utils.NewAppError(utils.ErrCodeProvider, "Provider request failed", err.Error())
	}
	defer resp.Body.Close()

	c.observe(endpoint, fmt.Sprintf("%d", resp.StatusCode), start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeProvider, "Failed to read provider response", err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure errorResponse
		if err := json.Unmarshal(body, &failure); err == nil && failure.Message != "" {
			if IsQuotaExhausted(failure.Message) {
				return ErrCredentialExhausted
			}
			return utils.NewAppError(utils.ErrCodeProvider,
				fmt.Sprintf("Provider returned status %d", resp.StatusCode), failure.Message)
		}
		return utils.NewAppError(utils.ErrCodeProvider,
			fmt.Sprintf("Provider returned status %d", resp.StatusCode), string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return utils.NewAppError(utils.ErrCodeProvider, "Failed to decode provider response", err.Error())
	}

	return nil
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProviderRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.ProviderDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
