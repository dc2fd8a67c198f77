// Package marketdata provides the Tradier market-data client used to pull
// option chains, one request per expiration date.
package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
	"github.com/sirupsen/logrus"
)

// Default Tradier base URLs
const (
	SandboxBaseURL    = "https://sandbox.tradier.com/v1"
	ProductionBaseURL = "https://api.tradier.com/v1"
)

// defaultTimeout is the transport default; requests are single best-effort attempts.
const defaultTimeout = 30 * time.Second

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierAPI is a minimal Tradier REST client for market data.
type TradierAPI struct {
	client  *http.Client
	logger  *logrus.Logger
	apiKey  string
	baseURL string
}

// NewTradierAPI creates a client against the sandbox or production endpoint.
func NewTradierAPI(apiKey string, sandbox bool) *TradierAPI {
	return NewTradierAPIWithBaseURLAndClient(apiKey, "", sandbox, nil)
}

// NewTradierAPIWithBaseURLAndClient creates a client with an optional custom baseURL and HTTP client.
// An empty baseURL selects the sandbox or production default.
func NewTradierAPIWithBaseURLAndClient(apiKey, baseURL string, sandbox bool, client *http.Client) *TradierAPI {
	if baseURL == "" {
		if sandbox {
			baseURL = SandboxBaseURL
		} else {
			baseURL = ProductionBaseURL
		}
	}
	// Normalize once
	baseURL = strings.TrimRight(baseURL, "/")

	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return &TradierAPI{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierAPI) WithHTTPClient(c *http.Client) *TradierAPI {
	if c != nil {
		t.client = c
	}
	return t
}

// WithLogger sets the logger used for request diagnostics.
func (t *TradierAPI) WithLogger(l *logrus.Logger) *TradierAPI {
	if l != nil {
		t.logger = l
	}
	return t
}

// BaseURL returns the normalized API root.
func (t *TradierAPI) BaseURL() string {
	return t.baseURL
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// OptionChainResponse represents the API response for option chain requests.
type OptionChainResponse struct {
	Options OptionsWrapper `json:"options"`
}

// OptionsWrapper handles "options" arriving as null, the string "null", or an object
type OptionsWrapper struct {
	Option singleOrArray[models.Option] `json:"option"`
}

func (w *OptionsWrapper) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)

	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*w = OptionsWrapper{}
		return nil
	}

	type normalWrapper OptionsWrapper
	return json.Unmarshal(b, (*normalWrapper)(w))
}

// ============ API Methods ============

// GetOptionChain retrieves the option chain for a symbol and expiration date.
func (t *TradierAPI) GetOptionChain(symbol, expiration string) ([]models.Option, error) {
	return t.GetOptionChainCtx(context.Background(), symbol, expiration)
}

// GetOptionChainCtx retrieves the option chain for a symbol and expiration date with context.
// An expiration with no listed contracts returns an empty slice and no error.
func (t *TradierAPI) GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]models.Option, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response OptionChainResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return []models.Option(response.Options.Option), nil
}

// makeRequestCtx makes an HTTP request with context support for cancellation
func (t *TradierAPI) makeRequestCtx(ctx context.Context, method, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "spy-options-collector/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	// Tradier reports quota on every response
	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining == "" {
		remaining = resp.Header.Get("X-RateLimit-Remaining")
	}
	if remaining != "" {
		t.logger.WithField("available", remaining).Debug("Rate limit remaining")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		ct := resp.Header.Get("Content-Type")
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s (%s) -> %s", method, endpoint, ct, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	// An empty 200 body is a broken response, not an empty chain
	if err := dec.Decode(response); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
