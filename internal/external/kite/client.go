// Package kite binds the Zerodha Kite Connect REST API to the
// execution layer.
package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/talos/pkg/config"
	"github.com/wonny/talos/pkg/httputil"
	"github.com/wonny/talos/pkg/logger"
)

const (
	apiVersion     = "3"
	defaultBaseURL = "https://api.kite.trade"
	defaultProduct = "MIS"
	orderVariety   = "regular"
)

// Client talks to the Kite Connect order endpoints
// ⭐ SSOT: Kite API 호출은 이 클라이언트를 통해서만
type Client struct {
	apiKey      string
	accessToken string
	baseURL     string
	product     string
	logger      *logger.Logger

	// 조회는 재시도, 주문 계열은 비멱등이라 재시도 금지
	query *httputil.Client
	trade *httputil.Client
}

// NewClient builds a Kite client from configuration
func NewClient(cfg config.KiteConfig, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	clientLog := log.WithComponent("kite_client")
	return &Client{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		product:     defaultProduct,
		logger:      clientLog,
		query:       httputil.NewWithTimeout(clientLog, 10*time.Second).WithRateLimit(cfg.RateLimit),
		trade:       httputil.NewWithTimeout(clientLog, 10*time.Second).WithRateLimit(cfg.RateLimit).DisableRetry(),
	}
}

// WithProduct overrides the product type (MIS, CNC, NRML)
func (c *Client) WithProduct(product string) *Client {
	c.product = product
	return c
}

// apiError is a non-success envelope from the venue
type apiError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("kite api error (%d %s): %s", e.StatusCode, e.ErrorType, e.Message)
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// request performs one authenticated call and decodes the envelope
func (c *Client) request(ctx context.Context, client *httputil.Client, method, path string, form url.Values) (json.RawMessage, int, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("X-Kite-Version", apiVersion)
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || env.Status != "success" {
		return nil, resp.StatusCode, &apiError{
			StatusCode: resp.StatusCode,
			ErrorType:  env.ErrorType,
			Message:    env.Message,
		}
	}

	return env.Data, resp.StatusCode, nil
}

// splitInstrument breaks "NSE:RELIANCE" into exchange and symbol
func splitInstrument(instrument string) (exchange, symbol string, err error) {
	parts := strings.SplitN(instrument, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("instrument must be EXCHANGE:SYMBOL, got %q", instrument)
	}
	return parts[0], parts[1], nil
}
