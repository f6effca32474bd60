package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sancholibre/kalshi-bot/pkg/models"
)

const (
	// ProdBaseURL is the exchange's trading API root.
	ProdBaseURL = "https://trading-api.kalshi.com/trade-api/v2"

	maxAttempts     = 3
	transportDelay  = 2 * time.Second
	rateLimitDelay  = 10 * time.Second
	requestTimeout  = 15 * time.Second
	requestInterval = 30 * time.Millisecond
)

// Client is the signed REST client for the exchange. All operations take a
// context and go through one retry loop: rate limits wait out a fixed
// cooldown without consuming an attempt, transport failures and 5xx burn
// attempts with a short backoff, and other 4xx surface immediately.
type Client struct {
	baseURL    string
	accessKey  string
	signer     Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger

	// Injection points for tests; defaults are the real clock.
	sleep func(time.Duration)
	now   func() time.Time
}

// NewClient creates a client for the API rooted at baseURL; an empty
// baseURL means production.
func NewClient(baseURL, accessKey string, signer Signer, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = ProdBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		accessKey:  accessKey,
		signer:     signer,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(requestInterval), 1),
		logger:     logger,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// canonicalPath joins path and query the way the exchange verifies
// signatures: parameters sorted lexicographically by key, joined with &,
// values as-is. The same string is used for both the signature and the
// request URL so they are computed over identical bytes.
func canonicalPath(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return path + "?" + strings.Join(pairs, "&")
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body, out interface{}) error {
	fullPath := canonicalPath(path, params)

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := c.send(ctx, method, fullPath, bodyBytes)
		if err != nil {
			attempts++
			if attempts >= maxAttempts {
				return fmt.Errorf("%s %s: %w", method, fullPath, err)
			}
			c.logger.WithError(err).WithFields(logrus.Fields{
				"method":  method,
				"path":    fullPath,
				"attempt": attempts,
			}).Warn("Transport error, retrying")
			c.sleep(transportDelay)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			attempts++
			if attempts >= maxAttempts {
				return fmt.Errorf("%s %s: read response: %w", method, fullPath, readErr)
			}
			c.sleep(transportDelay)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			// Rate limiting has infinite patience within the call and
			// does not count against the attempt budget.
			c.logger.WithField("path", fullPath).Warn("Rate limited, cooling down")
			c.sleep(rateLimitDelay)
			continue
		case resp.StatusCode >= 500:
			attempts++
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
			if attempts >= maxAttempts {
				return apiErr
			}
			c.logger.WithFields(logrus.Fields{
				"status":  resp.StatusCode,
				"path":    fullPath,
				"attempt": attempts,
			}).Warn("Server error, retrying")
			c.sleep(transportDelay)
			continue
		case resp.StatusCode >= 400:
			return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, fullPath, err)
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, method, fullPath string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+fullPath, reader)
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(c.now().UTC().UnixMilli(), 10)
	signature, err := c.signer.Sign(method, fullPath, timestamp)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.accessKey)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// GetMarkets lists open markets closing at or before maxCloseTS. Pass the
// cursor from the previous page to continue; an empty cursor starts over.
func (c *Client) GetMarkets(ctx context.Context, maxCloseTS int64, limit int, cursor string) (*models.MarketsPage, error) {
	params := map[string]string{
		"limit":        strconv.Itoa(limit),
		"status":       "open",
		"max_close_ts": strconv.FormatInt(maxCloseTS, 10),
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	var page models.MarketsPage
	if err := c.do(ctx, http.MethodGet, "/markets", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetOrderbook fetches the resting book for one market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*models.OrderBook, error) {
	var envelope struct {
		Orderbook models.OrderBook `json:"orderbook"`
	}
	path := "/markets/" + ticker + "/orderbook"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Orderbook, nil
}

// CreateOrder submits a limit buy for count contracts at price cents.
func (c *Client) CreateOrder(ctx context.Context, ticker string, side models.Side, count, price int) (*models.Order, error) {
	req := models.NewBuyOrder(ticker, side, count, price)

	var envelope struct {
		Order models.Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Order, nil
}

// GetExchangeStatus reports whether the exchange is open for trading.
func (c *Client) GetExchangeStatus(ctx context.Context) (*models.ExchangeStatus, error) {
	var status models.ExchangeStatus
	if err := c.do(ctx, http.MethodGet, "/exchange/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
