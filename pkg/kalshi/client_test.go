package kalshi

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sancholibre/kalshi-bot/pkg/models"
)

func newTestClient(t *testing.T, serverURL string) (*Client, ed25519.PublicKey, *[]time.Duration) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	c := NewClient(serverURL, "test-key-id", &Ed25519Signer{key: priv}, logger)

	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	return c, pub, &sleeps
}

func TestRequestSignedHeadersAndSortedQuery(t *testing.T) {
	var gotQuery, gotKey, gotSig, gotTS string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("KALSHI-ACCESS-KEY")
		gotSig = r.Header.Get("KALSHI-ACCESS-SIGNATURE")
		gotTS = r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		json.NewEncoder(w).Encode(models.MarketsPage{})
	}))
	defer server.Close()

	c, pub, _ := newTestClient(t, server.URL)

	_, err := c.GetMarkets(context.Background(), 1700000000, 200, "abc")
	require.NoError(t, err)

	// Parameters sorted lexicographically by key; signature and request
	// computed over identical bytes.
	assert.Equal(t, "cursor=abc&limit=200&max_close_ts=1700000000&status=open", gotQuery)
	assert.Equal(t, "test-key-id", gotKey)

	raw, err := base64.StdEncoding.DecodeString(gotSig)
	require.NoError(t, err)
	message := gotTS + "GET" + "/markets?" + gotQuery
	assert.True(t, ed25519.Verify(pub, []byte(message), raw), "signature must cover the canonical path")
}

func TestRequestRetriesTransientThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(models.ExchangeStatus{TradingActive: true})
	}))
	defer server.Close()

	c, _, sleeps := newTestClient(t, server.URL)

	status, err := c.GetExchangeStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.TradingActive)
	assert.Equal(t, 3, calls, "success on the third and final attempt")
	assert.Equal(t, []time.Duration{transportDelay, transportDelay}, *sleeps)
}

func TestRequestExhaustsAttempts(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _, _ := newTestClient(t, server.URL)

	_, err := c.GetExchangeStatus(context.Background())
	require.Error(t, err)
	assert.Equal(t, maxAttempts, calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestRequestRateLimitDoesNotConsumeAttempts(t *testing.T) {
	// A 429 followed by two transient failures still leaves enough budget
	// to succeed on the third real attempt.
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2, 3:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			json.NewEncoder(w).Encode(models.ExchangeStatus{ExchangeActive: true})
		}
	}))
	defer server.Close()

	c, _, sleeps := newTestClient(t, server.URL)

	status, err := c.GetExchangeStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.ExchangeActive)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{rateLimitDelay, transportDelay, transportDelay}, *sleeps)
}

func TestRequestClientErrorNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"market not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	c, _, sleeps := newTestClient(t, server.URL)

	_, err := c.GetOrderbook(context.Background(), "NOPE-24")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx must surface immediately")
	assert.Empty(t, *sleeps)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable())
}

func TestCreateOrderBody(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"order": models.Order{OrderID: "ord-1", Ticker: "HIGHNY-24", Status: "resting"},
		})
	}))
	defer server.Close()

	c, _, _ := newTestClient(t, server.URL)

	order, err := c.CreateOrder(context.Background(), "HIGHNY-24", models.SideNo, 40, 96)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.OrderID)

	assert.Equal(t, "HIGHNY-24", body["ticker"])
	assert.Equal(t, "buy", body["action"])
	assert.Equal(t, "no", body["side"])
	assert.Equal(t, "limit", body["type"])
	assert.Equal(t, float64(40), body["count"])
	assert.Equal(t, float64(96), body["no_price"])
	_, hasYes := body["yes_price"]
	assert.False(t, hasYes, "buying NO must not carry yes_price")
}

func TestGetOrderbookParsesPairArrays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderbook":{"yes":[[96,50],[97,10]],"no":[[95,5]]}}`))
	}))
	defer server.Close()

	c, _, _ := newTestClient(t, server.URL)

	book, err := c.GetOrderbook(context.Background(), "HIGHNY-24")
	require.NoError(t, err)
	require.Len(t, book.Yes, 2)
	assert.Equal(t, models.PriceLevel{Price: 96, Quantity: 50}, book.Yes[0])
	assert.Equal(t, models.PriceLevel{Price: 97, Quantity: 10}, book.Yes[1])
	require.Len(t, book.No, 1)
	assert.Equal(t, models.PriceLevel{Price: 95, Quantity: 5}, book.No[0])
}
