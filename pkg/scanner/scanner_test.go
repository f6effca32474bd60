package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sancholibre/kalshi-bot/pkg/models"
)

type fakeExchange struct {
	pages       []models.MarketsPage
	pageCalls   int
	cursorsSeen []string
	books       map[string]*models.OrderBook
	bookErrs    map[string]error
	bookCalls   []string
}

func (f *fakeExchange) GetMarkets(ctx context.Context, maxCloseTS int64, limit int, cursor string) (*models.MarketsPage, error) {
	f.cursorsSeen = append(f.cursorsSeen, cursor)
	if f.pageCalls >= len(f.pages) {
		return &models.MarketsPage{}, nil
	}
	page := f.pages[f.pageCalls]
	f.pageCalls++
	return &page, nil
}

func (f *fakeExchange) GetOrderbook(ctx context.Context, ticker string) (*models.OrderBook, error) {
	f.bookCalls = append(f.bookCalls, ticker)
	if err, ok := f.bookErrs[ticker]; ok {
		return nil, err
	}
	if book, ok := f.books[ticker]; ok {
		return book, nil
	}
	return &models.OrderBook{}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func closedMarket(ticker string, now time.Time, ago time.Duration) models.Market {
	return models.Market{
		Ticker:    ticker,
		Title:     ticker + " market",
		Status:    "open",
		CloseTime: now.Add(-ago).Format(time.RFC3339),
	}
}

func defaultConfig() Config {
	return Config{
		MinPrice:  95,
		MaxPrice:  97,
		Lookahead: 24 * time.Hour,
		Staleness: 6 * time.Hour,
	}
}

func TestScanPaginationTerminates(t *testing.T) {
	now := time.Now().UTC()
	exchange := &fakeExchange{
		pages: []models.MarketsPage{
			{Markets: []models.Market{closedMarket("A-1", now, time.Hour)}, Cursor: "page2"},
			{Markets: []models.Market{closedMarket("B-1", now, time.Hour)}, Cursor: ""},
		},
		books: map[string]*models.OrderBook{},
	}

	s := New(exchange, defaultConfig(), testLogger())

	result, err := s.Scan(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, exchange.pageCalls, "cursor once then no cursor means exactly two fetches")
	assert.Equal(t, []string{"", "page2"}, exchange.cursorsSeen)
	assert.Equal(t, 2, result.MarketsScanned)
}

func TestScanFiltersMarkets(t *testing.T) {
	now := time.Now().UTC()
	markets := []models.Market{
		closedMarket("GOOD-1", now, time.Hour),
		// Event not ended yet.
		{Ticker: "FUTURE-1", Status: "open", CloseTime: now.Add(2 * time.Hour).Format(time.RFC3339)},
		// Too stale, assumed settled.
		closedMarket("STALE-1", now, 7*time.Hour),
		// Unparseable close time.
		{Ticker: "BADTIME-1", Status: "open", CloseTime: "not-a-time"},
		// Missing close time.
		{Ticker: "NOTIME-1", Status: "open"},
		// Not open.
		{Ticker: "SETTLED-1", Status: "settled", CloseTime: now.Add(-time.Hour).Format(time.RFC3339)},
	}

	exchange := &fakeExchange{
		pages: []models.MarketsPage{{Markets: markets}},
		books: map[string]*models.OrderBook{
			"GOOD-1": {Yes: []models.PriceLevel{{Price: 96, Quantity: 50}}},
		},
	}

	s := New(exchange, defaultConfig(), testLogger())

	result, err := s.Scan(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, []string{"GOOD-1"}, exchange.bookCalls, "only ended, fresh, open markets get a book fetch")
	require.Len(t, result.Opportunities, 1)
	opp := result.Opportunities[0]
	assert.Equal(t, "GOOD-1", opp.Ticker)
	assert.Equal(t, models.SideYes, opp.Side)
	assert.Equal(t, 96, opp.Price)
	assert.Equal(t, 50, opp.Quantity)
	assert.Equal(t, 4, opp.ProfitPct)
}

func TestScanPriceBandAndInvariants(t *testing.T) {
	now := time.Now().UTC()
	exchange := &fakeExchange{
		pages: []models.MarketsPage{{Markets: []models.Market{
			closedMarket("M-1", now, 30*time.Minute),
			closedMarket("M-2", now, 5*time.Hour),
		}}},
		books: map[string]*models.OrderBook{
			"M-1": {
				Yes: []models.PriceLevel{{Price: 94, Quantity: 10}, {Price: 95, Quantity: 20}, {Price: 97, Quantity: 30}, {Price: 98, Quantity: 40}},
				No:  []models.PriceLevel{{Price: 96, Quantity: 15}},
			},
			"M-2": {
				No: []models.PriceLevel{{Price: 99, Quantity: 5}, {Price: 95, Quantity: 1}},
			},
		},
	}

	cfg := defaultConfig()
	s := New(exchange, cfg, testLogger())

	result, err := s.Scan(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, result.Opportunities, 4)
	for _, opp := range result.Opportunities {
		assert.GreaterOrEqual(t, opp.Price, cfg.MinPrice)
		assert.LessOrEqual(t, opp.Price, cfg.MaxPrice)
		assert.GreaterOrEqual(t, opp.HoursSinceClose, 0.0)
		assert.LessOrEqual(t, opp.HoursSinceClose, 6.0)
		assert.Positive(t, opp.Quantity)
	}
}

func TestScanBookFailureDoesNotAbort(t *testing.T) {
	now := time.Now().UTC()
	exchange := &fakeExchange{
		pages: []models.MarketsPage{{Markets: []models.Market{
			closedMarket("FAIL-1", now, time.Hour),
			closedMarket("OK-1", now, time.Hour),
		}}},
		books: map[string]*models.OrderBook{
			"OK-1": {Yes: []models.PriceLevel{{Price: 95, Quantity: 10}}},
		},
		bookErrs: map[string]error{
			"FAIL-1": fmt.Errorf("connection reset"),
		},
	}

	s := New(exchange, defaultConfig(), testLogger())

	result, err := s.Scan(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, result.BookErrors)
	require.Len(t, result.Opportunities, 1)
	assert.Equal(t, "OK-1", result.Opportunities[0].Ticker)
}

func TestScanTruncatesLongTitles(t *testing.T) {
	now := time.Now().UTC()
	longTitle := "Will the temperature in Central Park exceed 90 degrees on the afternoon of July 4th"
	exchange := &fakeExchange{
		pages: []models.MarketsPage{{Markets: []models.Market{{
			Ticker:    "LONG-1",
			Title:     longTitle,
			Status:    "open",
			CloseTime: now.Add(-time.Hour).Format(time.RFC3339),
		}}}},
		books: map[string]*models.OrderBook{
			"LONG-1": {Yes: []models.PriceLevel{{Price: 95, Quantity: 1}}},
		},
	}

	s := New(exchange, defaultConfig(), testLogger())

	result, err := s.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, result.Opportunities, 1)
	assert.Len(t, result.Opportunities[0].Title, 50)
}
