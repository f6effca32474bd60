package scanner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sancholibre/kalshi-bot/pkg/models"
)

// Exchange is the slice of the API client the scanner needs.
// Satisfied by *kalshi.Client.
type Exchange interface {
	GetMarkets(ctx context.Context, maxCloseTS int64, limit int, cursor string) (*models.MarketsPage, error)
	GetOrderbook(ctx context.Context, ticker string) (*models.OrderBook, error)
}

// Config bounds which resting asks qualify as opportunities.
type Config struct {
	MinPrice  int
	MaxPrice  int
	Lookahead time.Duration
	// Staleness is how long after close a market is still worth sniping;
	// beyond it the contract is assumed settled or the signal unreliable.
	Staleness time.Duration
	PageLimit int
}

// Scanner walks the open-market listing and emits opportunities on markets
// whose event has ended but not yet settled.
type Scanner struct {
	exchange Exchange
	cfg      Config
	logger   *logrus.Logger
}

func New(exchange Exchange, cfg Config, logger *logrus.Logger) *Scanner {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 200
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = 6 * time.Hour
	}
	return &Scanner{exchange: exchange, cfg: cfg, logger: logger}
}

// Result is one full scan's output plus its error accounting. BookErrors
// counts markets skipped on order-book fetch failures; a systemic outage
// shows up here instead of masquerading as an empty scan.
type Result struct {
	Opportunities  []models.Opportunity
	MarketsScanned int
	BookErrors     int
}

// Scan performs a fresh full scan as of now. Single-market order-book
// failures are logged and skipped, never abort the scan; a listing failure
// does, since without pages there is nothing to scan.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (*Result, error) {
	now = now.UTC()
	maxCloseTS := now.Add(s.cfg.Lookahead).Unix()

	result := &Result{}
	cursor := ""

	for {
		page, err := s.exchange.GetMarkets(ctx, maxCloseTS, s.cfg.PageLimit, cursor)
		if err != nil {
			return nil, err
		}
		if len(page.Markets) == 0 {
			break
		}

		for i := range page.Markets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.scanMarket(ctx, &page.Markets[i], now, result)
		}

		result.MarketsScanned += len(page.Markets)
		cursor = page.Cursor
		if cursor == "" {
			break
		}
	}

	return result, nil
}

func (s *Scanner) scanMarket(ctx context.Context, market *models.Market, now time.Time, result *Result) {
	if market.Status != "" && market.Status != "open" && market.Status != "active" {
		return
	}

	closeTime, ok := market.ParseCloseTime()
	if !ok {
		return
	}

	// Only already-ended events qualify; a future close time means the
	// outcome is still in play.
	if closeTime.After(now) {
		return
	}

	sinceClose := now.Sub(closeTime)
	if sinceClose > s.cfg.Staleness {
		return
	}

	book, err := s.exchange.GetOrderbook(ctx, market.Ticker)
	if err != nil {
		result.BookErrors++
		s.logger.WithError(err).WithField("ticker", market.Ticker).Warn("Order book fetch failed, skipping market")
		return
	}

	title := market.Title
	if len(title) > 50 {
		title = title[:50]
	}
	hoursSince := sinceClose.Hours()

	for _, side := range []models.Side{models.SideYes, models.SideNo} {
		for _, level := range book.Levels(side) {
			if level.Price < s.cfg.MinPrice || level.Price > s.cfg.MaxPrice {
				continue
			}
			result.Opportunities = append(result.Opportunities, models.Opportunity{
				Ticker:          market.Ticker,
				Title:           title,
				Side:            side,
				Price:           level.Price,
				Quantity:        level.Quantity,
				ProfitPct:       100 - level.Price,
				CloseTime:       closeTime,
				HoursSinceClose: hoursSince,
			})
		}
	}
}
