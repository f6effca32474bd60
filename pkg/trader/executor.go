package trader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sancholibre/kalshi-bot/pkg/models"
)

// maxContractsPerTrade caps any single order regardless of capital.
const maxContractsPerTrade = 100

// OrderPlacer is the slice of the API client the executor needs.
// Satisfied by *kalshi.Client.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, ticker string, side models.Side, count, price int) (*models.Order, error)
}

// Notifier receives trade events and error alerts. Implementations are
// fire-and-forget; the executor never checks delivery.
type Notifier interface {
	Alert(ctx context.Context, message string)
	Trade(ctx context.Context, action string, opp models.Opportunity, record models.TradeRecord)
}

// Executor sizes and places orders for scanned opportunities.
type Executor struct {
	client           OrderPlacer
	notifier         Notifier
	session          *Session
	maxPositionCents int
	dryRun           bool
	logger           *logrus.Logger
	now              func() time.Time
}

func NewExecutor(client OrderPlacer, notifier Notifier, session *Session, maxPositionCents int, dryRun bool, logger *logrus.Logger) *Executor {
	return &Executor{
		client:           client,
		notifier:         notifier,
		session:          session,
		maxPositionCents: maxPositionCents,
		dryRun:           dryRun,
		logger:           logger,
		now:              time.Now,
	}
}

// Size returns how many contracts to buy: the resting quantity, capped by
// the capital allowance at this price and the per-trade contract cap.
func (e *Executor) Size(available, price int) int {
	maxByCapital := e.maxPositionCents / price
	qty := available
	if maxByCapital < qty {
		qty = maxByCapital
	}
	if maxContractsPerTrade < qty {
		qty = maxContractsPerTrade
	}
	return qty
}

// Execute sizes the opportunity and, outside dry-run mode, submits the
// order. Returns false when sizing produces nothing to buy or the order is
// rejected; a failed placement is not retried here, the next scan cycle
// rediscovers the level if it is still resting.
func (e *Executor) Execute(ctx context.Context, opp models.Opportunity) bool {
	qty := e.Size(opp.Quantity, opp.Price)
	if qty <= 0 {
		return false
	}

	record := models.TradeRecord{
		Ticker:     opp.Ticker,
		Side:       opp.Side,
		Price:      opp.Price,
		Quantity:   qty,
		CostCents:  qty * opp.Price,
		FeeCents:   Fee(qty, opp.Price),
		DryRun:     e.dryRun,
		ExecutedAt: e.now().UTC(),
	}
	payoutCents := qty * 100
	record.ProfitCents = payoutCents - record.CostCents - record.FeeCents

	log := e.logger.WithFields(logrus.Fields{
		"ticker":            opp.Ticker,
		"side":              opp.Side.Display(),
		"price":             opp.Price,
		"quantity":          qty,
		"cost_cents":        record.CostCents,
		"fee_cents":         record.FeeCents,
		"profit_cents":      record.ProfitCents,
		"hours_since_close": opp.HoursSinceClose,
	})

	if e.dryRun {
		log.Info("Dry run, would execute trade")
		e.session.RecordTrade(record)
		e.notifier.Trade(ctx, "alert", opp, record)
		return true
	}

	order, err := e.client.CreateOrder(ctx, opp.Ticker, opp.Side, qty, opp.Price)
	if err != nil {
		log.WithError(err).Error("Order placement failed")
		e.notifier.Alert(ctx, "Order failed: "+opp.Ticker+" "+opp.Side.Display()+" — "+err.Error())
		return false
	}

	record.OrderID = order.OrderID
	log.WithField("order_id", order.OrderID).Info("Order placed")
	e.session.RecordTrade(record)
	e.notifier.Trade(ctx, "buy", opp, record)
	return true
}
