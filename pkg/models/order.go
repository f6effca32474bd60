package models

import (
	"time"
)

// OrderRequest is the order placement body. Exactly one of YesPrice/NoPrice
// is set, matching Side; the exchange rejects bodies carrying both.
type OrderRequest struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"`
	Side     Side   `json:"side"`
	Count    int    `json:"count"`
	Type     string `json:"type"`
	YesPrice *int   `json:"yes_price,omitempty"`
	NoPrice  *int   `json:"no_price,omitempty"`
}

// NewBuyOrder builds a limit buy for count contracts at price cents.
// The bot only ever buys; there is no sell path.
func NewBuyOrder(ticker string, side Side, count, price int) *OrderRequest {
	req := &OrderRequest{
		Ticker: ticker,
		Action: "buy",
		Side:   side,
		Count:  count,
		Type:   "limit",
	}
	if side == SideYes {
		req.YesPrice = &price
	} else {
		req.NoPrice = &price
	}
	return req
}

// Order is the exchange's view of a placed order.
type Order struct {
	OrderID string `json:"order_id"`
	Ticker  string `json:"ticker"`
	Side    Side   `json:"side"`
	Status  string `json:"status"`
	Count   int    `json:"count"`
}

// TradeRecord captures the sized economics of one executed (or simulated)
// trade. Derived at execution time, not persisted.
type TradeRecord struct {
	Ticker      string    `json:"ticker"`
	Side        Side      `json:"side"`
	Price       int       `json:"price"`
	Quantity    int       `json:"quantity"`
	CostCents   int       `json:"cost_cents"`
	FeeCents    int       `json:"fee_cents"`
	ProfitCents int       `json:"profit_cents"`
	OrderID     string    `json:"order_id,omitempty"`
	DryRun      bool      `json:"dry_run"`
	ExecutedAt  time.Time `json:"executed_at"`
}
