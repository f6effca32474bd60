package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Side identifies which binary outcome an order is for.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Display returns the uppercase form used in alerts and logs.
func (s Side) Display() string {
	if s == SideYes {
		return "YES"
	}
	return "NO"
}

// Market is a binary-outcome contract as returned by the markets listing.
type Market struct {
	Ticker    string `json:"ticker"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CloseTime string `json:"close_time"`
}

// ParseCloseTime parses the market's close timestamp. Returns a zero time
// and false when the field is missing or malformed.
func (m *Market) ParseCloseTime() (time.Time, bool) {
	if m.CloseTime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, m.CloseTime)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// MarketsPage is one page of the cursor-paginated markets listing.
type MarketsPage struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// PriceLevel is a resting order level. The exchange encodes levels as
// two-element [price, quantity] arrays.
type PriceLevel struct {
	Price    int
	Quantity int
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("price level: expected [price, quantity], got %d elements", len(pair))
	}
	l.Price = pair[0]
	l.Quantity = pair[1]
	return nil
}

func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{l.Price, l.Quantity})
}

// OrderBook holds the resting levels for both sides of a market.
type OrderBook struct {
	Yes []PriceLevel `json:"yes"`
	No  []PriceLevel `json:"no"`
}

// Levels returns the resting levels for one side.
func (b *OrderBook) Levels(side Side) []PriceLevel {
	if side == SideYes {
		return b.Yes
	}
	return b.No
}

// ExchangeStatus reports whether the exchange is accepting trades.
type ExchangeStatus struct {
	ExchangeActive bool `json:"exchange_active"`
	TradingActive  bool `json:"trading_active"`
}

// Opportunity is a resting ask inside the target price band on a market
// whose event has ended but not yet settled. Immutable once produced.
type Opportunity struct {
	Ticker          string    `json:"ticker"`
	Title           string    `json:"title"`
	Side            Side      `json:"side"`
	Price           int       `json:"price"`
	Quantity        int       `json:"quantity"`
	ProfitPct       int       `json:"profit_pct"`
	CloseTime       time.Time `json:"close_time"`
	HoursSinceClose float64   `json:"hours_since_close"`
}
