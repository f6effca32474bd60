package models

// SeenKey identifies a trade signal for deduplication purposes. The same
// (ticker, side, price) triple is only acted on once per session.
type SeenKey struct {
	Ticker string
	Side   Side
	Price  int
}

// SeenTrades is the session-scoped dedup set. It is owned by the driver
// loop and never touched concurrently, so it carries no lock. The set is
// cleared wholesale once it grows past the reset threshold; that bounds
// memory, it is not a correctness-critical eviction.
type SeenTrades struct {
	resetThreshold int
	keys           map[SeenKey]struct{}
}

// NewSeenTrades creates an empty set that Sweep clears once its size
// exceeds resetThreshold.
func NewSeenTrades(resetThreshold int) *SeenTrades {
	return &SeenTrades{
		resetThreshold: resetThreshold,
		keys:           make(map[SeenKey]struct{}),
	}
}

// Observe records the opportunity's key and reports whether it was new.
func (s *SeenTrades) Observe(opp Opportunity) bool {
	key := SeenKey{Ticker: opp.Ticker, Side: opp.Side, Price: opp.Price}
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Len reports the number of recorded keys.
func (s *SeenTrades) Len() int {
	return len(s.keys)
}

// Sweep clears the set when it has grown past the reset threshold.
func (s *SeenTrades) Sweep() {
	if len(s.keys) > s.resetThreshold {
		s.keys = make(map[SeenKey]struct{})
	}
}
