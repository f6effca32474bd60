package trader

import (
	"sync"
	"time"

	"github.com/sancholibre/kalshi-bot/pkg/models"
)

// Session accumulates a run's cycle and trade state. The driver loop
// writes it sequentially; the status API reads it concurrently, hence the
// lock. Nothing here survives a restart.
type Session struct {
	mu sync.RWMutex

	startedAt         time.Time
	cycles            int
	lastScanAt        time.Time
	lastMarketCount   int
	lastBookErrors    int
	lastOpportunities []models.Opportunity
	trades            []models.TradeRecord
}

func NewSession() *Session {
	return &Session{startedAt: time.Now().UTC()}
}

// RecordCycle stores one scan cycle's outcome.
func (s *Session) RecordCycle(scannedAt time.Time, marketCount, bookErrors int, opps []models.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	s.lastScanAt = scannedAt
	s.lastMarketCount = marketCount
	s.lastBookErrors = bookErrors
	s.lastOpportunities = append([]models.Opportunity(nil), opps...)
}

// RecordTrade appends one executed or simulated trade.
func (s *Session) RecordTrade(record models.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, record)
}

// Status is a point-in-time snapshot for the status API.
type Status struct {
	StartedAt      time.Time `json:"started_at"`
	Cycles         int       `json:"cycles"`
	LastScanAt     time.Time `json:"last_scan_at"`
	MarketsScanned int       `json:"markets_scanned"`
	BookErrors     int       `json:"book_errors"`
	Opportunities  int       `json:"opportunities"`
	Trades         int       `json:"trades"`
}

// Snapshot returns the session counters.
func (s *Session) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:      s.startedAt,
		Cycles:         s.cycles,
		LastScanAt:     s.lastScanAt,
		MarketsScanned: s.lastMarketCount,
		BookErrors:     s.lastBookErrors,
		Opportunities:  len(s.lastOpportunities),
		Trades:         len(s.trades),
	}
}

// Opportunities returns the most recent cycle's finds.
func (s *Session) Opportunities() []models.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Opportunity(nil), s.lastOpportunities...)
}

// Trades returns all trades recorded this session.
func (s *Session) Trades() []models.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TradeRecord(nil), s.trades...)
}
