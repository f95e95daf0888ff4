package rates

import (
	"sort"

	"github.com/MesaPay/hub/internal/money"
	"github.com/MesaPay/hub/internal/tokens"
)

// Store maps point-in-time timestamps (unix nanos) to ticker -> USD rate
// snapshots. Invoices lock to the snapshot current at creation time, so a
// mid-flight refresh never changes what an open invoice owes; old snapshots
// survive exactly as long as some invoice still references them.
//
// Not internally synchronized; the hub state serializes access.
type Store struct {
	Mock          bool                                       `json:"mock"`
	LastUpdatedAt uint64                                     `json:"last_updated_at"`
	Rates         map[uint64]map[tokens.Ticker]money.Decimal `json:"rates"`
}

// NewStore creates an empty snapshot store.
func NewStore(mock bool) *Store {
	return &Store{
		Mock:  mock,
		Rates: make(map[uint64]map[tokens.Ticker]money.Decimal),
	}
}

// SetCurrent marks timestamp as the current snapshot, creating its (empty)
// rate table if needed.
func (s *Store) SetCurrent(timestamp uint64) {
	s.LastUpdatedAt = timestamp
	if _, ok := s.Rates[timestamp]; !ok {
		s.Rates[timestamp] = make(map[tokens.Ticker]money.Decimal)
	}
}

// Insert records one ticker's rate under the given snapshot timestamp.
func (s *Store) Insert(timestamp uint64, ticker tokens.Ticker, rate money.Decimal) {
	snapshot, ok := s.Rates[timestamp]
	if !ok {
		snapshot = make(map[tokens.Ticker]money.Decimal)
		s.Rates[timestamp] = snapshot
	}
	snapshot[ticker] = rate
}

// Rate returns the rate for ticker in the snapshot taken at timestamp.
func (s *Store) Rate(timestamp uint64, ticker tokens.Ticker) (money.Decimal, bool) {
	snapshot, ok := s.Rates[timestamp]
	if !ok {
		return money.Decimal{}, false
	}
	rate, ok := snapshot[ticker]
	return rate, ok
}

// Current returns the current snapshot's rate table. The second return is
// false before the first snapshot is recorded.
func (s *Store) Current() (map[tokens.Ticker]money.Decimal, bool) {
	snapshot, ok := s.Rates[s.LastUpdatedAt]
	return snapshot, ok
}

// AtOrBefore returns the most recent snapshot taken at or before timestamp,
// along with its actual timestamp. Returns false when no snapshot is old
// enough (e.g. before the first oracle fetch).
func (s *Store) AtOrBefore(timestamp uint64) (map[tokens.Ticker]money.Decimal, uint64, bool) {
	keys := make([]uint64, 0, len(s.Rates))
	for k := range s.Rates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	idx := sort.Search(len(keys), func(i int) bool { return keys[i] > timestamp })
	if idx == 0 {
		return nil, 0, false
	}

	key := keys[idx-1]
	return s.Rates[key], key, true
}

// DeleteOutdated removes the snapshot at timestamp unless it is the current
// one. The live snapshot is never evicted even if momentarily unreferenced;
// the next invoice will lock to it. Callers must have checked that no active
// invoice still references the timestamp.
func (s *Store) DeleteOutdated(timestamp uint64) {
	if timestamp == s.LastUpdatedAt {
		return
	}
	delete(s.Rates, timestamp)
}
