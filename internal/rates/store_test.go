package rates

import (
	"context"
	"testing"
	"time"

	"github.com/MesaPay/hub/internal/money"
)

func rate(t *testing.T, v string) money.Decimal {
	t.Helper()
	return money.MustParse(v, money.USDDecimals)
}

func TestStoreSnapshots(t *testing.T) {
	s := NewStore(false)

	if _, ok := s.Current(); ok {
		t.Fatal("empty store must not report a current snapshot")
	}

	s.SetCurrent(100)
	s.Insert(100, "USDX", rate(t, "1"))
	s.Insert(100, "WTN", rate(t, "2.5"))

	snapshot, ok := s.Current()
	if !ok || len(snapshot) != 2 {
		t.Fatalf("current snapshot = %v, %v", snapshot, ok)
	}

	got, ok := s.Rate(100, "WTN")
	if !ok || !got.Equal(rate(t, "2.5")) {
		t.Fatalf("Rate(100, WTN) = %s, %v", got, ok)
	}
	if _, ok := s.Rate(100, "UNKNOWN"); ok {
		t.Fatal("unknown ticker must not resolve")
	}
	if _, ok := s.Rate(50, "WTN"); ok {
		t.Fatal("unknown timestamp must not resolve")
	}
}

func TestStoreOldSnapshotsSurviveRefresh(t *testing.T) {
	s := NewStore(false)

	s.SetCurrent(100)
	s.Insert(100, "WTN", rate(t, "2"))
	s.SetCurrent(200)
	s.Insert(200, "WTN", rate(t, "3"))

	// An invoice locked to timestamp 100 must keep resolving the old rate.
	got, ok := s.Rate(100, "WTN")
	if !ok || !got.Equal(rate(t, "2")) {
		t.Fatalf("old snapshot rate = %s, %v", got, ok)
	}
	if s.LastUpdatedAt != 200 {
		t.Fatalf("LastUpdatedAt = %d, want 200", s.LastUpdatedAt)
	}
}

func TestStoreAtOrBefore(t *testing.T) {
	s := NewStore(false)
	for _, ts := range []uint64{100, 200, 300} {
		s.SetCurrent(ts)
		s.Insert(ts, "WTN", rate(t, "1"))
	}

	cases := []struct {
		query   uint64
		wantTS  uint64
		wantHit bool
	}{
		{99, 0, false},
		{100, 100, true},
		{250, 200, true},
		{1000, 300, true},
	}
	for _, tc := range cases {
		_, ts, ok := s.AtOrBefore(tc.query)
		if ok != tc.wantHit || ts != tc.wantTS {
			t.Fatalf("AtOrBefore(%d) = ts %d, %v; want ts %d, %v", tc.query, ts, ok, tc.wantTS, tc.wantHit)
		}
	}
}

func TestStoreDeleteOutdated(t *testing.T) {
	s := NewStore(false)
	s.SetCurrent(100)
	s.SetCurrent(200)

	// The current snapshot is never evicted.
	s.DeleteOutdated(200)
	if _, ok := s.Rates[200]; !ok {
		t.Fatal("current snapshot was evicted")
	}

	s.DeleteOutdated(100)
	if _, ok := s.Rates[100]; ok {
		t.Fatal("outdated snapshot survived deletion")
	}
}

func TestMockOracleDeterministic(t *testing.T) {
	fixed := time.Unix(0, 1_234_567_890_123_456_789)
	oracle := &MockOracle{Now: func() time.Time { return fixed }}

	queries := []TickerQuery{{Ticker: "USDX"}, {Ticker: "WTN"}}
	out, err := oracle.FetchCurrentRates(context.Background(), queries)
	if err != nil {
		t.Fatalf("FetchCurrentRates: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d rates, want 2", len(out))
	}

	for _, r := range out {
		if r.Timestamp != uint64(fixed.UnixNano()) {
			t.Fatalf("timestamp = %d", r.Timestamp)
		}
		if r.Rate.Decimals() != money.USDDecimals {
			t.Fatalf("decimals = %d", r.Rate.Decimals())
		}
		// Synthetic rates stay strictly below 1 USD.
		if cmp, _ := r.Rate.Cmp(money.One(money.USDDecimals)); cmp >= 0 {
			t.Fatalf("mock rate %s not below 1", r.Rate)
		}
	}
}
