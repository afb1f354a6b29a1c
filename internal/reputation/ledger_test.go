package reputation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

var at = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func TestLedger_Calculation(t *testing.T) {
	l := NewLedger(DefaultColdStartScore)
	rec := models.NewProviderReputation("0xprovider", at)

	l.Success("0xprovider", 120, mustDecimal(t, "1000000000000000000000"), at).Apply(&rec)
	l.Success("0xprovider", 90, mustDecimal(t, "2000000000000000000000"), at).Apply(&rec)
	l.Failure("0xprovider", at).Apply(&rec)
	l.NoShow("0xprovider", at).Apply(&rec)

	if rec.TotalOrders != 4 {
		t.Fatalf("total=%d want=4", rec.TotalOrders)
	}
	if rec.SuccessfulOrders != 2 {
		t.Fatalf("successful=%d want=2", rec.SuccessfulOrders)
	}
	if got := l.SuccessRate(rec); got != 0.5 {
		t.Fatalf("success rate=%v want=0.5", got)
	}
	if got := l.Reliability(rec); got != 0.75 {
		t.Fatalf("reliability=%v want=0.75", got)
	}
	if rec.AvgSettlementTimeSeconds != 105 {
		t.Fatalf("avg=%d want=105", rec.AvgSettlementTimeSeconds)
	}
	if want := mustDecimal(t, "3000000000000000000000"); !rec.TotalVolume.Equal(want) {
		t.Fatalf("volume=%s want=%s", rec.TotalVolume, want)
	}
}

func TestLedger_ColdStartIsConfigurable(t *testing.T) {
	rec := models.NewProviderReputation("0xnew", at)
	if got := NewLedger(DefaultColdStartScore).Reliability(rec); got != 0.5 {
		t.Fatalf("reliability=%v want=0.5", got)
	}
	if got := NewLedger(0.8).SuccessRate(rec); got != 0.8 {
		t.Fatalf("success rate=%v want=0.8", got)
	}
	if got := NewLedger(7).ColdStartScore; got != DefaultColdStartScore {
		t.Fatalf("out-of-range cold start=%v want=%v", got, DefaultColdStartScore)
	}
}

func TestLedger_TotalIsSumOfOutcomes(t *testing.T) {
	l := NewLedger(DefaultColdStartScore)
	rec := models.NewProviderReputation("0xp", at)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0:
			l.Success("0xp", uint64(rng.Intn(600)), decimal.NewFromInt(int64(rng.Intn(1_000_000))), at).Apply(&rec)
		case 1:
			l.Failure("0xp", at).Apply(&rec)
		default:
			l.NoShow("0xp", at).Apply(&rec)
		}
		if rec.TotalOrders != rec.SuccessfulOrders+rec.FailedOrders+rec.NoShows {
			t.Fatalf("step %d: total=%d successful=%d failed=%d no_shows=%d",
				i, rec.TotalOrders, rec.SuccessfulOrders, rec.FailedOrders, rec.NoShows)
		}
		if r := l.Reliability(rec); r < 0 || r > 1 {
			t.Fatalf("reliability=%v out of [0,1]", r)
		}
		if r := l.SuccessRate(rec); r < 0 || r > 1 {
			t.Fatalf("success rate=%v out of [0,1]", r)
		}
	}
}

func TestUpdate_ApplyFillsProvider(t *testing.T) {
	var rec models.ProviderReputation
	NewLedger(0.5).NoShow("0xq", at).Apply(&rec)
	if rec.Provider != "0xq" || rec.NoShows != 1 || !rec.LastUpdated.Equal(at) {
		t.Fatalf("rec=%+v", rec)
	}
}
