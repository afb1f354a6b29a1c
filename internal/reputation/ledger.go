// Package reputation keeps per-provider trust metrics. Records change only
// through Update.Apply, which the lifecycle manager commits in the same
// atomic write as the terminal proposal transition that caused it.
package reputation

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

const DefaultColdStartScore = 0.5

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeNoShow  Outcome = "no_show"
)

// Update is one terminal outcome waiting to be applied to a provider record.
type Update struct {
	Provider          string          `json:"provider"`
	Outcome           Outcome         `json:"outcome"`
	SettlementSeconds uint64          `json:"settlement_seconds,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	At                time.Time       `json:"at"`
}

func (u Update) Apply(rec *models.ProviderReputation) {
	if rec == nil {
		return
	}
	if rec.Provider == "" {
		rec.Provider = u.Provider
	}
	switch u.Outcome {
	case OutcomeSuccess:
		RecordSuccess(rec, u.SettlementSeconds, u.Amount, u.At)
	case OutcomeFailure:
		RecordFailure(rec, u.At)
	case OutcomeNoShow:
		RecordNoShow(rec, u.At)
	}
}

func RecordSuccess(rec *models.ProviderReputation, settlementSeconds uint64, amount decimal.Decimal, now time.Time) {
	rec.TotalOrders++
	rec.SuccessfulOrders++

	n := rec.SuccessfulOrders
	total := new(big.Int).Mul(new(big.Int).SetUint64(rec.AvgSettlementTimeSeconds), new(big.Int).SetUint64(n-1))
	total.Add(total, new(big.Int).SetUint64(settlementSeconds))
	total.Quo(total, new(big.Int).SetUint64(n))
	rec.AvgSettlementTimeSeconds = total.Uint64()

	if amount.IsPositive() {
		rec.TotalVolume = rec.TotalVolume.Add(amount)
	}
	rec.LastUpdated = now
}

func RecordFailure(rec *models.ProviderReputation, now time.Time) {
	rec.TotalOrders++
	rec.FailedOrders++
	rec.LastUpdated = now
}

func RecordNoShow(rec *models.ProviderReputation, now time.Time) {
	rec.TotalOrders++
	rec.NoShows++
	rec.LastUpdated = now
}

// Ledger derives scores. ColdStartScore is what a provider with no history
// gets for both metrics.
type Ledger struct {
	ColdStartScore float64
}

func NewLedger(coldStart float64) Ledger {
	if coldStart < 0 || coldStart > 1 {
		coldStart = DefaultColdStartScore
	}
	return Ledger{ColdStartScore: coldStart}
}

func (l Ledger) Success(provider string, settlementSeconds uint64, amount decimal.Decimal, at time.Time) Update {
	return Update{Provider: provider, Outcome: OutcomeSuccess, SettlementSeconds: settlementSeconds, Amount: amount, At: at}
}

func (l Ledger) Failure(provider string, at time.Time) Update {
	return Update{Provider: provider, Outcome: OutcomeFailure, Amount: decimal.Zero, At: at}
}

func (l Ledger) NoShow(provider string, at time.Time) Update {
	return Update{Provider: provider, Outcome: OutcomeNoShow, Amount: decimal.Zero, At: at}
}

func (l Ledger) SuccessRate(rec models.ProviderReputation) float64 {
	if rec.TotalOrders == 0 {
		return l.ColdStartScore
	}
	return float64(rec.SuccessfulOrders) / float64(rec.TotalOrders)
}

func (l Ledger) Reliability(rec models.ProviderReputation) float64 {
	if rec.TotalOrders == 0 {
		return l.ColdStartScore
	}
	return 1 - float64(rec.NoShows)/float64(rec.TotalOrders)
}

type View struct {
	models.ProviderReputation
	SuccessRate float64 `json:"success_rate"`
	Reliability float64 `json:"reliability_score"`
}

func (l Ledger) View(rec models.ProviderReputation) View {
	return View{
		ProviderReputation: rec,
		SuccessRate:        l.SuccessRate(rec),
		Reliability:        l.Reliability(rec),
	}
}

// ReliabilityByProvider indexes reliability for ranking.
func (l Ledger) ReliabilityByProvider(recs []models.ProviderReputation) map[string]float64 {
	out := make(map[string]float64, len(recs))
	for _, rec := range recs {
		out[rec.Provider] = l.Reliability(rec)
	}
	return out
}
