package matching

import (
	"sort"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

type Candidate struct {
	Intent      models.ProviderIntent `json:"intent"`
	FeeBps      uint32                `json:"fee_bps"`
	Reliability float64               `json:"reliability"`
	Committed   int                   `json:"committed"`
}

// Scores are looked up per provider during ranking. Providers missing from
// Reliability get ColdStart.
type Scores struct {
	Reliability map[string]float64
	Committed   map[string]int
	ColdStart   float64
}

func (s Scores) reliability(provider string) float64 {
	if v, ok := s.Reliability[provider]; ok {
		return v
	}
	return s.ColdStart
}

// Rank orders eligible intents by proposed fee, then declared minimum fee
// (both ascending), reliability (descending), committed proposals
// (ascending) and finally provider address. The key is a strict total order
// over distinct providers, so the result is deterministic.
func Rank(eligible []models.ProviderIntent, feeBps uint32, scores Scores) []Candidate {
	out := make([]Candidate, 0, len(eligible))
	for _, intent := range eligible {
		out = append(out, Candidate{
			Intent:      intent,
			FeeBps:      feeBps,
			Reliability: scores.reliability(intent.Provider),
			Committed:   scores.Committed[intent.Provider],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

func less(a, b Candidate) bool {
	if a.FeeBps != b.FeeBps {
		return a.FeeBps < b.FeeBps
	}
	if a.Intent.MinFeeBps != b.Intent.MinFeeBps {
		return a.Intent.MinFeeBps < b.Intent.MinFeeBps
	}
	if a.Reliability != b.Reliability {
		return a.Reliability > b.Reliability
	}
	if a.Committed != b.Committed {
		return a.Committed < b.Committed
	}
	if a.Intent.Provider != b.Intent.Provider {
		return a.Intent.Provider < b.Intent.Provider
	}
	return a.Intent.Currency < b.Intent.Currency
}
