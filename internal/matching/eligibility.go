package matching

import (
	"time"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

const (
	ReasonCurrency = "currency_mismatch"
	ReasonInactive = "inactive"
	ReasonExpired  = "intent_expired"
	ReasonCapacity = "insufficient_capacity"
	ReasonFee      = "fee_out_of_range"
)

// ProspectiveFee is the fee a proposal for this order would carry: the
// integrator's fee when set, the platform default otherwise.
func ProspectiveFee(order models.Order, defaultFeeBps uint32) uint32 {
	if order.IntegratorFeeBps > 0 {
		return order.IntegratorFeeBps
	}
	return defaultFeeBps
}

// Check reports whether intent may serve order at feeBps, and if not, why.
func Check(order models.Order, feeBps uint32, intent models.ProviderIntent, now time.Time) (bool, string) {
	if intent.Currency != order.Currency {
		return false, ReasonCurrency
	}
	if !intent.IsActive {
		return false, ReasonInactive
	}
	if !now.Before(intent.ExpiresAt) {
		return false, ReasonExpired
	}
	if !intent.CanHandle(order.Amount) {
		return false, ReasonCapacity
	}
	if !intent.AcceptsFee(feeBps) {
		return false, ReasonFee
	}
	return true, ""
}

// Eligible filters a point-in-time snapshot of intents, keeping input order.
// Capacity is re-validated at reservation time, so a stale snapshot can only
// cause a clean CapacityExhausted later, never an over-commit.
func Eligible(order models.Order, feeBps uint32, intents []models.ProviderIntent, now time.Time) []models.ProviderIntent {
	out := make([]models.ProviderIntent, 0, len(intents))
	for _, intent := range intents {
		if ok, _ := Check(order, feeBps, intent, now); ok {
			out = append(out, intent)
		}
	}
	return out
}
