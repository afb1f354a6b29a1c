package matching

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/config"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

// TierLimits holds inclusive upper bounds; anything above Omega is Titan.
type TierLimits struct {
	Alpha decimal.Decimal
	Beta  decimal.Decimal
	Delta decimal.Decimal
	Omega decimal.Decimal
}

func DefaultTierLimits() TierLimits {
	return TierLimits{
		Alpha: decimal.NewFromInt(3_000),
		Beta:  decimal.NewFromInt(10_000),
		Delta: decimal.NewFromInt(50_000),
		Omega: decimal.NewFromInt(100_000),
	}
}

func TierLimitsFromConfig(cfg config.TierLimitsConfig) (TierLimits, error) {
	def := DefaultTierLimits()
	out := TierLimits{}
	var err error
	if out.Alpha, err = limitOrDefault(cfg.Alpha, def.Alpha); err != nil {
		return TierLimits{}, fmt.Errorf("tier_limits.alpha: %w", err)
	}
	if out.Beta, err = limitOrDefault(cfg.Beta, def.Beta); err != nil {
		return TierLimits{}, fmt.Errorf("tier_limits.beta: %w", err)
	}
	if out.Delta, err = limitOrDefault(cfg.Delta, def.Delta); err != nil {
		return TierLimits{}, fmt.Errorf("tier_limits.delta: %w", err)
	}
	if out.Omega, err = limitOrDefault(cfg.Omega, def.Omega); err != nil {
		return TierLimits{}, fmt.Errorf("tier_limits.omega: %w", err)
	}
	if !(out.Alpha.LessThan(out.Beta) && out.Beta.LessThan(out.Delta) && out.Delta.LessThan(out.Omega)) {
		return TierLimits{}, fmt.Errorf("tier limits must be strictly increasing: %s < %s < %s < %s",
			out.Alpha, out.Beta, out.Delta, out.Omega)
	}
	return out, nil
}

func limitOrDefault(raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || !d.IsInteger() {
		return decimal.Zero, fmt.Errorf("limit %q is not a non-negative integer", raw)
	}
	return d, nil
}

// Classify never fails: an unparsable, negative or fractional amount is
// treated as zero and lands in the lowest tier.
func Classify(amount string, limits TierLimits) models.Tier {
	return ClassifyDecimal(ParseAmount(amount), limits)
}

func ClassifyDecimal(amount decimal.Decimal, limits TierLimits) models.Tier {
	if amount.IsNegative() || !amount.IsInteger() {
		amount = decimal.Zero
	}
	switch {
	case amount.LessThanOrEqual(limits.Alpha):
		return models.TierAlpha
	case amount.LessThanOrEqual(limits.Beta):
		return models.TierBeta
	case amount.LessThanOrEqual(limits.Delta):
		return models.TierDelta
	case amount.LessThanOrEqual(limits.Omega):
		return models.TierOmega
	default:
		return models.TierTitan
	}
}

// ParseAmount reads an unsigned integer amount, returning zero for anything
// else.
func ParseAmount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() || !d.IsInteger() {
		return decimal.Zero
	}
	return d
}
