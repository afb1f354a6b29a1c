package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type IntentKey struct {
	Provider string
	Currency string
}

func (k IntentKey) String() string {
	return k.Provider + "/" + k.Currency
}

// ProviderIntent is a provider's standing offer of liquidity for one
// currency. AvailableAmount is free capacity; ReservedAmount is held by
// pending or accepted proposals.
type ProviderIntent struct {
	Provider string `gorm:"type:varchar(42);primaryKey" json:"provider"`
	Currency string `gorm:"type:varchar(10);primaryKey" json:"currency"`

	AvailableAmount decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"available_amount"`
	ReservedAmount  decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"reserved_amount"`

	MinFeeBps uint32 `gorm:"not null" json:"min_fee_bps"`
	MaxFeeBps uint32 `gorm:"not null" json:"max_fee_bps"`

	CommitmentWindowSeconds uint64 `gorm:"not null" json:"commitment_window_seconds"`

	IsActive bool `gorm:"not null;index" json:"is_active"`

	RegisteredAt time.Time `gorm:"type:timestamptz;not null" json:"registered_at"`
	ExpiresAt    time.Time `gorm:"type:timestamptz;not null;index" json:"expires_at"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;not null;autoUpdateTime:false" json:"updated_at"`
}

func (ProviderIntent) TableName() string {
	return "provider_intents"
}

func (i ProviderIntent) Key() IntentKey {
	return IntentKey{Provider: i.Provider, Currency: i.Currency}
}

func (i ProviderIntent) IsValid(now time.Time) bool {
	return i.IsActive && now.Before(i.ExpiresAt)
}

func (i ProviderIntent) CanHandle(amount decimal.Decimal) bool {
	return i.AvailableAmount.GreaterThanOrEqual(amount)
}

func (i ProviderIntent) AcceptsFee(feeBps uint32) bool {
	return feeBps >= i.MinFeeBps && feeBps <= i.MaxFeeBps
}

func (i ProviderIntent) CommitmentWindow() time.Duration {
	return time.Duration(i.CommitmentWindowSeconds) * time.Second
}
