package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProviderReputation struct {
	Provider string `gorm:"type:varchar(42);primaryKey" json:"provider"`

	TotalOrders      uint64 `gorm:"not null" json:"total_orders"`
	SuccessfulOrders uint64 `gorm:"not null" json:"successful_orders"`
	FailedOrders     uint64 `gorm:"not null" json:"failed_orders"`
	NoShows          uint64 `gorm:"not null" json:"no_shows"`

	AvgSettlementTimeSeconds uint64          `gorm:"not null" json:"avg_settlement_time_seconds"`
	TotalVolume              decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"total_volume"`

	LastUpdated time.Time `gorm:"type:timestamptz;not null" json:"last_updated"`
}

func (ProviderReputation) TableName() string {
	return "provider_reputations"
}

func NewProviderReputation(provider string, now time.Time) ProviderReputation {
	return ProviderReputation{
		Provider:    provider,
		TotalVolume: decimal.Zero,
		LastUpdated: now,
	}
}
