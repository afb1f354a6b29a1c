package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an on-chain off-ramp request. OrderID is the bytes32 id emitted by
// the gateway contract, hex encoded with a 0x prefix.
type Order struct {
	OrderID     string `gorm:"type:varchar(66);primaryKey" json:"order_id"`
	UserAddress string `gorm:"type:varchar(42);index" json:"user_address"`
	Token       string `gorm:"type:varchar(42)" json:"token"`

	Amount   decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"amount"`
	Currency string          `gorm:"type:varchar(10);not null;index" json:"currency"`
	Tier     Tier            `gorm:"type:varchar(10);not null" json:"tier"`

	IntegratorAddress string `gorm:"type:varchar(42)" json:"integrator_address"`
	IntegratorFeeBps  uint32 `gorm:"not null" json:"integrator_fee_bps"`
	RefundAddress     string `gorm:"type:varchar(42);not null" json:"refund_address"`

	BlockNumber  uint64 `json:"block_number"`
	TxHash       string `gorm:"type:varchar(66)" json:"tx_hash"`
	RefundTxHash string `gorm:"type:varchar(66)" json:"refund_tx_hash,omitempty"`

	Status OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;autoCreateTime:false;index" json:"created_at"`
	ExpiresAt time.Time `gorm:"type:timestamptz;not null;index" json:"expires_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;autoUpdateTime:false" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// PastExpiry reports whether now is after the order's expiry deadline.
func (o Order) PastExpiry(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
