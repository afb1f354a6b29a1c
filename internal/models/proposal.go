package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Proposal is one provider's offer to settle one order. Amount is the
// capacity reserved against the provider's intent while the proposal is
// active.
type Proposal struct {
	ProposalID string `gorm:"type:varchar(66);primaryKey" json:"proposal_id"`
	OrderID    string `gorm:"type:varchar(66);not null;index" json:"order_id"`
	Provider   string `gorm:"type:varchar(42);not null;index" json:"provider"`
	Currency   string `gorm:"type:varchar(10);not null" json:"currency"`

	Amount         decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"amount"`
	ProposedFeeBps uint32          `gorm:"not null" json:"proposed_fee_bps"`

	Status ProposalStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	CreatedAt  time.Time  `gorm:"type:timestamptz;not null;autoCreateTime:false" json:"created_at"`
	Deadline   time.Time  `gorm:"type:timestamptz;not null;index" json:"deadline"`
	AcceptedAt *time.Time `gorm:"type:timestamptz" json:"accepted_at,omitempty"`
	ExecutedAt *time.Time `gorm:"type:timestamptz" json:"executed_at,omitempty"`

	SettlementRef string `gorm:"type:varchar(128)" json:"settlement_ref,omitempty"`
	FailureReason string `gorm:"type:text" json:"failure_reason,omitempty"`

	UpdatedAt time.Time `gorm:"type:timestamptz;not null;autoUpdateTime:false" json:"updated_at"`
}

func (Proposal) TableName() string {
	return "proposals"
}

func (p Proposal) IntentKey() IntentKey {
	return IntentKey{Provider: p.Provider, Currency: p.Currency}
}

// PastDeadline reports whether a pending proposal can no longer be accepted.
func (p Proposal) PastDeadline(now time.Time) bool {
	return !now.Before(p.Deadline)
}
