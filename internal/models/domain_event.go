package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventOrderAdmitted     = "OrderAdmitted"
	EventOrderSettled      = "OrderSettled"
	EventOrderExpired      = "OrderExpired"
	EventOrderRefunded     = "OrderRefunded"
	EventProposalIssued    = "ProposalIssued"
	EventProposalAccepted  = "ProposalAccepted"
	EventProposalRejected  = "ProposalRejected"
	EventProposalTimedOut  = "ProposalTimedOut"
	EventProposalCancelled = "ProposalCancelled"
	EventExecutionFailed   = "ExecutionFailed"
	EventReputationUpdated = "ReputationUpdated"
)

// DomainEvent is an outbox row, written in the same transaction as the state
// change it describes.
type DomainEvent struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Type     string `gorm:"type:varchar(40);not null;index" json:"type"`
	EntityID string `gorm:"type:varchar(66);not null" json:"entity_id"`
	OrderID  string `gorm:"type:varchar(66);index" json:"order_id,omitempty"`
	Provider string `gorm:"type:varchar(42);index" json:"provider,omitempty"`
	Status   string `gorm:"type:varchar(20)" json:"status,omitempty"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;autoCreateTime:false;index" json:"created_at"`
}

func (DomainEvent) TableName() string {
	return "domain_events"
}
