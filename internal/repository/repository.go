package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/reputation"
)

var (
	ErrNotFound  = errors.New("repository: not found")
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrConflict is a failed compare-and-set: the row was not in the
	// expected prior state.
	ErrConflict = errors.New("repository: conflict")
	// ErrInsufficientCapacity is a reserve move the intent cannot cover.
	ErrInsufficientCapacity = errors.New("repository: insufficient capacity")
	// ErrStorageUnavailable wraps driver and connection failures.
	ErrStorageUnavailable = errors.New("repository: storage unavailable")
)

// Repository is the storage port of the settlement engine.
type Repository interface {
	// Matching core.
	LoadActiveIntents(ctx context.Context, currency string) ([]models.ProviderIntent, error)
	LoadOrder(ctx context.Context, orderID string) (*models.Order, error)
	Persist(ctx context.Context, cs Changeset) error
	AtomicallyReserve(ctx context.Context, provider, currency string, amount decimal.Decimal) (bool, error)

	// Orders.
	InsertOrder(ctx context.Context, item *models.Order, events ...models.DomainEvent) error
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
	CountOrders(ctx context.Context, params ListOrdersParams) (int64, error)
	ListExpirableOrders(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	ListOpenOrders(ctx context.Context, limit int) ([]models.Order, error)

	// Intents.
	UpsertIntent(ctx context.Context, item *models.ProviderIntent) error
	GetIntent(ctx context.Context, provider, currency string) (*models.ProviderIntent, error)
	ListIntents(ctx context.Context, params ListIntentsParams) ([]models.ProviderIntent, error)

	// Proposals.
	GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error)
	ListProposalsByOrder(ctx context.Context, orderID string) ([]models.Proposal, error)
	ListPendingProposalsBefore(ctx context.Context, before time.Time, limit int) ([]models.Proposal, error)
	ListAcceptedProposals(ctx context.Context, limit int) ([]models.Proposal, error)
	CountActiveProposalsByProvider(ctx context.Context, providers []string) (map[string]int, error)

	// Reputation.
	GetReputation(ctx context.Context, provider string) (*models.ProviderReputation, error)
	ListReputations(ctx context.Context, params ListReputationsParams) ([]models.ProviderReputation, error)

	// Outbox.
	ListEvents(ctx context.Context, params ListEventsParams) ([]models.DomainEvent, error)

	// System settings.
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)

	Ping(ctx context.Context) error
}

type CapacityMove string

const (
	// CapacityReserve moves available capacity to reserved. It fails with
	// ErrInsufficientCapacity when available cannot cover the amount.
	CapacityReserve CapacityMove = "reserve"
	// CapacityRelease returns reserved capacity to available.
	CapacityRelease CapacityMove = "release"
	// CapacityConsume drops reserved capacity once the order has settled.
	CapacityConsume CapacityMove = "consume"
)

type CapacityChange struct {
	Key    models.IntentKey
	Amount decimal.Decimal
	Move   CapacityMove
}

// Changeset is everything one lifecycle transition writes. Persist applies it
// all or nothing.
//
// Proposal with ExpectProposal == "" is inserted and fails with ErrConflict
// when the order already holds an active proposal. Otherwise the stored
// proposal must be in ExpectProposal. The same compare-and-set applies to
// Order and ExpectOrder. RequireNoActiveProposal additionally fails the
// order update while any proposal of the order is still active.
type Changeset struct {
	Proposal       *models.Proposal
	ExpectProposal models.ProposalStatus

	Order                   *models.Order
	ExpectOrder             models.OrderStatus
	RequireNoActiveProposal bool

	Capacity   *CapacityChange
	Reputation *reputation.Update
	Events     []models.DomainEvent
}

// Empty reports whether the changeset writes nothing.
func (cs Changeset) Empty() bool {
	return cs.Proposal == nil && cs.Order == nil && cs.Capacity == nil && cs.Reputation == nil && len(cs.Events) == 0
}

type ListOrdersParams struct {
	Limit    int
	Offset   int
	Status   *string
	Currency *string
	OrderBy  string
	Asc      *bool
}

type ListIntentsParams struct {
	Limit    int
	Offset   int
	Currency *string
	Provider *string
	Active   *bool
	OrderBy  string
	Asc      *bool
}

type ListReputationsParams struct {
	Limit     int
	Offset    int
	Providers []string
	OrderBy   string
	Asc       *bool
}

type ListEventsParams struct {
	Limit    int
	Offset   int
	Type     *string
	OrderID  *string
	Provider *string
	Since    *time.Time
	Asc      *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
