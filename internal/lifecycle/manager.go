// Package lifecycle owns every proposal and order state transition. Each
// transition runs under a per-order lock, re-reads current state, and
// commits proposal, order, capacity, reputation and outbox rows in one
// Repository.Persist call.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/events"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/reputation"
)

type Manager struct {
	repo      repository.Repository
	clock     clock.Clock
	ledger    reputation.Ledger
	publisher events.Publisher
	logger    *zap.Logger

	locks keyedMutex

	waitMu  sync.Mutex
	waiters map[string]map[chan models.Proposal]struct{}
}

func New(repo repository.Repository, clk clock.Clock, ledger reputation.Ledger, publisher events.Publisher, log *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{
		repo:      repo,
		clock:     clk,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger.OrNop(log),
		waiters:   map[string]map[chan models.Proposal]struct{}{},
	}
}

func (m *Manager) Clock() clock.Clock {
	return m.clock
}

// Issue reserves the order amount against the provider's intent and opens a
// PENDING proposal that expires after the intent's commitment window. The
// reservation and the proposal commit in the same Persist.
func (m *Manager) Issue(ctx context.Context, orderID, provider string, feeBps uint32) (*models.Proposal, error) {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	now := m.clock.Now()
	order, err := m.repo.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "load order %s", orderID)
	}
	if order.Status != models.OrderPending || order.PastExpiry(now) {
		return nil, apperr.Expired("order %s is %s and cannot take proposals", orderID, order.Status)
	}
	intent, err := m.repo.GetIntent(ctx, provider, order.Currency)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeIntentNotFound, "load intent %s/%s", provider, order.Currency)
	}
	if !intent.AcceptsFee(feeBps) {
		return nil, apperr.FeeOutOfRange(feeBps, intent.MinFeeBps, intent.MaxFeeBps)
	}
	if !intent.IsValid(now) {
		return nil, apperr.CapacityExhausted("intent %s is not accepting orders", intent.Key())
	}
	existing, err := m.repo.ListProposalsByOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "list proposals of %s", orderID)
	}
	for _, p := range existing {
		if p.Status.Active() {
			return nil, apperr.AlreadyDecided("order %s already has %s proposal %s", orderID, p.Status, p.ProposalID)
		}
	}

	if intent.AvailableAmount.LessThan(order.Amount) {
		return nil, apperr.CapacityExhausted("intent %s cannot cover %s", intent.Key(), order.Amount)
	}

	p := models.Proposal{
		ProposalID:     uuid.NewString(),
		OrderID:        orderID,
		Provider:       provider,
		Currency:       order.Currency,
		Amount:         order.Amount,
		ProposedFeeBps: feeBps,
		Status:         models.ProposalPending,
		CreatedAt:      now,
		Deadline:       now.Add(intent.CommitmentWindow()),
		UpdatedAt:      now,
	}
	cs := repository.Changeset{
		Proposal: &p,
		Capacity: &repository.CapacityChange{Key: p.IntentKey(), Amount: p.Amount, Move: repository.CapacityReserve},
		Events: []models.DomainEvent{
			events.New(models.EventProposalIssued, p.ProposalID, orderID, provider, string(p.Status), map[string]any{
				"amount":   p.Amount.String(),
				"fee_bps":  feeBps,
				"deadline": p.Deadline,
			}, now),
		},
	}
	if err := m.repo.Persist(ctx, cs); err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "persist proposal for %s", orderID)
	}
	m.committed(ctx, &p, cs.Events)
	return &p, nil
}

// Accept moves a PENDING proposal and its order to ACCEPTED. A proposal
// whose deadline has passed can only be timed out. If the order itself has
// expired the proposal is cancelled without penalty.
func (m *Manager) Accept(ctx context.Context, proposalID string) (*models.Proposal, error) {
	return m.transition(ctx, proposalID, func(now time.Time, p models.Proposal, order models.Order) (repository.Changeset, error) {
		if p.Status != models.ProposalPending {
			return repository.Changeset{}, decided(p)
		}
		if p.PastDeadline(now) {
			return repository.Changeset{}, apperr.Expired("proposal %s passed its deadline %s", p.ProposalID, p.Deadline.Format(time.RFC3339))
		}
		if order.Status != models.OrderPending {
			return repository.Changeset{}, apperr.AlreadyDecided("order %s is %s", order.OrderID, order.Status)
		}
		if order.PastExpiry(now) {
			return repository.Changeset{}, errOrderExpired
		}
		p.Status = models.ProposalAccepted
		p.AcceptedAt = &now
		p.UpdatedAt = now
		order.Status = models.OrderAccepted
		order.UpdatedAt = now
		return repository.Changeset{
			Proposal:       &p,
			ExpectProposal: models.ProposalPending,
			Order:          &order,
			ExpectOrder:    models.OrderPending,
			Events: []models.DomainEvent{
				events.New(models.EventProposalAccepted, p.ProposalID, p.OrderID, p.Provider, string(p.Status), nil, now),
			},
		}, nil
	})
}

var errOrderExpired = errors.New("order expired")

func (m *Manager) Reject(ctx context.Context, proposalID string) (*models.Proposal, error) {
	return m.transition(ctx, proposalID, func(now time.Time, p models.Proposal, _ models.Order) (repository.Changeset, error) {
		if p.Status != models.ProposalPending {
			return repository.Changeset{}, decided(p)
		}
		p.Status = models.ProposalRejected
		p.UpdatedAt = now
		return repository.Changeset{
			Proposal:       &p,
			ExpectProposal: models.ProposalPending,
			Capacity:       release(p),
			Events: []models.DomainEvent{
				events.New(models.EventProposalRejected, p.ProposalID, p.OrderID, p.Provider, string(p.Status), nil, now),
			},
		}, nil
	})
}

// Timeout closes a PENDING proposal whose deadline has passed and records a
// no-show against the provider.
func (m *Manager) Timeout(ctx context.Context, proposalID string) (*models.Proposal, error) {
	return m.transition(ctx, proposalID, func(now time.Time, p models.Proposal, _ models.Order) (repository.Changeset, error) {
		if p.Status != models.ProposalPending {
			return repository.Changeset{}, decided(p)
		}
		if !p.PastDeadline(now) {
			return repository.Changeset{}, apperr.AlreadyDecided("proposal %s is not due until %s", p.ProposalID, p.Deadline.Format(time.RFC3339))
		}
		p.Status = models.ProposalTimedOut
		p.UpdatedAt = now
		update := m.ledger.NoShow(p.Provider, now)
		return repository.Changeset{
			Proposal:       &p,
			ExpectProposal: models.ProposalPending,
			Capacity:       release(p),
			Reputation:     &update,
			Events: []models.DomainEvent{
				events.New(models.EventProposalTimedOut, p.ProposalID, p.OrderID, p.Provider, string(p.Status), nil, now),
				reputationEvent(p, update),
			},
		}, nil
	})
}

// Execute settles an ACCEPTED proposal: the reserved capacity is consumed,
// the order becomes FULFILLED and the provider is credited with a success.
func (m *Manager) Execute(ctx context.Context, proposalID, settlementRef string) (*models.Proposal, error) {
	settlementRef = strings.TrimSpace(settlementRef)
	if settlementRef == "" {
		return nil, apperr.Validation(apperr.CodeInvalidProof, "settlement reference is required")
	}
	return m.transition(ctx, proposalID, func(now time.Time, p models.Proposal, order models.Order) (repository.Changeset, error) {
		if err := requireAccepted(p); err != nil {
			return repository.Changeset{}, err
		}
		p.Status = models.ProposalExecuted
		p.ExecutedAt = &now
		p.SettlementRef = settlementRef
		p.UpdatedAt = now
		order.Status = models.OrderFulfilled
		order.UpdatedAt = now

		var seconds uint64
		if elapsed := now.Sub(order.CreatedAt); elapsed > 0 {
			seconds = uint64(elapsed / time.Second)
		}
		update := m.ledger.Success(p.Provider, seconds, order.Amount, now)
		return repository.Changeset{
			Proposal:       &p,
			ExpectProposal: models.ProposalAccepted,
			Order:          &order,
			ExpectOrder:    models.OrderAccepted,
			Capacity:       consume(p),
			Reputation:     &update,
			Events: []models.DomainEvent{
				events.New(models.EventOrderSettled, order.OrderID, order.OrderID, p.Provider, string(order.Status), map[string]any{
					"proposal_id":    p.ProposalID,
					"settlement_ref": settlementRef,
					"amount":         order.Amount.String(),
				}, now),
				reputationEvent(p, update),
			},
		}, nil
	})
}

// FailExecution closes an ACCEPTED proposal that could not settle. The order
// goes back to PENDING so it can be matched again.
func (m *Manager) FailExecution(ctx context.Context, proposalID, reason string) (*models.Proposal, error) {
	reason = strings.TrimSpace(reason)
	return m.transition(ctx, proposalID, func(now time.Time, p models.Proposal, order models.Order) (repository.Changeset, error) {
		if err := requireAccepted(p); err != nil {
			return repository.Changeset{}, err
		}
		p.Status = models.ProposalFailedExecution
		p.FailureReason = reason
		p.UpdatedAt = now
		order.Status = models.OrderPending
		order.UpdatedAt = now
		update := m.ledger.Failure(p.Provider, now)
		return repository.Changeset{
			Proposal:       &p,
			ExpectProposal: models.ProposalAccepted,
			Order:          &order,
			ExpectOrder:    models.OrderAccepted,
			Capacity:       release(p),
			Reputation:     &update,
			Events: []models.DomainEvent{
				events.New(models.EventExecutionFailed, p.ProposalID, p.OrderID, p.Provider, string(p.Status), map[string]any{"reason": reason}, now),
				reputationEvent(p, update),
			},
		}, nil
	})
}

// Cancel withdraws a PENDING proposal without touching the provider's
// reputation.
func (m *Manager) Cancel(ctx context.Context, proposalID, reason string) (*models.Proposal, error) {
	reason = strings.TrimSpace(reason)
	return m.transition(ctx, proposalID, func(now time.Time, p models.Proposal, _ models.Order) (repository.Changeset, error) {
		if p.Status != models.ProposalPending {
			return repository.Changeset{}, decided(p)
		}
		return cancelChangeset(now, p, reason), nil
	})
}

func cancelChangeset(now time.Time, p models.Proposal, reason string) repository.Changeset {
	p.Status = models.ProposalCancelled
	p.FailureReason = reason
	p.UpdatedAt = now
	return repository.Changeset{
		Proposal:       &p,
		ExpectProposal: models.ProposalPending,
		Capacity:       release(p),
		Events: []models.DomainEvent{
			events.New(models.EventProposalCancelled, p.ProposalID, p.OrderID, p.Provider, string(p.Status), map[string]any{"reason": reason}, now),
		},
	}
}

// ExpireOrder marks an open order past its expiry as EXPIRED. It refuses
// while a proposal is still active; the refund itself happens on-chain.
func (m *Manager) ExpireOrder(ctx context.Context, orderID string) (*models.Order, error) {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	now := m.clock.Now()
	order, err := m.repo.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "load order %s", orderID)
	}
	if !order.Status.Open() {
		return nil, apperr.AlreadyDecided("order %s is already %s", orderID, order.Status)
	}
	if !order.PastExpiry(now) {
		return nil, apperr.Validation(apperr.CodeInvalidTransition, "order %s does not expire until %s", orderID, order.ExpiresAt.Format(time.RFC3339))
	}
	proposals, err := m.repo.ListProposalsByOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "list proposals of %s", orderID)
	}
	for _, p := range proposals {
		if p.Status.Active() {
			return nil, apperr.AlreadyDecided("order %s still has %s proposal %s", orderID, p.Status, p.ProposalID)
		}
	}

	prev := order.Status
	expired := *order
	expired.Status = models.OrderExpired
	expired.UpdatedAt = now
	cs := repository.Changeset{
		Order:                   &expired,
		ExpectOrder:             prev,
		RequireNoActiveProposal: true,
		Events: []models.DomainEvent{
			events.New(models.EventOrderExpired, orderID, orderID, "", string(expired.Status), map[string]any{
				"refund_required": true,
				"refund_address":  expired.RefundAddress,
				"amount":          expired.Amount.String(),
				"previous_status": prev,
			}, now),
		},
	}
	if err := m.repo.Persist(ctx, cs); err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "expire order %s", orderID)
	}
	m.committed(ctx, nil, cs.Events)
	return &expired, nil
}

// MarkRefunded records the on-chain refund of an EXPIRED order.
func (m *Manager) MarkRefunded(ctx context.Context, orderID, refundTx string) (*models.Order, error) {
	refundTx = strings.TrimSpace(refundTx)
	if refundTx == "" {
		return nil, apperr.Validation(apperr.CodeInvalidTransition, "refund transaction hash is required")
	}
	unlock := m.locks.Lock(orderID)
	defer unlock()

	now := m.clock.Now()
	order, err := m.repo.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "load order %s", orderID)
	}
	switch order.Status {
	case models.OrderExpired:
	case models.OrderRefunded:
		return nil, apperr.AlreadyDecided("order %s is already refunded", orderID)
	default:
		return nil, apperr.Validation(apperr.CodeInvalidTransition, "order %s is %s, only EXPIRED orders are refunded", orderID, order.Status)
	}

	refunded := *order
	refunded.Status = models.OrderRefunded
	refunded.RefundTxHash = refundTx
	refunded.UpdatedAt = now
	cs := repository.Changeset{
		Order:       &refunded,
		ExpectOrder: models.OrderExpired,
		Events: []models.DomainEvent{
			events.New(models.EventOrderRefunded, orderID, orderID, "", string(refunded.Status), map[string]any{"refund_tx_hash": refundTx}, now),
		},
	}
	if err := m.repo.Persist(ctx, cs); err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "refund order %s", orderID)
	}
	m.committed(ctx, nil, cs.Events)
	return &refunded, nil
}

type transitionFunc func(now time.Time, p models.Proposal, order models.Order) (repository.Changeset, error)

func (m *Manager) transition(ctx context.Context, proposalID string, fn transitionFunc) (*models.Proposal, error) {
	p, err := m.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeProposalNotFound, "load proposal %s", proposalID)
	}
	unlock := m.locks.Lock(p.OrderID)
	defer unlock()

	// Re-read under the lock; the first read only located the order.
	p, err = m.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeProposalNotFound, "load proposal %s", proposalID)
	}
	order, err := m.repo.LoadOrder(ctx, p.OrderID)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "load order %s", p.OrderID)
	}

	now := m.clock.Now()
	cs, err := fn(now, *p, *order)
	if errors.Is(err, errOrderExpired) {
		cs = cancelChangeset(now, *p, "order expired")
		err = apperr.Expired("order %s expired at %s", order.OrderID, order.ExpiresAt.Format(time.RFC3339))
	}
	if cs.Empty() {
		return nil, err
	}
	if perr := m.repo.Persist(ctx, cs); perr != nil {
		return nil, apperr.FromRepository(perr, apperr.CodeProposalNotFound, "persist proposal %s", proposalID)
	}
	m.committed(ctx, cs.Proposal, cs.Events)
	if err != nil {
		return nil, err
	}
	return cs.Proposal, nil
}

// Wait delivers every committed transition of the proposal until ctx ends,
// then closes the channel.
func (m *Manager) Wait(ctx context.Context, proposalID string) <-chan models.Proposal {
	ch := make(chan models.Proposal, 8)
	m.waitMu.Lock()
	set, ok := m.waiters[proposalID]
	if !ok {
		set = map[chan models.Proposal]struct{}{}
		m.waiters[proposalID] = set
	}
	set[ch] = struct{}{}
	m.waitMu.Unlock()

	go func() {
		<-ctx.Done()
		m.waitMu.Lock()
		delete(m.waiters[proposalID], ch)
		if len(m.waiters[proposalID]) == 0 {
			delete(m.waiters, proposalID)
		}
		close(ch)
		m.waitMu.Unlock()
	}()
	return ch
}

func (m *Manager) committed(ctx context.Context, p *models.Proposal, items []models.DomainEvent) {
	if p != nil {
		m.waitMu.Lock()
		for ch := range m.waiters[p.ProposalID] {
			select {
			case ch <- *p:
			default:
				m.logger.Warn("proposal waiter is full", zap.String("proposal_id", p.ProposalID))
			}
		}
		m.waitMu.Unlock()
	}
	events.PublishAll(context.WithoutCancel(ctx), m.publisher, m.logger, items)
}

func decided(p models.Proposal) error {
	return apperr.AlreadyDecided("proposal %s is already %s", p.ProposalID, p.Status)
}

func requireAccepted(p models.Proposal) error {
	switch {
	case p.Status == models.ProposalAccepted:
		return nil
	case p.Status == models.ProposalPending:
		return apperr.Validation(apperr.CodeInvalidTransition, "proposal %s has not been accepted", p.ProposalID)
	default:
		return decided(p)
	}
}

func release(p models.Proposal) *repository.CapacityChange {
	return &repository.CapacityChange{Key: p.IntentKey(), Amount: p.Amount, Move: repository.CapacityRelease}
}

func consume(p models.Proposal) *repository.CapacityChange {
	return &repository.CapacityChange{Key: p.IntentKey(), Amount: p.Amount, Move: repository.CapacityConsume}
}

func reputationEvent(p models.Proposal, u reputation.Update) models.DomainEvent {
	return events.New(models.EventReputationUpdated, p.Provider, p.OrderID, p.Provider, string(u.Outcome), u, u.At)
}
