// Package sweeper drives time-based transitions the parties never made
// themselves: overdue proposals, stalled executions and expired orders.
package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/lifecycle"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

const ReasonExecutionWindow = "execution window elapsed"

type Kind string

const (
	KindProposalTimedOut Kind = "proposal_timed_out"
	KindExecutionFailed  Kind = "execution_failed"
	KindOrderExpired     Kind = "order_expired"
)

type Transition struct {
	Kind     Kind   `json:"kind"`
	EntityID string `json:"entity_id"`
	OrderID  string `json:"order_id"`
}

type Sweeper struct {
	Repo      repository.Repository
	Lifecycle *lifecycle.Manager
	Clock     clock.Clock
	Logger    *zap.Logger

	// ExecutionGrace is how long past order expiry an accepted proposal may
	// stay unexecuted.
	ExecutionGrace time.Duration
	BatchSize      int
}

// Sweep runs one pass. Entities moved by a racing transition are skipped;
// storage failures do not stop the pass and are returned joined at the end.
func (s *Sweeper) Sweep(ctx context.Context) ([]Transition, error) {
	if s == nil || s.Repo == nil || s.Lifecycle == nil {
		return nil, nil
	}
	log := logger.OrNop(s.Logger)
	clk := s.Clock
	if clk == nil {
		clk = clock.System{}
	}
	now := clk.Now()
	var (
		out  []Transition
		errs []error
	)

	pending, err := s.Repo.ListPendingProposalsBefore(ctx, now, s.BatchSize)
	if err != nil {
		errs = append(errs, apperr.FromRepository(err, apperr.CodeProposalNotFound, "list overdue proposals"))
	}
	for _, p := range pending {
		_, err := s.Lifecycle.Timeout(ctx, p.ProposalID)
		if s.skip(log, err, "proposal", p.ProposalID) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, Transition{Kind: KindProposalTimedOut, EntityID: p.ProposalID, OrderID: p.OrderID})
	}

	accepted, err := s.Repo.ListAcceptedProposals(ctx, s.BatchSize)
	if err != nil {
		errs = append(errs, apperr.FromRepository(err, apperr.CodeProposalNotFound, "list accepted proposals"))
	}
	for _, p := range accepted {
		order, err := s.Repo.LoadOrder(ctx, p.OrderID)
		if err != nil {
			errs = append(errs, apperr.FromRepository(err, apperr.CodeOrderNotFound, "load order %s", p.OrderID))
			continue
		}
		if !now.After(order.ExpiresAt.Add(s.ExecutionGrace)) {
			continue
		}
		_, err = s.Lifecycle.FailExecution(ctx, p.ProposalID, ReasonExecutionWindow)
		if s.skip(log, err, "proposal", p.ProposalID) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, Transition{Kind: KindExecutionFailed, EntityID: p.ProposalID, OrderID: p.OrderID})
	}

	orders, err := s.Repo.ListExpirableOrders(ctx, now, s.BatchSize)
	if err != nil {
		errs = append(errs, apperr.FromRepository(err, apperr.CodeOrderNotFound, "list expirable orders"))
	}
	for _, o := range orders {
		_, err := s.Lifecycle.ExpireOrder(ctx, o.OrderID)
		if s.skip(log, err, "order", o.OrderID) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, Transition{Kind: KindOrderExpired, EntityID: o.OrderID, OrderID: o.OrderID})
	}

	if len(out) > 0 {
		log.Info("sweep pass", zap.Int("transitions", len(out)))
	}
	return out, errors.Join(errs...)
}

func (s *Sweeper) skip(log *zap.Logger, err error, entity, id string) bool {
	if apperr.IsCode(err, apperr.CodeAlreadyDecided) || apperr.IsKind(err, apperr.KindExpiry) || apperr.IsCode(err, apperr.CodeInvalidTransition) {
		log.Debug("sweep skipped", zap.String("entity", entity), zap.String("id", id), zap.Error(err))
		return true
	}
	return false
}
