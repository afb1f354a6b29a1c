// Package orchestrator runs the matching loop for one order: rank the
// eligible providers once, then offer the order to each in turn until one
// settles it or the candidates run out.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/lifecycle"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/matching"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/reputation"
)

type Outcome string

const (
	OutcomeSettled              Outcome = "SETTLED"
	OutcomeNoProvidersAvailable Outcome = "NO_PROVIDERS_AVAILABLE"
	OutcomeExpired              Outcome = "EXPIRED"
)

const ReasonAborted = "matching aborted"

type Orchestrator struct {
	Repo      repository.Repository
	Lifecycle *lifecycle.Manager
	Ledger    reputation.Ledger
	Clock     clock.Clock
	Logger    *zap.Logger

	DefaultFeeBps uint32
	// MaxAttempts bounds how often one storage step is tried before the run
	// fails with MatchingFailed.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// ExecutionGrace is how long past order expiry a run waits on an
	// accepted proposal before leaving it to the sweeper.
	ExecutionGrace time.Duration
}

// MatchOrder offers the order to ranked candidates until one executes it.
// When every candidate declines the order stays PENDING for a later run.
func (o *Orchestrator) MatchOrder(ctx context.Context, orderID string) (Outcome, error) {
	log := logger.OrNop(o.Logger).With(zap.String("order_id", orderID))

	var order *models.Order
	err := o.retry(ctx, "load order", func() error {
		var err error
		order, err = o.Repo.LoadOrder(ctx, orderID)
		return apperr.FromRepository(err, apperr.CodeOrderNotFound, "load order %s", orderID)
	})
	if err != nil {
		return "", err
	}
	now := o.clock().Now()
	switch {
	case order.Status == models.OrderAccepted:
		return "", apperr.AlreadyDecided("order %s is already being settled", orderID)
	case order.Status != models.OrderPending, order.PastExpiry(now):
		return OutcomeExpired, nil
	}

	fee := matching.ProspectiveFee(*order, o.DefaultFeeBps)
	var candidates []matching.Candidate
	err = o.retry(ctx, "snapshot", func() error {
		var err error
		candidates, err = o.snapshot(ctx, *order, fee, now)
		return err
	})
	if err != nil {
		return "", err
	}
	log.Debug("matching candidates", zap.Int("count", len(candidates)), zap.Uint32("fee_bps", fee))

	for _, c := range candidates {
		provider := c.Intent.Provider
		var p *models.Proposal
		err := o.retry(ctx, "issue", func() error {
			var err error
			p, err = o.Lifecycle.Issue(ctx, orderID, provider, fee)
			return err
		})
		switch {
		case apperr.IsCode(err, apperr.CodeCapacityExhausted), apperr.IsCode(err, apperr.CodeFeeOutOfRange):
			log.Debug("candidate skipped", zap.String("provider", provider), zap.Error(err))
			continue
		case apperr.IsKind(err, apperr.KindExpiry):
			return OutcomeExpired, nil
		case err != nil:
			return "", err
		}

		status, err := o.await(ctx, *p, order.ExpiresAt.Add(o.ExecutionGrace))
		if err != nil {
			return "", err
		}
		if status == models.ProposalAccepted {
			log.Warn("accepted proposal outlived the execution window, left to the sweeper",
				zap.String("proposal_id", p.ProposalID),
				zap.String("provider", provider),
			)
			return OutcomeExpired, nil
		}
		log.Info("proposal resolved",
			zap.String("proposal_id", p.ProposalID),
			zap.String("provider", provider),
			zap.String("status", string(status)),
		)
		if status == models.ProposalExecuted {
			return OutcomeSettled, nil
		}
	}
	return OutcomeNoProvidersAvailable, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, order models.Order, fee uint32, now time.Time) ([]matching.Candidate, error) {
	intents, err := o.Repo.LoadActiveIntents(ctx, order.Currency)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeIntentNotFound, "load intents for %s", order.Currency)
	}
	eligible := matching.Eligible(order, fee, intents, now)
	if len(eligible) == 0 {
		return nil, nil
	}
	providers := make([]string, 0, len(eligible))
	for _, it := range eligible {
		providers = append(providers, it.Provider)
	}
	reps, err := o.Repo.ListReputations(ctx, repository.ListReputationsParams{Providers: providers, Limit: 500})
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeProviderNotFound, "load reputations")
	}
	committed, err := o.Repo.CountActiveProposalsByProvider(ctx, providers)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeProviderNotFound, "count committed proposals")
	}
	return matching.Rank(eligible, fee, matching.Scores{
		Reliability: o.Ledger.ReliabilityByProvider(reps),
		Committed:   committed,
		ColdStart:   o.Ledger.ColdStartScore,
	}), nil
}

// await blocks until the proposal reaches a terminal status. The deadline
// timer routes an unanswered proposal through Timeout. An accepted proposal
// is waited on until settleBy, then reported as still ACCEPTED. Cancellation
// of ctx withdraws a still-pending proposal.
func (o *Orchestrator) await(ctx context.Context, p models.Proposal, settleBy time.Time) (models.ProposalStatus, error) {
	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	updates := o.Lifecycle.Wait(waitCtx, p.ProposalID)

	// A transition may have committed before Wait registered.
	var current *models.Proposal
	err := o.retry(ctx, "reload proposal", func() error {
		var err error
		current, err = o.Repo.GetProposal(ctx, p.ProposalID)
		return apperr.FromRepository(err, apperr.CodeProposalNotFound, "load proposal %s", p.ProposalID)
	})
	if err != nil {
		if ctx.Err() != nil {
			o.abort(ctx, p)
		}
		return "", err
	}
	if current.Status.Terminal() {
		return current.Status, nil
	}

	var deadline, settle <-chan time.Time
	armSettle := func() {
		deadline = nil
		if settle == nil {
			settle = o.clock().After(settleBy.Sub(o.clock().Now()))
		}
	}
	switch current.Status {
	case models.ProposalPending:
		deadline = o.clock().After(current.Deadline.Sub(o.clock().Now()))
	case models.ProposalAccepted:
		armSettle()
	}
	for {
		select {
		case upd, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if upd.Status.Terminal() {
				return upd.Status, nil
			}
			if upd.Status == models.ProposalAccepted {
				armSettle()
			}
		case <-settle:
			cur, err := o.Repo.GetProposal(ctx, p.ProposalID)
			if err != nil {
				return "", apperr.FromRepository(err, apperr.CodeProposalNotFound, "load proposal %s", p.ProposalID)
			}
			return cur.Status, nil
		case <-deadline:
			deadline = nil
			var timedOut *models.Proposal
			err := o.retry(ctx, "timeout", func() error {
				var err error
				timedOut, err = o.Lifecycle.Timeout(ctx, p.ProposalID)
				return err
			})
			if err == nil {
				return timedOut.Status, nil
			}
			if !apperr.IsCode(err, apperr.CodeAlreadyDecided) {
				return "", err
			}
			cur, err := o.Repo.GetProposal(ctx, p.ProposalID)
			if err != nil {
				return "", apperr.FromRepository(err, apperr.CodeProposalNotFound, "load proposal %s", p.ProposalID)
			}
			switch {
			case cur.Status.Terminal():
				return cur.Status, nil
			case cur.Status == models.ProposalAccepted:
				armSettle()
			case cur.Status == models.ProposalPending:
				deadline = o.clock().After(cur.Deadline.Sub(o.clock().Now()))
			}
		case <-ctx.Done():
			o.abort(ctx, p)
			return "", ctx.Err()
		}
	}
}

func (o *Orchestrator) abort(ctx context.Context, p models.Proposal) {
	_, err := o.Lifecycle.Cancel(context.WithoutCancel(ctx), p.ProposalID, ReasonAborted)
	if err != nil && !apperr.IsCode(err, apperr.CodeAlreadyDecided) {
		logger.OrNop(o.Logger).Warn("cancel on abort failed",
			zap.String("proposal_id", p.ProposalID),
			zap.Error(err),
		)
	}
}

// retry re-runs fn while it fails with a retryable storage error, backing
// off exponentially between attempts.
func (o *Orchestrator) retry(ctx context.Context, op string, fn func() error) error {
	attempts := o.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := o.BaseBackoff
	var last error
	for i := 0; i < attempts; i++ {
		err := fn()
		if !apperr.Retryable(err) {
			return err
		}
		last = err
		if i == attempts-1 {
			break
		}
		logger.OrNop(o.Logger).Warn("storage unavailable, retrying",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.clock().After(backoff):
		}
		backoff *= 2
		if o.MaxBackoff > 0 && backoff > o.MaxBackoff {
			backoff = o.MaxBackoff
		}
	}
	return apperr.MatchingFailed(last, "%s failed after %d attempts", op, attempts)
}

func (o *Orchestrator) clock() clock.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clock.System{}
}
