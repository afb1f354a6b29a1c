package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/lifecycle"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

// proofClockSkew tolerates provider clocks running slightly ahead.
const proofClockSkew = time.Minute

// PaymentProof is what a provider submits after paying out fiat.
type PaymentProof struct {
	ProposalID           string    `json:"proposal_id"`
	TransactionReference string    `json:"transaction_reference"`
	Amount               string    `json:"amount"`
	Currency             string    `json:"currency"`
	Timestamp            time.Time `json:"timestamp"`
}

// ProposalService is the provider-facing side of the lifecycle. A non-empty
// provider argument must own the proposal; empty skips the check (auth off).
type ProposalService struct {
	Repo        repository.Repository
	Lifecycle   *lifecycle.Manager
	Clock       clock.Clock
	ProofMaxAge time.Duration
	Logger      *zap.Logger
}

func (s *ProposalService) Get(ctx context.Context, proposalID string) (*models.Proposal, error) {
	p, err := s.Repo.GetProposal(ctx, strings.TrimSpace(proposalID))
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeProposalNotFound, "proposal %s", proposalID)
	}
	return p, nil
}

func (s *ProposalService) Accept(ctx context.Context, proposalID, provider string) (*models.Proposal, error) {
	if _, err := s.owned(ctx, proposalID, provider); err != nil {
		return nil, err
	}
	return s.Lifecycle.Accept(ctx, proposalID)
}

func (s *ProposalService) Reject(ctx context.Context, proposalID, provider string) (*models.Proposal, error) {
	if _, err := s.owned(ctx, proposalID, provider); err != nil {
		return nil, err
	}
	return s.Lifecycle.Reject(ctx, proposalID)
}

func (s *ProposalService) Fail(ctx context.Context, proposalID, provider, reason string) (*models.Proposal, error) {
	if _, err := s.owned(ctx, proposalID, provider); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "reported by provider"
	}
	return s.Lifecycle.FailExecution(ctx, proposalID, reason)
}

// Execute validates the payment proof and settles the proposal with the
// proof's transaction reference.
func (s *ProposalService) Execute(ctx context.Context, proposalID, provider string, proof PaymentProof) (*models.Proposal, error) {
	p, err := s.owned(ctx, proposalID, provider)
	if err != nil {
		return nil, err
	}
	if err := s.checkProof(*p, proof); err != nil {
		logger.OrNop(s.Logger).Info("payment proof rejected",
			zap.String("proposal_id", proposalID),
			zap.String("provider", p.Provider),
			zap.Error(err),
		)
		return nil, err
	}
	return s.Lifecycle.Execute(ctx, proposalID, proof.TransactionReference)
}

func (s *ProposalService) checkProof(p models.Proposal, proof PaymentProof) error {
	if strings.TrimSpace(proof.ProposalID) != p.ProposalID {
		return apperr.Validation(apperr.CodeInvalidProof, "proof names proposal %q, not %s", proof.ProposalID, p.ProposalID)
	}
	if strings.TrimSpace(proof.TransactionReference) == "" {
		return apperr.Validation(apperr.CodeInvalidProof, "proof has no transaction reference")
	}
	if proof.Timestamp.IsZero() {
		return apperr.Validation(apperr.CodeInvalidProof, "proof has no timestamp")
	}
	now := nowFrom(s.Clock)
	maxAge := s.ProofMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if now.Sub(proof.Timestamp) > maxAge {
		return apperr.Validation(apperr.CodeInvalidProof, "proof is older than %s", maxAge)
	}
	if proof.Timestamp.Sub(now) > proofClockSkew {
		return apperr.Validation(apperr.CodeInvalidProof, "proof timestamp is in the future")
	}
	if raw := strings.TrimSpace(proof.Amount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.Equal(p.Amount) {
			return apperr.Validation(apperr.CodeInvalidProof, "proof amount %q does not match %s", raw, p.Amount)
		}
	}
	if c := strings.TrimSpace(proof.Currency); c != "" && !strings.EqualFold(c, p.Currency) {
		return apperr.Validation(apperr.CodeInvalidProof, "proof currency %s does not match %s", c, p.Currency)
	}
	return nil
}

// owned hides proposals of other providers behind PROPOSAL_NOT_FOUND.
func (s *ProposalService) owned(ctx context.Context, proposalID, provider string) (*models.Proposal, error) {
	p, err := s.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "" && p.Provider != provider {
		return nil, apperr.NotFound(apperr.CodeProposalNotFound, "proposal %s", proposalID)
	}
	return p, nil
}
