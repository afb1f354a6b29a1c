package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	memoryrepository "github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository/memory"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/reputation"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (r *recorder) Publish(_ context.Context, evt models.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, evt.Type)
	return r.err
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

type fixture struct {
	ctx   context.Context
	repo  *memoryrepository.Store
	clock *clock.Fake
	pub   *recorder
	mgr   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		repo:  memoryrepository.New(),
		clock: clock.NewFake(start),
		pub:   &recorder{},
	}
	f.mgr = New(f.repo, f.clock, reputation.NewLedger(0.5), f.pub, nil)
	f.intent(t, "0xa", 2000)
	f.order(t, "0x01", 1000)
	return f
}

func (f *fixture) intent(t *testing.T, provider string, capacity int64) {
	t.Helper()
	require.NoError(t, f.repo.UpsertIntent(f.ctx, &models.ProviderIntent{
		Provider:                provider,
		Currency:                "NGN",
		AvailableAmount:         decimal.NewFromInt(capacity),
		MinFeeBps:               10,
		MaxFeeBps:               100,
		CommitmentWindowSeconds: 60,
		IsActive:                true,
		RegisteredAt:            start,
		ExpiresAt:               start.Add(24 * time.Hour),
		UpdatedAt:               start,
	}))
}

func (f *fixture) order(t *testing.T, id string, amount int64) {
	t.Helper()
	require.NoError(t, f.repo.InsertOrder(f.ctx, &models.Order{
		OrderID:       id,
		Amount:        decimal.NewFromInt(amount),
		Currency:      "NGN",
		Tier:          models.TierAlpha,
		RefundAddress: "0xrefund",
		Status:        models.OrderPending,
		CreatedAt:     start,
		ExpiresAt:     start.Add(time.Hour),
		UpdatedAt:     start,
	}))
}

func (f *fixture) available(t *testing.T, provider string) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	it, err := f.repo.GetIntent(f.ctx, provider, "NGN")
	require.NoError(t, err)
	return it.AvailableAmount, it.ReservedAmount
}

func (f *fixture) orderStatus(t *testing.T, id string) models.OrderStatus {
	t.Helper()
	o, err := f.repo.LoadOrder(f.ctx, id)
	require.NoError(t, err)
	return o.Status
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestIssue_ReservesCapacity(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPending, p.Status)
	assert.True(t, p.Deadline.Equal(start.Add(time.Minute)))

	avail, reserved := f.available(t, "0xa")
	assert.True(t, avail.Equal(dec(1000)), "available=%s", avail)
	assert.True(t, reserved.Equal(dec(1000)), "reserved=%s", reserved)
	assert.Equal(t, []string{models.EventProposalIssued}, f.pub.seen())

	_, err = f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyDecided), "err=%v", err)
	assert.Equal(t, 0, f.mgr.locks.size())
}

func TestIssue_Rejections(t *testing.T) {
	f := newFixture(t)
	f.intent(t, "0xsmall", 999)
	f.order(t, "0x02", 1000)

	_, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 500)
	assert.True(t, apperr.IsCode(err, apperr.CodeFeeOutOfRange), "err=%v", err)

	_, err = f.mgr.Issue(f.ctx, "0x02", "0xsmall", 50)
	assert.True(t, apperr.IsCode(err, apperr.CodeCapacityExhausted), "err=%v", err)

	_, err = f.mgr.Issue(f.ctx, "0xmissing", "0xa", 50)
	assert.True(t, apperr.IsCode(err, apperr.CodeOrderNotFound), "err=%v", err)

	_, err = f.mgr.Issue(f.ctx, "0x01", "0xnobody", 50)
	assert.True(t, apperr.IsCode(err, apperr.CodeIntentNotFound), "err=%v", err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	assert.True(t, apperr.IsKind(err, apperr.KindExpiry), "err=%v", err)
}

// failingPersist fails every Persist until failures runs out.
type failingPersist struct {
	*memoryrepository.Store
	failures int
}

func (r *failingPersist) Persist(ctx context.Context, cs repository.Changeset) error {
	if r.failures > 0 {
		r.failures--
		return repository.ErrStorageUnavailable
	}
	return r.Store.Persist(ctx, cs)
}

func TestIssue_FailedPersistHoldsNoCapacity(t *testing.T) {
	f := newFixture(t)
	repo := &failingPersist{Store: f.repo, failures: 2}
	mgr := New(repo, f.clock, reputation.NewLedger(0.5), nil, nil)

	for i := 0; i < 2; i++ {
		_, err := mgr.Issue(f.ctx, "0x01", "0xa", 50)
		assert.True(t, apperr.Retryable(err), "err=%v", err)

		avail, reserved := f.available(t, "0xa")
		assert.True(t, avail.Equal(dec(2000)), "available=%s", avail)
		assert.True(t, reserved.IsZero(), "reserved=%s", reserved)
	}
	proposals, err := f.repo.ListProposalsByOrder(f.ctx, "0x01")
	require.NoError(t, err)
	assert.Empty(t, proposals)

	p, err := mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPending, p.Status)
	avail, reserved := f.available(t, "0xa")
	assert.True(t, avail.Equal(dec(1000)), "available=%s", avail)
	assert.True(t, reserved.Equal(dec(1000)), "reserved=%s", reserved)
}

// drainOnPersist takes the intent's capacity just before the proposal lands.
type drainOnPersist struct {
	*memoryrepository.Store
}

func (r drainOnPersist) Persist(ctx context.Context, cs repository.Changeset) error {
	if c := cs.Capacity; c != nil && c.Move == repository.CapacityReserve {
		if _, err := r.Store.AtomicallyReserve(ctx, c.Key.Provider, c.Key.Currency, c.Amount); err != nil {
			return err
		}
	}
	return r.Store.Persist(ctx, cs)
}

func TestIssue_CapacityTakenConcurrently(t *testing.T) {
	f := newFixture(t)
	f.intent(t, "0xb", 1500)
	mgr := New(drainOnPersist{f.repo}, f.clock, reputation.NewLedger(0.5), nil, nil)

	_, err := mgr.Issue(f.ctx, "0x01", "0xb", 50)
	assert.True(t, apperr.IsCode(err, apperr.CodeCapacityExhausted), "err=%v", err)

	proposals, err := f.repo.ListProposalsByOrder(f.ctx, "0x01")
	require.NoError(t, err)
	assert.Empty(t, proposals)
	avail, reserved := f.available(t, "0xb")
	assert.True(t, avail.Equal(dec(500)), "available=%s", avail)
	assert.True(t, reserved.Equal(dec(1000)), "reserved=%s", reserved)
}

func TestAccept_DeadlineBoundary(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	accepted, err := f.mgr.Accept(f.ctx, p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)
	assert.Equal(t, models.OrderAccepted, f.orderStatus(t, "0x01"))

	_, err = f.mgr.Accept(f.ctx, p.ProposalID)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyDecided), "err=%v", err)
}

func TestAccept_AtDeadlineIsExpired(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.mgr.Accept(f.ctx, p.ProposalID)
	assert.True(t, apperr.IsCode(err, apperr.CodeExpired), "err=%v", err)

	got, err := f.repo.GetProposal(f.ctx, p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPending, got.Status)
}

func TestTimeout_RestoresCapacityAndRecordsNoShow(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	_, err = f.mgr.Timeout(f.ctx, p.ProposalID)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyDecided), "early timeout err=%v", err)

	f.clock.Advance(time.Minute)
	timedOut, err := f.mgr.Timeout(f.ctx, p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalTimedOut, timedOut.Status)

	avail, reserved := f.available(t, "0xa")
	assert.True(t, avail.Equal(dec(2000)))
	assert.True(t, reserved.IsZero())

	rec, err := f.repo.GetReputation(f.ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.NoShows)
	assert.Equal(t, uint64(1), rec.TotalOrders)

	for _, op := range []func() error{
		func() error { _, err := f.mgr.Accept(f.ctx, p.ProposalID); return err },
		func() error { _, err := f.mgr.Reject(f.ctx, p.ProposalID); return err },
		func() error { _, err := f.mgr.Timeout(f.ctx, p.ProposalID); return err },
		func() error { _, err := f.mgr.Execute(f.ctx, p.ProposalID, "ref"); return err },
		func() error { _, err := f.mgr.Cancel(f.ctx, p.ProposalID, "x"); return err },
	} {
		assert.True(t, apperr.IsCode(op(), apperr.CodeAlreadyDecided))
	}
	assert.Contains(t, f.pub.seen(), models.EventReputationUpdated)
}

func TestExecute_ConsumesAndCreditsProvider(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	_, err = f.mgr.Execute(f.ctx, p.ProposalID, "bank-ref")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "err=%v", err)

	_, err = f.mgr.Accept(f.ctx, p.ProposalID)
	require.NoError(t, err)

	_, err = f.mgr.Execute(f.ctx, p.ProposalID, "  ")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidProof), "err=%v", err)

	f.clock.Advance(2 * time.Minute)
	executed, err := f.mgr.Execute(f.ctx, p.ProposalID, "bank-ref")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalExecuted, executed.Status)
	assert.Equal(t, "bank-ref", executed.SettlementRef)
	assert.Equal(t, models.OrderFulfilled, f.orderStatus(t, "0x01"))

	avail, reserved := f.available(t, "0xa")
	assert.True(t, avail.Equal(dec(1000)), "available=%s", avail)
	assert.True(t, reserved.IsZero(), "reserved=%s", reserved)

	rec, err := f.repo.GetReputation(f.ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.SuccessfulOrders)
	assert.Equal(t, uint64(120), rec.AvgSettlementTimeSeconds)
	assert.True(t, rec.TotalVolume.Equal(dec(1000)))
}

func TestFailExecution_ReturnsOrderToMatching(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)
	_, err = f.mgr.Accept(f.ctx, p.ProposalID)
	require.NoError(t, err)

	failed, err := f.mgr.FailExecution(f.ctx, p.ProposalID, "bank rejected transfer")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalFailedExecution, failed.Status)
	assert.Equal(t, "bank rejected transfer", failed.FailureReason)
	assert.Equal(t, models.OrderPending, f.orderStatus(t, "0x01"))

	avail, _ := f.available(t, "0xa")
	assert.True(t, avail.Equal(dec(2000)))

	rec, err := f.repo.GetReputation(f.ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.FailedOrders)

	_, err = f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	assert.NoError(t, err)
}

func TestCancel_HasNoReputationEffect(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	cancelled, err := f.mgr.Cancel(f.ctx, p.ProposalID, "matching aborted")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalCancelled, cancelled.Status)

	_, err = f.repo.GetReputation(f.ctx, "0xa")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	avail, _ := f.available(t, "0xa")
	assert.True(t, avail.Equal(dec(2000)))
}

func TestAccept_ExpiredOrderCancelsProposal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpsertIntent(f.ctx, &models.ProviderIntent{
		Provider: "0xslow", Currency: "NGN", AvailableAmount: dec(5000),
		MinFeeBps: 10, MaxFeeBps: 100, CommitmentWindowSeconds: 7200, IsActive: true,
		RegisteredAt: start, ExpiresAt: start.Add(24 * time.Hour), UpdatedAt: start,
	}))
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xslow", 50)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	_, err = f.mgr.Accept(f.ctx, p.ProposalID)
	assert.True(t, apperr.IsCode(err, apperr.CodeExpired), "err=%v", err)

	got, err := f.repo.GetProposal(f.ctx, p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalCancelled, got.Status)
	avail, _ := f.available(t, "0xslow")
	assert.True(t, avail.Equal(dec(5000)))
}

func TestExpireOrderAndRefund(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.ExpireOrder(f.ctx, "0x01")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "err=%v", err)

	f.clock.Advance(time.Hour + time.Second)
	expired, err := f.mgr.ExpireOrder(f.ctx, "0x01")
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, expired.Status)

	_, err = f.mgr.ExpireOrder(f.ctx, "0x01")
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyDecided), "err=%v", err)

	_, err = f.mgr.MarkRefunded(f.ctx, "0x01", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	refunded, err := f.mgr.MarkRefunded(f.ctx, "0x01", "0xrefundtx")
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, refunded.Status)
	assert.Equal(t, "0xrefundtx", refunded.RefundTxHash)

	_, err = f.mgr.MarkRefunded(f.ctx, "0x01", "0xrefundtx")
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyDecided), "err=%v", err)

	assert.Equal(t, []string{models.EventOrderExpired, models.EventOrderRefunded}, f.pub.seen())
}

func TestExpireOrder_WaitsForActiveProposal(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.mgr.ExpireOrder(f.ctx, "0x01")
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyDecided), "err=%v", err)
	assert.Equal(t, models.OrderPending, f.orderStatus(t, "0x01"))
}

func TestWait_DeliversCommittedTransitions(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(f.ctx)
	updates := f.mgr.Wait(ctx, p.ProposalID)

	_, err = f.mgr.Reject(f.ctx, p.ProposalID)
	require.NoError(t, err)

	select {
	case got := <-updates:
		assert.Equal(t, models.ProposalRejected, got.Status)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	cancel()
	for range updates {
	}
}

func TestPublishFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)
	got, err := f.repo.GetProposal(f.ctx, p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPending, got.Status)
}

func TestConcurrentTransitions_OneWinner(t *testing.T) {
	f := newFixture(t)
	p, err := f.mgr.Issue(f.ctx, "0x01", "0xa", 50)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.mgr.Accept(f.ctx, p.ProposalID)
			} else {
				_, err = f.mgr.Reject(f.ctx, p.ProposalID)
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyDecided), "err=%v", err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
