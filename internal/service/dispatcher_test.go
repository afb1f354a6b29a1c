package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/config"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/lifecycle"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/orchestrator"
	memoryrepository "github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository/memory"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/reputation"
)

type fakeMatcher struct {
	mu    sync.Mutex
	calls []string
	seen  chan string
	block chan struct{}
}

func newFakeMatcher() *fakeMatcher {
	return &fakeMatcher{seen: make(chan string, 64)}
}

func (m *fakeMatcher) MatchOrder(ctx context.Context, orderID string) (orchestrator.Outcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, orderID)
	m.mu.Unlock()
	m.seen <- orderID
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return orchestrator.OutcomeNoProvidersAvailable, nil
}

func (m *fakeMatcher) next(t *testing.T) string {
	t.Helper()
	select {
	case id := <-m.seen:
		return id
	case <-time.After(2 * time.Second):
		t.Fatalf("matcher was not called")
		return ""
	}
}

func dispatcherConfig() config.DispatcherConfig {
	return config.DispatcherConfig{Workers: 2, QueueSize: 2, RetryBatch: 10}
}

func TestDispatcher_EnqueueDedupesAndBounds(t *testing.T) {
	d := NewDispatcher(newFakeMatcher(), nil, nil, dispatcherConfig(), nil)

	assert.True(t, d.Enqueue("0x01"))
	assert.False(t, d.Enqueue("0x01"), "already queued")
	assert.True(t, d.Enqueue("0x02"))
	assert.False(t, d.Enqueue("0x03"), "queue full")
	assert.False(t, d.Enqueue(""))
	assert.Equal(t, 2, d.Pending())
}

func TestDispatcher_RunMatchesQueuedOrders(t *testing.T) {
	m := newFakeMatcher()
	d := NewDispatcher(m, nil, nil, dispatcherConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.True(t, d.Enqueue("0x01"))
	assert.Equal(t, "0x01", m.next(t))
	require.Eventually(t, func() bool { return d.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, d.Enqueue("0x01"), "finished orders can be queued again")
	assert.Equal(t, "0x01", m.next(t))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatcher did not stop")
	}
}

func TestDispatcher_RunningOrderIsNotQueuedTwice(t *testing.T) {
	m := newFakeMatcher()
	m.block = make(chan struct{})
	d := NewDispatcher(m, nil, nil, dispatcherConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	require.True(t, d.Enqueue("0x01"))
	m.next(t)
	assert.False(t, d.Enqueue("0x01"))
	close(m.block)
}

func TestDispatcher_RunReturnsAfterLiveProposalsAreReleased(t *testing.T) {
	repo := memoryrepository.New()
	clk := clock.NewFake(start)
	ledger := reputation.NewLedger(0.5)
	mgr := lifecycle.New(repo, clk, ledger, nil, nil)
	orch := &orchestrator.Orchestrator{Repo: repo, Lifecycle: mgr, Ledger: ledger, Clock: clk, DefaultFeeBps: 50, MaxAttempts: 1}

	bg := context.Background()
	require.NoError(t, repo.UpsertIntent(bg, &models.ProviderIntent{
		Provider:                "0xa",
		Currency:                "NGN",
		AvailableAmount:         decimal.NewFromInt(2000),
		MinFeeBps:               10,
		MaxFeeBps:               100,
		CommitmentWindowSeconds: 60,
		IsActive:                true,
		RegisteredAt:            start,
		ExpiresAt:               start.Add(24 * time.Hour),
		UpdatedAt:               start,
	}))
	require.NoError(t, repo.InsertOrder(bg, &models.Order{
		OrderID:   "0x01",
		Amount:    decimal.NewFromInt(1000),
		Currency:  "NGN",
		Tier:      models.TierAlpha,
		Status:    models.OrderPending,
		CreatedAt: start,
		ExpiresAt: start.Add(time.Hour),
		UpdatedAt: start,
	}))

	d := NewDispatcher(orch, repo, nil, dispatcherConfig(), nil)
	ctx, cancel := context.WithCancel(bg)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.True(t, d.Enqueue("0x01"))

	require.Eventually(t, func() bool {
		items, err := repo.ListProposalsByOrder(bg, "0x01")
		return err == nil && len(items) == 1 && items[0].Status == models.ProposalPending
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatcher did not stop")
	}

	// Everything below is settled by the time Run returns.
	items, err := repo.ListProposalsByOrder(bg, "0x01")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ProposalCancelled, items[0].Status)
	intent, err := repo.GetIntent(bg, "0xa", "NGN")
	require.NoError(t, err)
	assert.True(t, intent.AvailableAmount.Equal(decimal.NewFromInt(2000)), "available=%s", intent.AvailableAmount)
	assert.True(t, intent.ReservedAmount.IsZero(), "reserved=%s", intent.ReservedAmount)
	_, err = repo.GetReputation(bg, "0xa")
	assert.Error(t, err, "a cancelled proposal leaves no reputation record")
}

func TestDispatcher_RetryPassQueuesPendingOrders(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepository.New()
	for i, status := range []models.OrderStatus{models.OrderPending, models.OrderFulfilled, models.OrderPending} {
		require.NoError(t, repo.InsertOrder(ctx, &models.Order{
			OrderID:   []string{"0x01", "0x02", "0x03"}[i],
			Amount:    decimal.NewFromInt(100),
			Currency:  "NGN",
			Tier:      models.TierAlpha,
			Status:    status,
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
			ExpiresAt: start.Add(time.Hour),
			UpdatedAt: start,
		}))
	}
	d := NewDispatcher(newFakeMatcher(), repo, nil, config.DispatcherConfig{QueueSize: 10, RetryBatch: 10}, nil)

	queued, err := d.RetryPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	queued, err = d.RetryPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued, "orders already queued are not queued again")
}

func TestDispatcher_MatchingSwitchOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := memoryrepository.New()
	settings := &SystemSettingsService{Repo: repo}
	require.NoError(t, settings.SetEnabled(ctx, FeatureMatching, false))

	m := newFakeMatcher()
	d := NewDispatcher(m, repo, settings, dispatcherConfig(), nil)
	go func() { _ = d.Run(ctx) }()

	require.True(t, d.Enqueue("0x01"))
	require.Eventually(t, func() bool { return d.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.calls)
}
