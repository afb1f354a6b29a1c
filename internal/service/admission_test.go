package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/matching"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	memoryrepository "github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository/memory"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	testOrderID  = "0x" + strings.Repeat("ab", 32)
	testUser     = "0x" + strings.Repeat("11", 20)
	testProvider = "0x" + strings.Repeat("22", 20)
)

type queue struct {
	mu  sync.Mutex
	ids []string
}

func (q *queue) Enqueue(orderID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, orderID)
	return true
}

type published struct {
	mu    sync.Mutex
	types []string
}

func (p *published) Publish(_ context.Context, evt models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, evt.Type)
	return nil
}

func newAdmission(repo repository.Repository) (*Admission, *queue, *published) {
	q := &queue{}
	pub := &published{}
	return &Admission{
		Repo:      repo,
		Clock:     clock.NewFake(start),
		Limits:    matching.DefaultTierLimits(),
		OrderTTL:  time.Hour,
		Publisher: pub,
		Queue:     q,
	}, q, pub
}

func validOrder() OrderInput {
	return OrderInput{
		OrderID:     testOrderID,
		UserAddress: testUser,
		Amount:      "5000",
		Currency:    "ngn",
	}
}

func TestAdmitOrder_ClassifiesAndEnqueues(t *testing.T) {
	repo := memoryrepository.New()
	a, q, pub := newAdmission(repo)

	order, err := a.AdmitOrder(context.Background(), validOrder())
	require.NoError(t, err)
	assert.Equal(t, models.TierBeta, order.Tier)
	assert.Equal(t, "NGN", order.Currency)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, start.Add(time.Hour), order.ExpiresAt)
	assert.Equal(t, testUser, order.RefundAddress, "refund address defaults to the user")
	assert.Equal(t, []string{testOrderID}, q.ids)
	assert.Equal(t, []string{models.EventOrderAdmitted}, pub.types)

	outbox, err := repo.ListEvents(context.Background(), repository.ListEventsParams{})
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	assert.Equal(t, testOrderID, outbox[0].OrderID)
}

func TestAdmitOrder_Duplicate(t *testing.T) {
	a, _, _ := newAdmission(memoryrepository.New())
	_, err := a.AdmitOrder(context.Background(), validOrder())
	require.NoError(t, err)

	_, err = a.AdmitOrder(context.Background(), validOrder())
	assert.True(t, apperr.IsCode(err, apperr.CodeDuplicateOrder), "err=%v", err)
	assert.Equal(t, 409, apperr.HTTPStatus(err))
}

const uint256Max = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

func TestAdmitOrder_AcceptsUint256Max(t *testing.T) {
	a, _, _ := newAdmission(memoryrepository.New())
	in := validOrder()
	in.Amount = uint256Max
	order, err := a.AdmitOrder(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, uint256Max, order.Amount.String())
	assert.Equal(t, models.TierTitan, order.Tier)
}

func TestAdmitOrder_Validation(t *testing.T) {
	past := start.Add(-time.Minute)
	cases := []struct {
		name string
		edit func(*OrderInput)
		code apperr.Code
	}{
		{"short id", func(in *OrderInput) { in.OrderID = "0x01" }, apperr.CodeInvalidOrderID},
		{"zero amount", func(in *OrderInput) { in.Amount = "0" }, apperr.CodeInvalidAmount},
		{"fractional amount", func(in *OrderInput) { in.Amount = "1.5" }, apperr.CodeInvalidAmount},
		{"negative amount", func(in *OrderInput) { in.Amount = "-3" }, apperr.CodeInvalidAmount},
		{"garbage amount", func(in *OrderInput) { in.Amount = "lots" }, apperr.CodeInvalidAmount},
		{"79 digit amount", func(in *OrderInput) { in.Amount = strings.Repeat("9", 79) }, apperr.CodeInvalidAmount},
		{"uint256 max plus one", func(in *OrderInput) { in.Amount = uint256Max[:len(uint256Max)-1] + "6" }, apperr.CodeInvalidAmount},
		{"exponent overflow", func(in *OrderInput) { in.Amount = "1e80" }, apperr.CodeInvalidAmount},
		{"currency", func(in *OrderInput) { in.Currency = "N1" }, apperr.CodeInvalidCurrency},
		{"fee", func(in *OrderInput) { in.IntegratorFeeBps = MaxBps + 1 }, apperr.CodeFeeOutOfRange},
		{"expiry before creation", func(in *OrderInput) { in.ExpiresAt = &past }, apperr.CodeInvalidExpiry},
		{"bad refund address", func(in *OrderInput) { in.RefundAddress = "nope" }, apperr.CodeInvalidAddress},
		{"bad user address", func(in *OrderInput) { in.UserAddress = "0x12" }, apperr.CodeInvalidAddress},
		{"bad integrator address", func(in *OrderInput) { in.IntegratorAddress = "0xzz" }, apperr.CodeInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, q, _ := newAdmission(memoryrepository.New())
			in := validOrder()
			tc.edit(&in)
			_, err := a.AdmitOrder(context.Background(), in)
			assert.True(t, apperr.IsCode(err, tc.code), "err=%v want code %s", err, tc.code)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
			assert.Empty(t, q.ids)
		})
	}
}

func validIntent() IntentInput {
	return IntentInput{
		Provider:                testProvider,
		Currency:                "NGN",
		AvailableAmount:         "20000",
		MinFeeBps:               10,
		MaxFeeBps:               100,
		CommitmentWindowSeconds: 60,
		IsActive:                true,
		ExpiresAt:               start.Add(24 * time.Hour),
	}
}

func TestUpsertIntent_Validation(t *testing.T) {
	cases := []struct {
		name string
		edit func(*IntentInput)
		code apperr.Code
	}{
		{"provider", func(in *IntentInput) { in.Provider = "0xabc" }, apperr.CodeInvalidAddress},
		{"min above max", func(in *IntentInput) { in.MinFeeBps = 200 }, apperr.CodeInvalidIntent},
		{"max above 100%", func(in *IntentInput) { in.MaxFeeBps = MaxBps + 1 }, apperr.CodeInvalidIntent},
		{"zero window", func(in *IntentInput) { in.CommitmentWindowSeconds = 0 }, apperr.CodeInvalidIntent},
		{"active and expired", func(in *IntentInput) { in.ExpiresAt = start }, apperr.CodeInvalidIntent},
		{"negative amount", func(in *IntentInput) { in.AvailableAmount = "-1" }, apperr.CodeInvalidAmount},
		{"overflowing amount", func(in *IntentInput) { in.AvailableAmount = strings.Repeat("9", 79) }, apperr.CodeInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _, _ := newAdmission(memoryrepository.New())
			in := validIntent()
			tc.edit(&in)
			_, err := a.UpsertIntent(context.Background(), in)
			assert.True(t, apperr.IsCode(err, tc.code), "err=%v want code %s", err, tc.code)
		})
	}
}

func TestUpsertIntent_InactiveMayBeExpired(t *testing.T) {
	a, _, _ := newAdmission(memoryrepository.New())
	in := validIntent()
	in.IsActive = false
	in.ExpiresAt = start.Add(-time.Hour)
	in.AvailableAmount = "0"
	got, err := a.UpsertIntent(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestUpsertIntent_KeepsReservedCapacity(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepository.New()
	a, _, _ := newAdmission(repo)
	_, err := a.UpsertIntent(ctx, validIntent())
	require.NoError(t, err)

	ok, err := repo.AtomicallyReserve(ctx, testProvider, "NGN", decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.True(t, ok)

	in := validIntent()
	in.AvailableAmount = "1000"
	got, err := a.UpsertIntent(ctx, in)
	require.NoError(t, err)
	assert.True(t, got.AvailableAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.ReservedAmount.Equal(decimal.NewFromInt(5000)))
}
