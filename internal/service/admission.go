package service

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/events"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/matching"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

// MaxBps is 100%.
const MaxBps = 10_000

// MaxAmount is the largest on-chain token amount, 2^256 - 1.
var MaxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 0)

var (
	orderIDPattern  = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
	addressPattern  = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3,10}$`)
)

type OrderInput struct {
	OrderID           string     `json:"order_id"`
	UserAddress       string     `json:"user_address"`
	Token             string     `json:"token"`
	Amount            string     `json:"amount"`
	Currency          string     `json:"currency"`
	IntegratorAddress string     `json:"integrator_address"`
	IntegratorFeeBps  uint32     `json:"integrator_fee_bps"`
	RefundAddress     string     `json:"refund_address"`
	BlockNumber       uint64     `json:"block_number"`
	TxHash            string     `json:"tx_hash"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

type IntentInput struct {
	Provider                string    `json:"provider"`
	Currency                string    `json:"currency"`
	AvailableAmount         string    `json:"available_amount"`
	MinFeeBps               uint32    `json:"min_fee_bps"`
	MaxFeeBps               uint32    `json:"max_fee_bps"`
	CommitmentWindowSeconds uint64    `json:"commitment_window_seconds"`
	IsActive                bool      `json:"is_active"`
	ExpiresAt               time.Time `json:"expires_at"`
}

// Enqueuer accepts admitted orders for matching.
type Enqueuer interface {
	Enqueue(orderID string) bool
}

// Admission is the entry point for orders observed on-chain and for
// provider intent declarations.
type Admission struct {
	Repo      repository.Repository
	Clock     clock.Clock
	Limits    matching.TierLimits
	OrderTTL  time.Duration
	Publisher events.Publisher
	Queue     Enqueuer
	Logger    *zap.Logger
}

func (a *Admission) AdmitOrder(ctx context.Context, in OrderInput) (*models.Order, error) {
	if a == nil || a.Repo == nil {
		return nil, apperr.StorageUnavailable(nil, "admission is not configured")
	}
	now := nowFrom(a.Clock)
	order, err := a.buildOrder(in, now)
	if err != nil {
		return nil, err
	}
	evt := events.New(models.EventOrderAdmitted, order.OrderID, order.OrderID, "", string(order.Status), map[string]any{
		"amount":     order.Amount.String(),
		"currency":   order.Currency,
		"tier":       order.Tier,
		"expires_at": order.ExpiresAt,
	}, now)
	if err := a.Repo.InsertOrder(ctx, order, evt); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.New(apperr.KindConflict, apperr.CodeDuplicateOrder, "order %s already admitted", order.OrderID)
		}
		return nil, apperr.FromRepository(err, apperr.CodeOrderNotFound, "insert order %s", order.OrderID)
	}
	log := logger.OrNop(a.Logger)
	events.PublishAll(context.WithoutCancel(ctx), a.Publisher, log, []models.DomainEvent{evt})

	if a.Queue != nil && !a.Queue.Enqueue(order.OrderID) {
		log.Warn("matching queue full, order left for the retry pass", zap.String("order_id", order.OrderID))
	}
	log.Info("order admitted",
		zap.String("order_id", order.OrderID),
		zap.String("amount", order.Amount.String()),
		zap.String("tier", string(order.Tier)),
	)
	return order, nil
}

func (a *Admission) buildOrder(in OrderInput, now time.Time) (*models.Order, error) {
	id := strings.ToLower(strings.TrimSpace(in.OrderID))
	if !orderIDPattern.MatchString(id) {
		return nil, apperr.Validation(apperr.CodeInvalidOrderID, "order id must be 0x followed by 64 hex characters")
	}
	amount, err := parseAmount(in.Amount, false)
	if err != nil {
		return nil, err
	}
	currency, err := parseCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	if in.IntegratorFeeBps > MaxBps {
		return nil, apperr.Validation(apperr.CodeFeeOutOfRange, "integrator fee %d bps exceeds %d", in.IntegratorFeeBps, MaxBps)
	}
	user, err := parseAddress("user_address", in.UserAddress, true)
	if err != nil {
		return nil, err
	}
	refund, err := parseAddress("refund_address", in.RefundAddress, true)
	if err != nil {
		return nil, err
	}
	if refund == "" {
		refund = user
	}
	integrator, err := parseAddress("integrator_address", in.IntegratorAddress, true)
	if err != nil {
		return nil, err
	}

	createdAt := now
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		createdAt = in.CreatedAt.UTC()
	}
	ttl := a.OrderTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiresAt := createdAt.Add(ttl)
	if in.ExpiresAt != nil && !in.ExpiresAt.IsZero() {
		expiresAt = in.ExpiresAt.UTC()
	}
	if !expiresAt.After(createdAt) {
		return nil, apperr.Validation(apperr.CodeInvalidExpiry, "expires_at must be after created_at")
	}

	return &models.Order{
		OrderID:           id,
		UserAddress:       user,
		Token:             strings.ToLower(strings.TrimSpace(in.Token)),
		Amount:            amount,
		Currency:          currency,
		Tier:              matching.ClassifyDecimal(amount, a.Limits),
		IntegratorAddress: integrator,
		IntegratorFeeBps:  in.IntegratorFeeBps,
		RefundAddress:     refund,
		BlockNumber:       in.BlockNumber,
		TxHash:            strings.ToLower(strings.TrimSpace(in.TxHash)),
		Status:            models.OrderPending,
		CreatedAt:         createdAt,
		ExpiresAt:         expiresAt,
		UpdatedAt:         now,
	}, nil
}

// UpsertIntent replaces the provider's terms for one currency. Capacity held
// by live proposals is kept by the repository.
func (a *Admission) UpsertIntent(ctx context.Context, in IntentInput) (*models.ProviderIntent, error) {
	if a == nil || a.Repo == nil {
		return nil, apperr.StorageUnavailable(nil, "admission is not configured")
	}
	now := nowFrom(a.Clock)
	provider, err := parseAddress("provider", in.Provider, false)
	if err != nil {
		return nil, err
	}
	currency, err := parseCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(in.AvailableAmount, true)
	if err != nil {
		return nil, err
	}
	switch {
	case in.MaxFeeBps > MaxBps:
		return nil, apperr.Validation(apperr.CodeInvalidIntent, "max fee %d bps exceeds %d", in.MaxFeeBps, MaxBps)
	case in.MinFeeBps > in.MaxFeeBps:
		return nil, apperr.Validation(apperr.CodeInvalidIntent, "min fee %d bps above max fee %d bps", in.MinFeeBps, in.MaxFeeBps)
	case in.CommitmentWindowSeconds == 0:
		return nil, apperr.Validation(apperr.CodeInvalidIntent, "commitment window must be positive")
	case in.IsActive && !in.ExpiresAt.After(now):
		return nil, apperr.Validation(apperr.CodeInvalidIntent, "active intent must expire in the future")
	}

	item := &models.ProviderIntent{
		Provider:                provider,
		Currency:                currency,
		AvailableAmount:         amount,
		ReservedAmount:          decimal.Zero,
		MinFeeBps:               in.MinFeeBps,
		MaxFeeBps:               in.MaxFeeBps,
		CommitmentWindowSeconds: in.CommitmentWindowSeconds,
		IsActive:                in.IsActive,
		RegisteredAt:            now,
		ExpiresAt:               in.ExpiresAt.UTC(),
		UpdatedAt:               now,
	}
	if err := a.Repo.UpsertIntent(ctx, item); err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeIntentNotFound, "upsert intent %s", item.Key())
	}
	stored, err := a.Repo.GetIntent(ctx, provider, currency)
	if err != nil {
		return nil, apperr.FromRepository(err, apperr.CodeIntentNotFound, "load intent %s", item.Key())
	}
	logger.OrNop(a.Logger).Info("intent registered",
		zap.String("provider", provider),
		zap.String("currency", currency),
		zap.String("available", stored.AvailableAmount.String()),
		zap.Bool("active", stored.IsActive),
	)
	return stored, nil
}

func parseAmount(raw string, allowZero bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, apperr.Validation(apperr.CodeInvalidAmount, "amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Validation(apperr.CodeInvalidAmount, "amount %q is not a number", raw)
	}
	if !d.IsInteger() {
		return decimal.Zero, apperr.Validation(apperr.CodeInvalidAmount, "amount %s must be an integer in token units", raw)
	}
	if d.IsNegative() || (!allowZero && d.IsZero()) {
		return decimal.Zero, apperr.Validation(apperr.CodeInvalidAmount, "amount %s must be positive", raw)
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, apperr.Validation(apperr.CodeInvalidAmount, "amount %s exceeds the uint256 range", raw)
	}
	return d, nil
}

func parseCurrency(raw string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if !currencyPattern.MatchString(c) {
		return "", apperr.Validation(apperr.CodeInvalidCurrency, "currency %q is not a currency code", raw)
	}
	return c, nil
}

func parseAddress(field, raw string, optional bool) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if addr == "" && optional {
		return "", nil
	}
	if !addressPattern.MatchString(addr) {
		return "", apperr.Validation(apperr.CodeInvalidAddress, "%s %q is not a 0x address", field, raw)
	}
	return addr, nil
}

func nowFrom(c clock.Clock) time.Time {
	if c == nil {
		return clock.System{}.Now()
	}
	return c.Now()
}
