package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/config"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/orchestrator"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

type Matcher interface {
	MatchOrder(ctx context.Context, orderID string) (orchestrator.Outcome, error)
}

// Dispatcher feeds queued orders to a fixed pool of matching workers. An
// order is queued at most once until its run finishes.
type Dispatcher struct {
	matcher    Matcher
	repo       repository.Repository
	settings   *SystemSettingsService
	logger     *zap.Logger
	workers    int
	retryBatch int
	limiter    *rate.Limiter
	queue      chan string

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewDispatcher(m Matcher, repo repository.Repository, settings *SystemSettingsService, cfg config.DispatcherConfig, log *zap.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{
		matcher:    m,
		repo:       repo,
		settings:   settings,
		logger:     logger.OrNop(log),
		workers:    workers,
		retryBatch: cfg.RetryBatch,
		limiter:    rate.NewLimiter(limit, burst),
		queue:      make(chan string, size),
		pending:    map[string]struct{}{},
	}
}

// Enqueue reports false when the order is already queued or running, or
// when the queue is full.
func (d *Dispatcher) Enqueue(orderID string) bool {
	if d == nil || orderID == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[orderID]; ok {
		return false
	}
	select {
	case d.queue <- orderID:
		d.pending[orderID] = struct{}{}
		return true
	default:
		return false
	}
}

func (d *Dispatcher) Pending() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run blocks until ctx ends. Cancelling ctx aborts in-flight matching runs,
// which withdraw their pending proposals.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil || d.matcher == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		worker := i
		g.Go(func() error {
			return d.work(gctx, worker)
		})
	}
	d.logger.Info("dispatcher started", zap.Int("workers", d.workers))
	err := g.Wait()
	d.logger.Info("dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context, worker int) error {
	for {
		var orderID string
		select {
		case <-ctx.Done():
			return nil
		case orderID = <-d.queue:
		}
		if err := d.limiter.Wait(ctx); err != nil {
			d.done(orderID)
			return nil
		}
		d.match(ctx, worker, orderID)
		d.done(orderID)
	}
}

func (d *Dispatcher) match(ctx context.Context, worker int, orderID string) {
	log := d.logger.With(zap.Int("worker", worker), zap.String("order_id", orderID))
	if !d.settings.IsEnabled(ctx, FeatureMatching, true) {
		log.Debug("matching disabled, order left pending")
		return
	}
	outcome, err := d.matcher.MatchOrder(ctx, orderID)
	switch {
	case err == nil:
		log.Info("matching finished", zap.String("outcome", string(outcome)))
	case ctx.Err() != nil:
		log.Info("matching aborted", zap.Error(err))
	case apperr.IsCode(err, apperr.CodeAlreadyDecided):
		log.Debug("order owned by another matching run", zap.Error(err))
	default:
		log.Warn("matching failed", zap.Error(err))
	}
}

func (d *Dispatcher) done(orderID string) {
	d.mu.Lock()
	delete(d.pending, orderID)
	d.mu.Unlock()
}

// RetryPass re-queues PENDING orders, oldest first, so orders whose
// candidates all declined get another round once liquidity changes.
func (d *Dispatcher) RetryPass(ctx context.Context) (int, error) {
	if d == nil || d.repo == nil {
		return 0, nil
	}
	orders, err := d.repo.ListOpenOrders(ctx, d.retryBatch)
	if err != nil {
		return 0, apperr.FromRepository(err, apperr.CodeOrderNotFound, "list open orders")
	}
	queued := 0
	for _, o := range orders {
		if d.Enqueue(o.OrderID) {
			queued++
		}
	}
	if queued > 0 {
		d.logger.Info("retry pass", zap.Int("queued", queued), zap.Int("open", len(orders)))
	}
	return queued, nil
}
