package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/config"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/db"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/events"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/lifecycle"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/matching"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/orchestrator"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/paas"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	gormrepository "github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository/gorm"
	memoryrepository "github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository/memory"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/reputation"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/service"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/sweeper"
)

// app holds the engine wired from one config.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	dbConn *db.DB
	repo   repository.Repository
	clock  clock.Clock

	hub   *events.Hub
	redis *events.RedisPublisher
	paas  *paas.Client

	settings     *service.SystemSettingsService
	ledger       reputation.Ledger
	lifecycle    *lifecycle.Manager
	orchestrator *orchestrator.Orchestrator
	dispatcher   *service.Dispatcher
	sweeper      *sweeper.Sweeper
	admission    *service.Admission
	proposals    *service.ProposalService
}

func newApp(cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, clock: clock.System{}}
	if err := a.openStorage(); err != nil {
		return nil, err
	}

	limits, err := matching.TierLimitsFromConfig(cfg.Settlement.TierLimits)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tier limits: %w", err)
	}

	a.hub = events.NewHub(cfg.Events.HubBuffer)
	a.paas = initPaaSClient(cfg.PaaS, log)
	publisher := a.publishers()

	cipher, err := service.NewSettingsCipher(cfg.Auth.SettingsKey, cfg.Auth.SettingsPrevKey)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.settings = &service.SystemSettingsService{Repo: a.repo, Clock: a.clock, Cipher: cipher}
	a.ledger = reputation.NewLedger(cfg.Settlement.ColdStartScore)
	a.lifecycle = lifecycle.New(a.repo, a.clock, a.ledger, publisher, log)
	a.orchestrator = &orchestrator.Orchestrator{
		Repo:           a.repo,
		Lifecycle:      a.lifecycle,
		Ledger:         a.ledger,
		Clock:          a.clock,
		Logger:         log,
		DefaultFeeBps:  cfg.Settlement.DefaultFeeBps,
		MaxAttempts:    cfg.Settlement.MaxStorageAttempts,
		BaseBackoff:    cfg.Settlement.RetryBaseBackoff,
		MaxBackoff:     cfg.Settlement.RetryMaxBackoff,
		ExecutionGrace: cfg.Settlement.ExecutionGrace,
	}
	a.dispatcher = service.NewDispatcher(a.orchestrator, a.repo, a.settings, cfg.Dispatcher, log)
	a.sweeper = &sweeper.Sweeper{
		Repo:           a.repo,
		Lifecycle:      a.lifecycle,
		Clock:          a.clock,
		Logger:         log,
		ExecutionGrace: cfg.Settlement.ExecutionGrace,
		BatchSize:      cfg.Settlement.SweepBatchSize,
	}
	a.admission = &service.Admission{
		Repo:      a.repo,
		Clock:     a.clock,
		Limits:    limits,
		OrderTTL:  cfg.Settlement.OrderTTL,
		Publisher: publisher,
		Queue:     a.dispatcher,
		Logger:    log,
	}
	a.proposals = &service.ProposalService{
		Repo:        a.repo,
		Lifecycle:   a.lifecycle,
		Clock:       a.clock,
		ProofMaxAge: cfg.Settlement.ProofMaxAge,
		Logger:      log,
	}
	return a, nil
}

func (a *app) openStorage() error {
	switch strings.ToLower(strings.TrimSpace(a.cfg.DB.Driver)) {
	case "memory":
		a.log.Warn("using in-memory storage; state is lost on restart")
		a.repo = memoryrepository.New()
		return nil
	case "", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", a.cfg.DB.Driver)
	}

	conn, err := db.Open(a.cfg.DB)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	a.dbConn = conn
	if err := db.SetTimezone(conn, a.cfg.DB.Timezone); err != nil {
		a.log.Warn("failed to set timezone", zap.Error(err))
	}
	if a.cfg.DB.AutoMigrate {
		if err := db.AutoMigrate(conn); err != nil {
			_ = db.Close(conn)
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	a.repo = gormrepository.New(conn.Gorm)
	return nil
}

// publishers fans committed events out to every configured sink.
func (a *app) publishers() events.Publisher {
	out := events.Multi{a.hub}
	if a.cfg.Events.Log {
		out = append(out, events.LogPublisher{Logger: a.log})
	}
	if a.cfg.Redis.Enabled {
		a.redis = events.NewRedisPublisher(a.cfg.Redis)
		out = append(out, a.redis)
		a.log.Info("publishing events to redis", zap.String("addr", a.cfg.Redis.Addr))
	}
	if webhook := events.NewWebhookPublisher(a.cfg.Events.WebhookURLs, a.cfg.Events.WebhookTimeout); len(webhook.URLs) > 0 {
		out = append(out, webhook)
		a.log.Info("publishing events to webhooks", zap.Int("urls", len(webhook.URLs)))
	}
	if a.cfg.Events.PaaS && a.paas != nil {
		out = append(out, events.PaaSPublisher{Client: a.paas})
	}
	return out
}

func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if err := a.redis.Close(); err != nil {
		a.log.Warn("redis close failed", zap.Error(err))
	}
	if err := db.Close(a.dbConn); err != nil {
		a.log.Warn("db close failed", zap.Error(err))
	}
}

func initPaaSClient(cfg config.PaaSConfig, log *zap.Logger) *paas.Client {
	p := paas.NewClient(cfg)
	if p == nil || p.APIKey == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		log.Warn("paas login failed (audit disabled)", zap.Error(err))
		return nil
	}
	log.Info("paas login ok", zap.String("base_url", p.BaseURL))
	return p
}
