package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/auth"
	cronrunner "github.com/olujimiAdebakin/Paynode-Aggregator/internal/cron"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/handler"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/paas"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/service"

	_ "github.com/olujimiAdebakin/Paynode-Aggregator/docs"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the matching workers and the scheduled sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	cfg, log := a.cfg, a.log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.settings.EnsureDefaultSwitches(ctx); err != nil {
		log.Warn("init default system switches failed", zap.Error(err))
	}
	if n, err := a.settings.ResealSecrets(ctx); err != nil {
		log.Warn("resealing sensitive settings failed", zap.Error(err))
	} else if n > 0 {
		log.Info("resealed sensitive settings", zap.Int("settings", n))
	}

	engine := a.router()
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := a.dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("dispatcher stopped", zap.Error(err))
		}
	}()

	cronRunner := cronrunner.New(log, ctx)
	if cfg.Cron.Enabled {
		if err := a.scheduleJobs(cronRunner); err != nil {
			return err
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	// Orders left PENDING by a previous process are picked up right away.
	if n, err := a.dispatcher.RetryPass(ctx); err != nil {
		log.Warn("startup retry pass failed", zap.Error(err))
	} else if n > 0 {
		log.Info("requeued open orders", zap.Int("orders", n))
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case serveErr = <-errCh:
		log.Error("server error", zap.Error(serveErr))
		stop()
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	// Aborted matching runs cancel their live proposals on the way out and
	// still need storage, so the dispatcher drains before anything closes.
	stop()
	if !awaitStopped(shutdownCtx, dispatcherDone) {
		log.Warn("dispatcher did not drain before the shutdown timeout")
	}
	a.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	return serveErr
}

// awaitStopped reports whether done closed before ctx ended.
func awaitStopped(ctx context.Context, done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *app) scheduleJobs(r *cronrunner.Runner) error {
	if _, err := r.Add("sweep", a.cfg.Cron.Sweep, func(ctx context.Context) {
		if !a.settings.IsEnabled(ctx, service.FeatureSweeper, true) {
			return
		}
		if _, err := a.sweeper.Sweep(ctx); err != nil {
			a.log.Warn("sweep pass failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	_, err := r.Add("retry_pass", a.cfg.Cron.RetryPass, func(ctx context.Context) {
		if !a.settings.IsEnabled(ctx, service.FeatureRetryPass, true) {
			return
		}
		if _, err := a.dispatcher.RetryPass(ctx); err != nil {
			a.log.Warn("retry pass failed", zap.Error(err))
		}
	})
	return err
}

func (a *app) router() *gin.Engine {
	cfg := a.cfg
	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst).Middleware())
	engine.Use(paas.GatewayMiddleware(cfg.PaaS.RequireGateway))
	if cfg.PaaS.AuditWrites {
		engine.Use(paas.WriteAuditMiddleware(a.paas, a.log))
	}

	jwt := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL}
	if !jwt.Enabled() {
		a.log.Warn("auth.jwt_secret is empty; provider routes are unauthenticated")
	}
	admin := auth.RequireAdmin(jwt, cfg.Auth.AdminKey)
	provider := auth.Middleware(jwt)

	(&handler.HealthHandler{Repo: a.repo}).Register(engine)
	paas.RegisterDocs(engine)
	(&handler.OrderHandler{
		Repo:      a.repo,
		Admission: a.admission,
		Lifecycle: a.lifecycle,
		Queue:     a.dispatcher,
		Admin:     admin,
	}).Register(engine)
	(&handler.IntentHandler{Repo: a.repo, Admission: a.admission, Provider: provider}).Register(engine)
	(&handler.ProposalHandler{Proposals: a.proposals, Provider: provider}).Register(engine)
	(&handler.ReputationHandler{Repo: a.repo, Ledger: a.ledger}).Register(engine)
	(&handler.EventHandler{Repo: a.repo, Hub: a.hub, Settings: a.settings, Logger: a.log}).Register(engine)
	(&handler.SystemSettingsHandler{Repo: a.repo, Settings: a.settings, Admin: admin}).Register(engine)
	(&handler.SweepHandler{Sweeper: a.sweeper, Admin: admin}).Register(engine)
	(&handler.AuthHandler{JWT: jwt, Admin: admin}).Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Admin-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
