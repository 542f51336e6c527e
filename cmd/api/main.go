package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/app"
	"lootcase-api/internal/config"
	"lootcase-api/internal/handler"
	"lootcase-api/internal/logging"
	"lootcase-api/internal/model"
	"lootcase-api/internal/ratelimit"
	"lootcase-api/internal/router"
	"lootcase-api/internal/service"
)

func main() {
	cfg := config.MustLoad()
	logging.Setup(cfg.App.LogLevel, cfg.App.Environment)

	logger := logging.Component("main")
	logger.WithFields(log.Fields{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("starting lootcase API")

	ctx := context.Background()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}
	defer store.Close()
	logger.WithField("type", cfg.Store.Type).Info("store initialized")

	auditRepo, closeAudit, err := app.OpenAudit(ctx, cfg, store)
	if err != nil {
		logger.WithError(err).Fatal("failed to open audit sink")
	}
	defer closeAudit()
	logger.WithField("type", cfg.Audit.Type).Info("audit sink initialized")

	// Redis is optional; everything it backs has an in-memory fallback.
	redisClient, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, using in-memory cache and limiter")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Address()).Info("redis client initialized")
	}

	kv := app.NewCache(cfg, redisClient)
	defer kv.Close()

	limiter, memLimiter := app.NewLimiter(cfg, redisClient)

	secret, err := app.SessionSecret(cfg)
	if err != nil {
		logger.WithError(err).Fatal("invalid session configuration")
	}

	audit := service.NewAuditLogger(auditRepo, cfg.Audit.QueueSize)

	sessions := service.NewSessionService(service.SessionConfig{
		Secret: secret,
		Issuer: cfg.Session.Issuer,
		TTL:    cfg.Session.TTL,
	}, service.NewCacheSessionStore(kv), store)

	commission := service.NewReferralCommission(store, store, cfg.Economy.CommissionRate)
	executor := service.NewSaleExecutor(store, store, commission, audit, cfg.Economy.SagaTimeout)
	ranks := service.NewRankLookup(store, kv, cfg.Economy.RankCacheTTL)

	rl := cfg.RateLimit
	sales := service.NewSalesService(service.SalesDeps{
		Limiter: limiter,
		Limits: service.Limits{
			Sell:    ratelimit.Rule{Max: rl.SellMax, Window: rl.SellWindow},
			Bulk:    ratelimit.Rule{Max: rl.BulkMax, Window: rl.BulkWindow},
			Upgrade: ratelimit.Rule{Max: rl.UpgradeMax, Window: rl.UpgradeWindow},
			List:    ratelimit.Rule{Max: rl.ListMax, Window: rl.ListWindow},
		},
		Sessions: sessions,
		Store:    store,
		Executor: executor,
		Ranks:    ranks,
		Audit:    audit,
		Capacity: model.CapacityPolicy{
			StartMax:         cfg.Economy.CapacityStart,
			Step:             cfg.Economy.CapacityStep,
			MaxCapacity:      cfg.Economy.CapacityMax,
			BaseCostCents:    cfg.Economy.UpgradeBaseCents,
			IncrementCents:   cfg.Economy.UpgradeIncrementCents,
			ReferralDiscount: cfg.Economy.ReferralDiscount,
		},
	})

	var cleanup *service.CleanupScheduler
	if cfg.Jobs.Enabled {
		cleanup, err = service.NewCleanupScheduler(auditRepo, service.CleanupConfig{
			AuditRetention: cfg.Jobs.AuditRetention,
			Schedule:       cfg.Jobs.AuditPruneSchedule,
		})
		if err != nil {
			logger.WithError(err).Fatal("invalid job schedule")
		}
		cleanup.Start()
	}

	ipGate := ratelimit.NewGate(limiter, "ip", ratelimit.FailOpen)

	checks := map[string]handler.Pinger{"store": store}
	if redisClient != nil {
		checks["cache"] = kv
	}
	if p, ok := auditRepo.(handler.Pinger); ok && cfg.Audit.Type == "mysql" {
		checks["audit"] = p
	}

	admin := handler.AdminDeps{
		Store:      store,
		AuditRepo:  auditRepo,
		AuditStats: audit.Stats,
		GateStats: func() map[string]map[string]int64 {
			stats := sales.GateStats()
			errs, denied := ipGate.Stats()
			stats["ip"] = map[string]int64{"errors": errs, "denied": denied}
			return stats
		},
		StoreType: cfg.Store.Type,
		AuditType: cfg.Audit.Type,
	}
	if memLimiter != nil {
		admin.LimiterLen = memLimiter.Size
	}

	r := router.New(router.Config{
		Handler:          handler.New(cfg.App.Name, cfg.App.Version, checks),
		InventoryHandler: handler.NewInventoryHandler(sales, cfg.Server.MaxBodyBytes),
		AdminHandler:     handler.NewAdminHandler(admin),
		AuthHandler:      handler.NewAuthHandler(sessions),
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		TrustProxy:       cfg.Server.TrustProxy,
		AdminKeyHash:     cfg.Admin.LoginKeyHash,
		IPGate:           ipGate,
		IPRule:           ratelimit.Rule{Max: rl.IPMax, Window: rl.IPWindow},
	})

	if cfg.Admin.LoginKeyHash == "" {
		logger.Warn("ADMIN_LOGIN_KEY_HASH not set, admin routes are disabled")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}
	if cleanup != nil {
		cleanup.Stop()
	}

	// In-flight commissions still write audit entries, so drain them first.
	executor.Wait()
	if err := audit.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("audit queue not fully drained")
	}

	logger.Info("server stopped")
}
