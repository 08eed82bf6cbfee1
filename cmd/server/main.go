package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"screenguard/internal/adapters/csvsnapshot"
	httpadapter "screenguard/internal/adapters/http"
	pg "screenguard/internal/adapters/postgres"
	"screenguard/internal/audit"
	"screenguard/internal/config"
	"screenguard/internal/matching"
	"screenguard/internal/platform/logging"
	"screenguard/internal/ports"
	"screenguard/internal/ratelimit"
	"screenguard/internal/services/auth"
	"screenguard/internal/services/dispatch"
	"screenguard/internal/services/refresh"
	"screenguard/internal/services/review"
	"screenguard/internal/workers/screenrunner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "screenguard")
	if err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := matching.NewEngine(matching.WithThresholds(cfg.MatchThreshold, cfg.SuggestionThreshold))
	loader := csvsnapshot.New(cfg.SanctionsSnapshotPath, cfg.PEPSnapshotPath)
	if snap, err := loader.Load(ctx); err != nil {
		logger.Warn("initial snapshot load failed, matcher starts unavailable", zap.Error(err))
	} else {
		engine.SetSnapshot(snap)
	}
	go reloadSnapshotLoop(ctx, loader, engine, logger)

	auditSink := audit.New(logger)

	if cfg.InlineOnly() {
		runInline(ctx, cfg, engine, auditSink, logger)
		return
	}

	db, err := pg.Connect(ctx, cfg.StorageUrl)
	if err != nil {
		panic(fmt.Sprintf("db connect: %v", err))
	}
	defer db.Close()
	db.SetValidityDays(cfg.ValidityDays)

	dispatchSvc := dispatch.New(db, db, engine, auditSink, dispatch.WithSyncThreshold(cfg.SyncThreshold))
	refreshSvc := refresh.New(db, db, db, db, cfg.RefreshAdvisoryLockKey)
	reviewSvc := review.New(db, auditSink)
	authSvc := auth.New(db, ratelimit.NewLoginBackoff(), cfg.JWTSigningSecret, cfg.JWTIssuer, time.Hour)

	srv := httpadapter.New(dispatchSvc, refreshSvc, reviewSvc, authSvc, db, db, engine)

	var limiter ports.RateLimiter = ratelimit.NewTokenBucketLimiter(5, 20)
	if cfg.RateLimitStorageUrl != "" {
		shared, err := ratelimit.NewRedisCounterLimiter(cfg.RateLimitStorageUrl, 100, time.Minute)
		if err != nil {
			panic(fmt.Sprintf("rate-limit backend: %v", err))
		}
		defer shared.Close()
		limiter = shared
		logger.Info("using shared rate-limit backend")
	}
	trusted := make(map[string]bool, len(cfg.TrustedProxyIps))
	for _, ip := range cfg.TrustedProxyIps {
		trusted[ip] = true
	}
	allowlist := make(map[string]bool, len(cfg.InternalIpAllowlist))
	for _, ip := range cfg.InternalIpAllowlist {
		allowlist[ip] = true
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpadapter.RateLimit(limiter, clientIPKeyFunc(trusted)))

	r.Mount("/", srv.Routes())
	r.Group(func(internal chi.Router) {
		internal.Use(httpadapter.RequireInternal(cfg.InternalApiKey, allowlist))
		internal.Mount("/", srv.InternalRoutes())
	})
	r.Group(func(protected chi.Router) {
		protected.Use(httpadapter.BearerAuth(authSvc))
		protected.Mount("/", srv.AuthenticatedRoutes())
	})

	if cfg.WorkerCount > 0 {
		workerCfg := screenrunner.Config{
			PollInterval:            time.Duration(cfg.WorkerPollSeconds) * time.Second,
			CleanupEveryNLoops:      cfg.CleanupEveryNLoops,
			JobRetentionDays:        cfg.JobRetentionDays,
			EvidenceRetentionMonths: cfg.EvidenceRetentionMonths,
			MatcherDeadline:         time.Duration(cfg.MatcherDeadlineSeconds) * time.Second,
			Workers:                 cfg.WorkerCount,
		}
		go screenrunner.Run(ctx, db, db, engine, auditSink, logger, workerCfg)
		logger.Info("screening workers started", zap.Int("count", cfg.WorkerCount))
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.Handler()); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	logger.Info("listening", zap.String("addr", cfg.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	}
}

// runInline serves in storage-free mode: every
// request goes straight to the matcher, with no cache, queue, or login.
func runInline(ctx context.Context, cfg config.Config, engine *matching.Engine, auditSink *audit.Sink, logger *zap.Logger) {
	dispatchSvc := dispatch.New(nil, nil, engine, auditSink, dispatch.WithInlineOnly())
	srv := httpadapter.New(dispatchSvc, nil, nil, nil, nil, nil, engine)

	trusted := make(map[string]bool, len(cfg.TrustedProxyIps))
	for _, ip := range cfg.TrustedProxyIps {
		trusted[ip] = true
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpadapter.RateLimit(ratelimit.NewTokenBucketLimiter(5, 20), clientIPKeyFunc(trusted)))
	r.Mount("/", srv.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	logger.Info("listening (inline-only mode)", zap.String("addr", cfg.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		time.Sleep(300 * time.Millisecond)
	case <-ctx.Done():
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	}
}

func reloadSnapshotLoop(ctx context.Context, loader *csvsnapshot.Loader, engine *matching.Engine, logger *zap.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := loader.Load(ctx)
			if err != nil {
				logger.Warn("snapshot reload failed, keeping previous snapshot", zap.Error(err))
				continue
			}
			engine.SetSnapshot(snap)
		}
	}
}

// clientIPKeyFunc derives the Rate Governor's per-IP bucket key. The direct
// TCP peer is trusted by default; only when that peer is a configured
// reverse proxy does X-Forwarded-For's left-most hop get consulted, so an
// untrusted client cannot spoof its bucket by setting the header itself.
func clientIPKeyFunc(trustedProxies map[string]bool) func(*http.Request) string {
	return func(r *http.Request) string {
		peer := hostOf(r.RemoteAddr)
		if !trustedProxies[peer] {
			return peer
		}
		fwd := r.Header.Get("X-Forwarded-For")
		if fwd == "" {
			return peer
		}
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
}

func hostOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
