package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"route-limiter/middleware/ratelimit"
	"route-limiter/middleware/ratelimit/application"
	"route-limiter/middleware/ratelimit/domain"
	"route-limiter/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.logLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func run(cfg config, logger *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	policies, err := loadPolicies(cfg.routesFile, cfg.routesEnv)
	if err != nil {
		return err
	}
	registry := application.NewRegistry()
	for route, p := range policies {
		if err := registry.Register(route, p); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openAccessStore(ctx, cfg, registry.MaxPeriod())
	if err != nil {
		return err
	}
	defer closeStore()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promStats, err := infra.NewPrometheusStatsStore(promReg)
	if err != nil {
		return err
	}
	stats := infra.MultiStats{promStats}

	if cfg.rateStatsEnabled {
		rdb, err := dialRedis(ctx, cfg.rateStatsRedisAddr, cfg.rateStatsRedisPassword, cfg.rateStatsRedisDB)
		if err != nil {
			return fmt.Errorf("redis stats: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackClients(cfg.rateStatsTrackClients),
		))
	}

	var alerts ratelimit.AlertSink
	if cfg.webhookURL != "" {
		opts := []infra.AlertOption{
			infra.WithAlertLogger(logger.Named("alerts")),
			infra.WithAlertRate(cfg.alertRPS, cfg.alertBurst),
		}
		if cfg.geoEnabled {
			opts = append(opts, infra.WithAlertGeoLocator(infra.NewHTTPGeoLocator(cfg.geoURL)))
		}
		d := infra.NewAlertDispatcher(infra.NewWebhookNotifier(cfg.webhookURL), opts...)
		d.Start(ctx)
		alerts = d
	}

	limiter := ratelimit.New(ratelimit.Options{
		Store:    store,
		Registry: registry,
		EngineOptions: []application.EngineOption{
			application.WithRecordDenied(cfg.recordDenied),
			application.WithPrune(cfg.prune),
		},
		Stats:               stats,
		Alerts:              alerts,
		Logger:              logger.Named("ratelimit"),
		KeyHeader:           cfg.keyHeader,
		TrustXForwardedFor:  cfg.trustXFF,
		FailClosed:          cfg.failClosed,
		Timeout:             cfg.decisionTimeout,
		AddRateLimitHeaders: cfg.addHeaders,
	})

	h := http.Handler(proxy)
	if cfg.rateEnabled {
		h = gatewayLimit(limiter)(h)
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	servers := []*http.Server{srv}

	if cfg.adminAddr != "" {
		admin := http.NewServeMux()
		admin.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		if insp, ok := store.(domain.AccessInspector); ok {
			admin.Handle("/clients", ratelimit.IntrospectionHandler(insp, logger.Named("introspection")))
		}
		servers = append(servers, &http.Server{
			Addr:              cfg.adminAddr,
			Handler:           admin,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.String("admin", cfg.adminAddr))
	for _, route := range registry.Routes() {
		p, _ := registry.Lookup(route)
		logger.Info("route policy", zap.String("route", string(route)), zap.Stringer("policy", p))
	}
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.String("store", cfg.accessStore),
		zap.String("keyHeader", cfg.keyHeader),
		zap.Bool("trustXFF", cfg.trustXFF),
		zap.Bool("failClosed", cfg.failClosed),
		zap.Bool("alerts", alerts != nil))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s := s
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

// gatewayLimit usa o path como rota. Paths sem política própria usam a
// política "*" (default), mas continuam com a própria chave de rota: /a e /b
// não dividem a cota. Sem default, passam direto.
func gatewayLimit(l *ratelimit.Limiter) func(next http.Handler) http.Handler {
	registry := l.Registry()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := domain.RouteKey(ratelimit.DefaultRouteFunc(r))
			policy, ok := registry.Lookup(route)
			if !ok {
				policy, ok = registry.Lookup(catchAllRoute)
			}
			if ok && !l.Enforce(w, r, route, policy) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func openAccessStore(ctx context.Context, cfg config, maxPeriod time.Duration) (domain.AccessStore, func(), error) {
	var codec infra.Codec = infra.JSONCodec{}
	if cfg.accessLegacyTime {
		codec = infra.LegacyCodec{}
	}

	switch cfg.accessStore {
	case "redis":
		rdb, err := dialRedis(ctx, cfg.accessRedisAddr, cfg.accessRedisPass, cfg.accessRedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("redis access store: %w", err)
		}
		ttl := cfg.idleTTL
		if ttl == 0 {
			ttl = 2 * maxPeriod
		}
		s := infra.NewRedisAccessStore(rdb,
			infra.WithAccessPrefix(cfg.accessPrefix),
			infra.WithAccessTTL(ttl),
			infra.WithAccessCodec(codec))
		return s, func() { _ = rdb.Close() }, nil

	case "sqlite":
		s, err := infra.OpenSQLiteAccessStore(ctx, cfg.accessSQLitePath, infra.WithSQLCodec(codec))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	default:
		idle := cfg.idleTTL
		if idle == 0 {
			idle = 15 * time.Minute
			if 2*maxPeriod > idle {
				idle = 2 * maxPeriod
			}
		}
		s := infra.NewMemoryAccessStore(infra.WithIdleTTL(idle))
		s.StartJanitor(ctx)
		return s, func() {}, nil
	}
}

func dialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
