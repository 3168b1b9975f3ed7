package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"route-limiter/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// catchAllRoute recebe a política "default" para paths sem política própria.
const catchAllRoute = "*"

type config struct {
	listenAddr      string
	adminAddr       string
	upstreamURL     string
	logLevel        string
	rateEnabled     bool
	keyHeader       string
	trustXFF        bool
	addHeaders      bool
	failClosed      bool
	decisionTimeout time.Duration
	recordDenied    bool
	prune           bool

	routesFile string
	routesEnv  string

	accessStore      string
	accessRedisAddr  string
	accessRedisPass  string
	accessRedisDB    int
	accessPrefix     string
	accessSQLitePath string
	accessLegacyTime bool
	idleTTL          time.Duration

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackClients  bool

	webhookURL string
	geoEnabled bool
	geoURL     string
	alertRPS   float64
	alertBurst int
}

// routesFile é o formato do ROUTE_LIMITS_FILE:
//
//	default: 100/60s
//	routes:
//	  /home: 5/60s
type routesFile struct {
	Default string            `yaml:"default"`
	Routes  map[string]string `yaml:"routes"`
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.adminAddr = os.Getenv("ADMIN_ADDR")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.keyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.failClosed = getenvBoolDefault("FAIL_CLOSED", false)
	cfg.decisionTimeout = getenvDurationDefault("DECISION_TIMEOUT", 500*time.Millisecond)
	cfg.recordDenied = getenvBoolDefault("RECORD_DENIED", true)
	cfg.prune = getenvBoolDefault("PRUNE_HISTORY", true)

	cfg.routesFile = os.Getenv("ROUTE_LIMITS_FILE")
	cfg.routesEnv = os.Getenv("ROUTE_LIMITS")

	cfg.accessStore = strings.ToLower(getenvDefault("ACCESS_STORE", "memory"))
	cfg.accessRedisAddr = os.Getenv("ACCESS_REDIS_ADDR")
	cfg.accessRedisPass = os.Getenv("ACCESS_REDIS_PASSWORD")
	cfg.accessRedisDB = getenvIntDefault("ACCESS_REDIS_DB", 0)
	cfg.accessPrefix = getenvDefault("ACCESS_PREFIX", "ratelimit:access")
	cfg.accessSQLitePath = getenvDefault("ACCESS_SQLITE_PATH", "limiter.db")
	cfg.accessLegacyTime = getenvBoolDefault("ACCESS_LEGACY_TIME_FORMAT", false)
	cfg.idleTTL = getenvDurationDefault("ACCESS_IDLE_TTL", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = os.Getenv("RATE_STATS_REDIS_ADDR")
	cfg.rateStatsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.rateStatsRedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", 0)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackClients = getenvBoolDefault("RATE_STATS_TRACK_CLIENTS", false)

	cfg.webhookURL = os.Getenv("WEBHOOK_URL")
	cfg.geoEnabled = getenvBoolDefault("GEO_ENABLED", true)
	cfg.geoURL = os.Getenv("GEO_URL")
	cfg.alertRPS = getenvFloatDefault("ALERT_RPS", 1)
	cfg.alertBurst = getenvIntDefault("ALERT_BURST", 5)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.accessStore {
	case "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.accessRedisAddr) == "" {
			return config{}, errors.New("ACCESS_REDIS_ADDR is required when ACCESS_STORE=redis")
		}
	default:
		return config{}, fmt.Errorf("ACCESS_STORE must be memory, redis or sqlite, got %q", cfg.accessStore)
	}
	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedisAddr) == "" {
		return config{}, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if cfg.decisionTimeout < 0 {
		return config{}, errors.New("DECISION_TIMEOUT must be >= 0")
	}
	return cfg, nil
}

// loadPolicies junta o arquivo YAML e o ROUTE_LIMITS inline ("/a=5/60s,/b=10/1m").
// O inline sobrescreve o arquivo. Qualquer política inválida é erro de setup.
func loadPolicies(file, inline string) (map[domain.RouteKey]domain.Policy, error) {
	out := make(map[domain.RouteKey]domain.Policy)

	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		var rf routesFile
		if err := yaml.Unmarshal(raw, &rf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		if rf.Default != "" {
			p, err := domain.ParsePolicy(rf.Default)
			if err != nil {
				return nil, fmt.Errorf("default: %w", err)
			}
			out[catchAllRoute] = p
		}
		for route, raw := range rf.Routes {
			p, err := domain.ParsePolicy(raw)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", route, err)
			}
			out[domain.RouteKey(route)] = p
		}
	}

	for _, item := range strings.Split(inline, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		route, raw, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("ROUTE_LIMITS: expected <route>=<limit>/<period>, got %q", item)
		}
		p, err := domain.ParsePolicy(raw)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", route, err)
		}
		out[domain.RouteKey(strings.TrimSpace(route))] = p
	}
	return out, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
