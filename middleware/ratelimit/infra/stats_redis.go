package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"route-limiter/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore conta decisões em hashes do Redis:
//
//	<prefix>:total                      allowed/denied
//	<prefix>:minute:<yyyymmddhhmm>       série por minuto (expira)
//	<prefix>:route:<route>               acumulado por rota
//	<prefix>:route:<route>:minute:<ts>   série por rota (expira)
//	<prefix>:client:<client>             opcional, expira
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl vale para as séries por minuto e por cliente; total e rota não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackClients bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackClients(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackClients = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}
	minute := at.UTC().Format("200601021504")

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	if s.bucket == "minute" {
		s.incrExpiring(ctx, pipe, s.prefix+":minute:"+minute, field)
	}

	// uma hash por rota: é o que o operador olha para calibrar a política
	if route := strings.TrimSpace(string(statsRoute(ev))); route != "" {
		routeKey := s.routeKey(domain.RouteKey(route))
		pipe.HIncrBy(ctx, routeKey, field, 1)
		if s.bucket == "minute" {
			s.incrExpiring(ctx, pipe, routeKey+":minute:"+minute, field)
		}
	}

	if s.trackClients {
		if c := strings.TrimSpace(string(ev.Client)); c != "" {
			s.incrExpiring(ctx, pipe, s.prefix+":client:"+c, field)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// RouteCounters lê os contadores acumulados de uma rota.
func (s *RedisStatsStore) RouteCounters(ctx context.Context, route domain.RouteKey) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.routeKey(route)).Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	if v, ok := vals["allowed"]; ok {
		if c.Allowed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Counters{}, fmt.Errorf("route %s: allowed: %w", route, err)
		}
	}
	if v, ok := vals["denied"]; ok {
		if c.Denied, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Counters{}, fmt.Errorf("route %s: denied: %w", route, err)
		}
	}
	return c, nil
}

func (s *RedisStatsStore) routeKey(route domain.RouteKey) string {
	return s.prefix + ":route:" + string(route)
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}
