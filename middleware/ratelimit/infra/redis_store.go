package infra

import (
	"context"
	"errors"
	"strings"
	"time"

	"route-limiter/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisAccessStore guarda um hash por cliente: <prefix>:client:<clientKey>,
// com um campo por rota cujo valor é o log codificado.
//
// HSET de um campo é atômico, então Saves de rotas diferentes do mesmo
// cliente não se atropelam.
type RedisAccessStore struct {
	rdb redis.UniversalClient

	prefix string
	codec  Codec
	// ttl é renovado a cada Save. Se 0, as chaves não expiram.
	ttl time.Duration
}

type RedisAccessOption func(*RedisAccessStore)

func WithAccessPrefix(prefix string) RedisAccessOption {
	return func(s *RedisAccessStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithAccessTTL(d time.Duration) RedisAccessOption {
	return func(s *RedisAccessStore) { s.ttl = d }
}

func WithAccessCodec(c Codec) RedisAccessOption {
	return func(s *RedisAccessStore) { s.codec = c }
}

func NewRedisAccessStore(rdb redis.UniversalClient, opts ...RedisAccessOption) *RedisAccessStore {
	s := &RedisAccessStore{
		rdb:    rdb,
		prefix: "ratelimit:access",
		codec:  JSONCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisAccessStore) clientKey(client domain.ClientKey) string {
	return s.prefix + ":client:" + string(client)
}

func (s *RedisAccessStore) Load(ctx context.Context, client domain.ClientKey, route domain.RouteKey) (domain.AccessLog, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.clientKey(client), string(route)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	log, err := s.codec.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return log, true, nil
}

func (s *RedisAccessStore) Save(ctx context.Context, client domain.ClientKey, route domain.RouteKey, log domain.AccessLog) error {
	raw, err := s.codec.Encode(log)
	if err != nil {
		return err
	}

	key := s.clientKey(client)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, string(route), raw)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Keys varre as chaves com SCAN (não bloqueia o Redis como KEYS).
func (s *RedisAccessStore) Keys(ctx context.Context) ([]domain.ClientKey, error) {
	base := s.prefix + ":client:"
	var out []domain.ClientKey
	iter := s.rdb.Scan(ctx, 0, base+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, domain.ClientKey(strings.TrimPrefix(iter.Val(), base)))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisAccessStore) Get(ctx context.Context, client domain.ClientKey) (domain.ClientRecord, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, s.clientKey(client)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	rec := make(domain.ClientRecord, len(fields))
	for route, raw := range fields {
		log, err := s.codec.Decode([]byte(raw))
		if err != nil {
			return nil, false, err
		}
		rec[domain.RouteKey(route)] = log
	}
	return rec, true, nil
}
