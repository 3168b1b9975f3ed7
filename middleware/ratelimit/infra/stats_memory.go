package infra

import (
	"context"
	"sync"

	"route-limiter/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[domain.RouteKey]Counters
	byClient map[domain.ClientKey]Counters

	trackClients bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackClients(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackClients = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[domain.RouteKey]Counters),
		byClient: make(map[domain.ClientKey]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	route := statsRoute(ev)
	c := s.byRoute[route]
	c.add(ev.Allowed)
	s.byRoute[route] = c

	if s.trackClients && ev.Client != "" {
		k := s.byClient[ev.Client]
		k.add(ev.Allowed)
		s.byClient[ev.Client] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[domain.RouteKey]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.RouteKey]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByClient() map[domain.ClientKey]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ClientKey]Counters, len(s.byClient))
	for k, v := range s.byClient {
		out[k] = v
	}
	return out
}

// statsRoute usa a rota lógica quando existe; senão cai para "METHOD path".
func statsRoute(ev domain.StatsEvent) domain.RouteKey {
	if ev.Route != "" {
		return ev.Route
	}
	return domain.RouteKey(ev.Method + " " + ev.Path)
}
