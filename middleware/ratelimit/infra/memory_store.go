package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"route-limiter/middleware/ratelimit/domain"
)

// MemoryAccessStore guarda os logs de acesso em memória, por cliente e rota,
// com limpeza periódica de clientes inativos.
//
// Load/Save copiam os slices: quem chama nunca compartilha memória com o store.
type MemoryAccessStore struct {
	mu           sync.Mutex
	clients      map[domain.ClientKey]*clientEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type clientEntry struct {
	routes   map[domain.RouteKey]domain.AccessLog
	lastSeen time.Time
}

type MemoryStoreOption func(*MemoryAccessStore)

// WithIdleTTL define depois de quanto tempo sem acesso um cliente é descartado.
// Use um valor >= ao maior period registrado, senão o histórico some antes da hora.
// Se <= 0, nunca descarta.
func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemoryAccessStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryAccessStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado para lastSeen (útil em testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryAccessStore) { s.now = now }
}

func NewMemoryAccessStore(opts ...MemoryStoreOption) *MemoryAccessStore {
	s := &MemoryAccessStore{
		clients:      make(map[domain.ClientKey]*clientEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryAccessStore) IdleTTL() time.Duration      { return s.idleTTL }
func (s *MemoryAccessStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Load implementa domain.AccessStore.
func (s *MemoryAccessStore) Load(_ context.Context, client domain.ClientKey, route domain.RouteKey) (domain.AccessLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.clients[client]
	if !ok {
		return nil, false, nil
	}
	log, ok := ent.routes[route]
	if !ok {
		return nil, false, nil
	}
	return log.Clone(), true, nil
}

// Save implementa domain.AccessStore. Só a rota informada é reescrita.
func (s *MemoryAccessStore) Save(_ context.Context, client domain.ClientKey, route domain.RouteKey, log domain.AccessLog) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.clients[client]
	if !ok {
		ent = &clientEntry{routes: make(map[domain.RouteKey]domain.AccessLog)}
		s.clients[client] = ent
	}
	ent.routes[route] = log.Clone()
	ent.lastSeen = now
	return nil
}

// Keys implementa domain.AccessInspector.
func (s *MemoryAccessStore) Keys(_ context.Context) ([]domain.ClientKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ClientKey, 0, len(s.clients))
	for k := range s.clients {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Get implementa domain.AccessInspector.
func (s *MemoryAccessStore) Get(_ context.Context, client domain.ClientKey) (domain.ClientRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.clients[client]
	if !ok {
		return nil, false, nil
	}
	rec := make(domain.ClientRecord, len(ent.routes))
	for r, log := range ent.routes {
		rec[r] = log.Clone()
	}
	return rec, true, nil
}

func (s *MemoryAccessStore) Cleanup() {
	if s.idleTTL <= 0 {
		return
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.clients {
		if ent.lastSeen.Before(cutoff) {
			delete(s.clients, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa clientes inativos periodicamente.
// Pare cancelando o contexto.
func (s *MemoryAccessStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}
