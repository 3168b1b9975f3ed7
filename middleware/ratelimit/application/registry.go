package application

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"route-limiter/middleware/ratelimit/domain"
)

// Registry guarda a política de cada rota, definida na configuração.
// Uma rota registrada não muda de política durante a vida do processo.
type Registry struct {
	mu       sync.RWMutex
	policies map[domain.RouteKey]domain.Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: make(map[domain.RouteKey]domain.Policy)}
}

// Register associa policy à rota. Registrar de novo com a mesma política é um no-op.
func (r *Registry) Register(route domain.RouteKey, policy domain.Policy) error {
	if route == "" {
		return domain.ErrInvalidKey
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("route %q: %w", route, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.policies[route]; ok {
		if cur != policy {
			return fmt.Errorf("%w: %q has %s, got %s", domain.ErrPolicyConflict, route, cur, policy)
		}
		return nil
	}
	r.policies[route] = policy
	return nil
}

func (r *Registry) Lookup(route domain.RouteKey) (domain.Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[route]
	return p, ok
}

// Routes devolve as rotas registradas em ordem alfabética.
func (r *Registry) Routes() []domain.RouteKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RouteKey, 0, len(r.policies))
	for k := range r.policies {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MaxPeriod é o maior period registrado (útil para TTL/limpeza nos stores).
func (r *Registry) MaxPeriod() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max time.Duration
	for _, p := range r.policies {
		if p.Period > max {
			max = p.Period
		}
	}
	return max
}
