package infra

import (
	"context"

	"route-limiter/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore conta decisões por rota em um CounterVec.
// Não usa o cliente como label (cardinalidade).
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "route_limiter",
		Name:      "decisions_total",
		Help:      "Rate limit decisions by route and outcome.",
	}, []string{"route", "decision"})

	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	decision := "denied"
	if ev.Allowed {
		decision = "allowed"
	}
	s.decisions.WithLabelValues(string(statsRoute(ev)), decision).Inc()
	return nil
}

// MultiStats repassa o evento para vários StatsStore e devolve o primeiro erro.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
