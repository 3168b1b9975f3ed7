package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"route-limiter/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_CountsByRouteAndClient(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackClients(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Client: "ip1", Route: "/home", Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Client: "ip1", Route: "/home", Allowed: false})
	_ = s.Record(ctx, domain.StatsEvent{Client: "ip2", Method: "GET", Path: "/x", Allowed: true})

	require.Equal(t, Counters{Allowed: 2, Denied: 1}, s.Total())
	require.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByRoute()["/home"])
	require.Equal(t, Counters{Allowed: 1}, s.ByRoute()["GET /x"])
	require.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByClient()["ip1"])
}

func TestMemoryStatsStore_ClientsNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Client: "ip1", Route: "/home", Allowed: true})
	require.Empty(t, s.ByClient())
}

func TestPrometheusStatsStore_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusStatsStore(reg)
	require.NoError(t, err)
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Route: "/home", Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Route: "/home", Allowed: false})
	_ = s.Record(ctx, domain.StatsEvent{Route: "/home", Allowed: false})

	require.Equal(t, 1.0, testutil.ToFloat64(s.decisions.WithLabelValues("/home", "allowed")))
	require.Equal(t, 2.0, testutil.ToFloat64(s.decisions.WithLabelValues("/home", "denied")))

	_, err = NewPrometheusStatsStore(reg)
	require.Error(t, err, "registering twice must fail")
}

type failingStats struct{ err error }

func (f failingStats) Record(context.Context, domain.StatsEvent) error { return f.err }

func TestMultiStats_RecordsEverywhereAndReturnsFirstError(t *testing.T) {
	mem := NewMemoryStatsStore()
	boom := errors.New("boom")
	m := MultiStats{failingStats{err: boom}, nil, mem}

	err := m.Record(context.Background(), domain.StatsEvent{Route: "/home", Allowed: true})
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(1), mem.Total().Allowed)
}
