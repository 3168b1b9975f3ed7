package infra

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"route-limiter/middleware/ratelimit/domain"
)

func openTestSQLite(t *testing.T) (*SQLAccessStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "limiter.db")
	s, err := OpenSQLiteAccessStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLAccessStore_RoundTrip(t *testing.T) {
	s, _ := openTestSQLite(t)
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "ip1", "/home")
	require.NoError(t, err)
	require.False(t, ok)

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 7, time.UTC)
	in := domain.AccessLog{t0, t0.Add(time.Second)}
	require.NoError(t, s.Save(ctx, "ip1", "/home", in))
	in = append(in, t0.Add(2*time.Second))
	require.NoError(t, s.Save(ctx, "ip1", "/home", in))

	out, ok, err := s.Load(ctx, "ip1", "/home")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, out, 3)
	for i := range in {
		require.True(t, in[i].Equal(out[i]))
	}
}

func TestSQLAccessStore_SurvivesReopen(t *testing.T) {
	s, path := openTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "ip1", "/home", domain.AccessLog{time.Unix(10, 0)}))
	require.NoError(t, s.Close())

	s2, err := OpenSQLiteAccessStore(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	out, ok, err := s2.Load(ctx, "ip1", "/home")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, out[0].Equal(time.Unix(10, 0)))
}

func TestSQLAccessStore_Introspection(t *testing.T) {
	s, _ := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "ip2", "/home", domain.AccessLog{time.Unix(1, 0)}))
	require.NoError(t, s.Save(ctx, "ip1", "/home", domain.AccessLog{time.Unix(2, 0)}))
	require.NoError(t, s.Save(ctx, "ip1", "/random", domain.AccessLog{time.Unix(3, 0)}))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.ClientKey{"ip1", "ip2"}, keys)

	rec, ok, err := s.Get(ctx, "ip1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rec, 2)

	_, ok, err = s.Get(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}
