package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"route-limiter/middleware/ratelimit/domain"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("/home", domain.Policy{Limit: 5, Period: time.Minute}))
	require.NoError(t, r.Register("/random", domain.Policy{Limit: 2, Period: time.Hour}))

	p, ok := r.Lookup("/home")
	require.True(t, ok)
	require.Equal(t, 5, p.Limit)

	_, ok = r.Lookup("/missing")
	require.False(t, ok)

	require.Equal(t, []domain.RouteKey{"/home", "/random"}, r.Routes())
	require.Equal(t, time.Hour, r.MaxPeriod())
}

func TestRegistry_RejectsInvalidPolicy(t *testing.T) {
	r := NewRegistry()
	err := r.Register("/home", domain.Policy{Limit: 0, Period: time.Minute})
	require.ErrorIs(t, err, domain.ErrInvalidPolicy)

	err = r.Register("/home", domain.Policy{Limit: 1, Period: -time.Second})
	require.ErrorIs(t, err, domain.ErrInvalidPolicy)

	require.Empty(t, r.Routes())
}

func TestRegistry_PolicyIsFixedPerRoute(t *testing.T) {
	r := NewRegistry()
	p := domain.Policy{Limit: 5, Period: time.Minute}
	require.NoError(t, r.Register("/home", p))
	require.NoError(t, r.Register("/home", p))

	err := r.Register("/home", domain.Policy{Limit: 6, Period: time.Minute})
	require.ErrorIs(t, err, domain.ErrPolicyConflict)
}
