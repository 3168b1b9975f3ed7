package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"route-limiter/middleware/ratelimit"
	"route-limiter/middleware/ratelimit/application"
	"route-limiter/middleware/ratelimit/domain"
	"route-limiter/middleware/ratelimit/infra"

	"github.com/stretchr/testify/require"
)

func writeRoutesFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicies_FileAndInline(t *testing.T) {
	path := writeRoutesFile(t, `
default: 100/60s
routes:
  /home: 5/60s
  /random: 5/60s
`)

	got, err := loadPolicies(path, "/random=10/30s, /admin=1/1s")
	require.NoError(t, err)

	require.Equal(t, map[domain.RouteKey]domain.Policy{
		catchAllRoute: {Limit: 100, Period: time.Minute},
		"/home":       {Limit: 5, Period: time.Minute},
		"/random":     {Limit: 10, Period: 30 * time.Second},
		"/admin":      {Limit: 1, Period: time.Second},
	}, got)
}

func TestLoadPolicies_Empty(t *testing.T) {
	got, err := loadPolicies("", "")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLoadPolicies_InvalidPolicy(t *testing.T) {
	_, err := loadPolicies("", "/home=0/60s")
	require.ErrorIs(t, err, domain.ErrInvalidPolicy)

	path := writeRoutesFile(t, "routes:\n  /home: 5/never\n")
	_, err = loadPolicies(path, "")
	require.ErrorIs(t, err, domain.ErrInvalidPolicy)
}

func TestLoadPolicies_MalformedInput(t *testing.T) {
	_, err := loadPolicies("", "/home:5/60s")
	require.Error(t, err)

	path := writeRoutesFile(t, "routes: [oops")
	_, err = loadPolicies(path, "")
	require.Error(t, err)

	_, err = loadPolicies(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
}

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:9000")

	cfg, err := readConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.listenAddr)
	require.Equal(t, "memory", cfg.accessStore)
	require.True(t, cfg.rateEnabled)
	require.True(t, cfg.recordDenied)
	require.True(t, cfg.prune)
	require.False(t, cfg.failClosed)
	require.Equal(t, 500*time.Millisecond, cfg.decisionTimeout)
}

func TestReadConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing upstream", map[string]string{}},
		{"unknown store", map[string]string{"UPSTREAM_URL": "http://x", "ACCESS_STORE": "pickle"}},
		{"redis without addr", map[string]string{"UPSTREAM_URL": "http://x", "ACCESS_STORE": "redis"}},
		{"stats without addr", map[string]string{"UPSTREAM_URL": "http://x", "RATE_STATS_ENABLED": "true"}},
		{"negative timeout", map[string]string{"UPSTREAM_URL": "http://x", "DECISION_TIMEOUT": "-1s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("UPSTREAM_URL", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := readConfig()
			require.Error(t, err)
		})
	}
}

func TestGatewayLimit_DefaultPolicyKeepsRoutesIndependent(t *testing.T) {
	reg := application.NewRegistry()
	require.NoError(t, reg.Register(catchAllRoute, domain.Policy{Limit: 2, Period: time.Minute}))
	require.NoError(t, reg.Register("/home", domain.Policy{Limit: 1, Period: time.Minute}))
	store := infra.NewMemoryAccessStore()
	l := ratelimit.New(ratelimit.Options{Store: store, Registry: reg})

	h := gatewayLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	get := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, get("/a"))
	require.Equal(t, http.StatusOK, get("/a"))
	require.Equal(t, http.StatusOK, get("/b"))
	require.Equal(t, http.StatusOK, get("/b"))
	require.Equal(t, http.StatusTooManyRequests, get("/a"))
	require.Equal(t, http.StatusTooManyRequests, get("/b"))

	// política própria vence a default
	require.Equal(t, http.StatusOK, get("/home"))
	require.Equal(t, http.StatusTooManyRequests, get("/home"))

	rec, ok, err := store.Get(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rec["/a"], 3)
	require.Len(t, rec["/b"], 3)
	require.NotContains(t, rec, domain.RouteKey(catchAllRoute))
}

func TestGatewayLimit_NoDefaultPassesThrough(t *testing.T) {
	reg := application.NewRegistry()
	require.NoError(t, reg.Register("/home", domain.Policy{Limit: 1, Period: time.Minute}))
	l := ratelimit.New(ratelimit.Options{Registry: reg})

	h := gatewayLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
