package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"route-limiter/middleware/ratelimit/application"
	"route-limiter/middleware/ratelimit/domain"
	"route-limiter/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

// RouteFunc devolve a chave lógica da rota (ex: "/users/{id}", não "/users/42").
type RouteFunc func(r *http.Request) string

// AlertSink recebe os alertas de estouro. Dispatch não pode bloquear.
type AlertSink interface {
	Dispatch(a domain.Alert) bool
}

type Options struct {
	Store domain.AccessStore
	// Locks padrão: infra.NewKeyLocks().
	Locks domain.KeyLocker
	// EngineOptions são repassadas para application.NewEngine.
	EngineOptions []application.EngineOption
	Registry      *application.Registry

	Stats  domain.StatsStore
	Alerts AlertSink
	Logger *zap.Logger
	Now    func() time.Time

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RouteFn            RouteFunc

	RejectStatus int
	// FailClosed responde FailClosedStatus quando o store falha.
	// Padrão (false): deixa passar e loga um warning.
	FailClosed       bool
	FailClosedStatus int
	// Timeout limita cada decisão (lock + load + save). Estourar vira StorageError.
	Timeout time.Duration

	AddRateLimitHeaders bool
}

// Limiter amarra engine, registro de políticas e os efeitos HTTP (429, headers,
// stats, alertas).
type Limiter struct {
	opts     Options
	engine   *application.Engine
	registry *application.Registry
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// DefaultRouteFunc usa o pattern que o ServeMux casou (Go 1.23+) e cai para o path.
func DefaultRouteFunc(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

func New(opts Options) *Limiter {
	if opts.Store == nil {
		opts.Store = infra.NewMemoryAccessStore()
	}
	if opts.Locks == nil {
		opts.Locks = infra.NewKeyLocks()
	}
	if opts.Registry == nil {
		opts.Registry = application.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = DefaultRouteFunc
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.FailClosedStatus == 0 {
		opts.FailClosedStatus = http.StatusServiceUnavailable
	}

	return &Limiter{
		opts:     opts,
		engine:   application.NewEngine(opts.Store, opts.Locks, opts.EngineOptions...),
		registry: opts.Registry,
	}
}

func (l *Limiter) Engine() *application.Engine     { return l.engine }
func (l *Limiter) Registry() *application.Registry { return l.registry }
func (l *Limiter) Logger() *zap.Logger             { return l.opts.Logger }

// Limit registra (limit, period) para route e devolve o middleware da rota.
// É o equivalente ao decorator: chame na montagem das rotas, antes de servir.
func (l *Limiter) Limit(route string, limit int, period time.Duration) (func(next http.Handler) http.Handler, error) {
	rk := domain.RouteKey(route)
	policy := domain.Policy{Limit: limit, Period: period}
	if err := l.registry.Register(rk, policy); err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Enforce(w, r, rk, policy) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// MustLimit é Limit que entra em pânico com política inválida (setup).
func (l *Limiter) MustLimit(route string, limit int, period time.Duration) func(next http.Handler) http.Handler {
	mw, err := l.Limit(route, limit, period)
	if err != nil {
		panic(fmt.Sprintf("ratelimit: %v", err))
	}
	return mw
}

// Middleware aplica as políticas do registro usando RouteFn para achar a rota.
// Rotas sem política passam direto.
func (l *Limiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rk := domain.RouteKey(l.opts.RouteFn(r))
			if !l.enforceRegistered(w, r, rk) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Mux envolve um ServeMux e usa o pattern casado como chave da rota,
// então "/users/{id}" é uma rota só, qualquer que seja o id.
func (l *Limiter) Mux(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		if pattern != "" && !l.enforceRegistered(w, r, domain.RouteKey(pattern)) {
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (l *Limiter) enforceRegistered(w http.ResponseWriter, r *http.Request, rk domain.RouteKey) bool {
	policy, ok := l.registry.Lookup(rk)
	if !ok {
		return true
	}
	return l.Enforce(w, r, rk, policy)
}

// Enforce decide a requisição. Se retornar false a resposta já foi escrita
// (429, ou FailClosedStatus quando o store falha em modo fail-closed).
func (l *Limiter) Enforce(w http.ResponseWriter, r *http.Request, route domain.RouteKey, policy domain.Policy) bool {
	client := domain.ClientKey(l.opts.KeyFn(r))

	ctx := r.Context()
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	v, err := l.engine.Record(ctx, client, route, l.opts.Now(), policy)
	if err != nil {
		return l.onError(w, client, route, err)
	}

	if l.opts.AddRateLimitHeaders {
		w.Header().Set("X-RateLimit-Limit", formatInt(v.Limit))
		w.Header().Set("X-RateLimit-Remaining", formatInt(v.Remaining))
		w.Header().Set("X-RateLimit-Reset", formatSeconds(v.RetryAfter))
	}

	if l.opts.Stats != nil {
		if err := l.opts.Stats.Record(r.Context(), domain.StatsEvent{
			Client:  client,
			Route:   route,
			Allowed: v.Allowed,
			Method:  r.Method,
			Path:    r.URL.Path,
			At:      v.At,
		}); err != nil {
			l.opts.Logger.Debug("rate limit stats failed", zap.Error(err))
		}
	}

	if v.Allowed {
		return true
	}

	if l.opts.Alerts != nil {
		l.opts.Alerts.Dispatch(domain.Alert{
			Client:  client,
			Route:   route,
			Policy:  policy,
			Count:   v.Count,
			At:      v.At,
			History: v.History,
		})
	}

	retry := v.RetryAfter
	if retry < time.Second {
		retry = time.Second
	}
	w.Header().Set("Retry-After", formatSeconds(retry))
	http.Error(w, http.StatusText(l.opts.RejectStatus), l.opts.RejectStatus)
	return false
}

func (l *Limiter) onError(w http.ResponseWriter, client domain.ClientKey, route domain.RouteKey, err error) bool {
	fields := []zap.Field{
		zap.String("client", string(client)),
		zap.String("route", string(route)),
		zap.Error(err),
	}
	if l.opts.FailClosed {
		l.opts.Logger.Error("rate limit check failed, rejecting request", fields...)
		http.Error(w, http.StatusText(l.opts.FailClosedStatus), l.opts.FailClosedStatus)
		return false
	}
	l.opts.Logger.Warn("rate limit check failed, allowing request", fields...)
	return true
}
