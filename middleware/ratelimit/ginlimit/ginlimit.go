// Package ginlimit liga o ratelimit.Limiter a rotas do gin.
//
// A chave da rota é c.FullPath() (o pattern casado, ex: "/users/:id"), então
// todos os ids de um endpoint dividem a mesma cota.
package ginlimit

import (
	"sync"
	"time"

	"route-limiter/middleware/ratelimit"
	"route-limiter/middleware/ratelimit/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limit devolve um gin.HandlerFunc que aplica (limit, period) à rota em que foi
// montado. A política é registrada na primeira requisição de cada rota, já que
// o gin só conhece o FullPath em tempo de request. Para falhar no setup,
// registre antes com l.Registry().Register e use Registered.
func Limit(l *ratelimit.Limiter, limit int, period time.Duration) gin.HandlerFunc {
	policy := domain.Policy{Limit: limit, Period: period}
	if err := policy.Validate(); err != nil {
		panic("ginlimit: " + err.Error())
	}
	// loga o conflito uma vez por rota
	var conflicts sync.Map

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			// 404 do gin: não há rota lógica para limitar
			c.Next()
			return
		}
		rk := domain.RouteKey(route)
		effective := policy
		if err := l.Registry().Register(rk, policy); err != nil {
			// a rota já tem outra política: vale a registrada, nunca "sem limite"
			if cur, ok := l.Registry().Lookup(rk); ok {
				effective = cur
			}
			if _, loaded := conflicts.LoadOrStore(rk, struct{}{}); !loaded {
				l.Logger().Warn("route policy conflict, using registered policy",
					zap.String("route", route),
					zap.Stringer("registered", effective),
					zap.Stringer("ignored", policy),
					zap.Error(err))
			}
		}
		if !l.Enforce(c.Writer, c.Request, rk, effective) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// Registered aplica a política que já está no registro para c.FullPath().
// Rotas sem política passam direto. Útil como middleware global (r.Use).
func Registered(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		rk := domain.RouteKey(c.FullPath())
		policy, ok := l.Registry().Lookup(rk)
		if !ok {
			c.Next()
			return
		}
		if !l.Enforce(c.Writer, c.Request, rk, policy) {
			c.Abort()
			return
		}
		c.Next()
	}
}
