package application

import (
	"context"
	"time"

	"route-limiter/middleware/ratelimit/domain"
	"route-limiter/middleware/ratelimit/infra"
)

// Engine concentra a regra de janela deslizante por (cliente, rota).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas registra o acesso e
// retorna um Verdict.
//
// Regra de decisão: o acesso atual entra na contagem. Com `before` entradas
// dentro da janela (t > now-period), a requisição é negada se
// before+1 > limit. Ou seja, a (limit+1)-ésima requisição dentro da janela é a
// primeira negada. Isso reproduz o comportamento original (append e depois
// `count > limit`) e não deve ser "corrigido": clientes dependem dele.
type Engine struct {
	store        domain.AccessStore
	locks        domain.KeyLocker
	lockTimeout  time.Duration
	prune        bool
	recordDenied bool
}

type EngineOption func(*Engine)

// WithLockTimeout limita a espera pelo lock da chave. Se <= 0, espera até o ctx cancelar.
func WithLockTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithPrune controla o descarte de entradas fora da janela antes de salvar.
// Padrão: true. Com false, o log cresce sem limite (comportamento original).
func WithPrune(prune bool) EngineOption {
	return func(e *Engine) { e.prune = prune }
}

// WithRecordDenied controla se requisições negadas também entram no log.
// Padrão: true (toda requisição é registrada, negada ou não).
func WithRecordDenied(record bool) EngineOption {
	return func(e *Engine) { e.recordDenied = record }
}

// NewEngine monta o engine. Com locks nil usa infra.NewKeyLocks(): sem lock por
// chave dois Record concorrentes perderiam appends.
func NewEngine(store domain.AccessStore, locks domain.KeyLocker, opts ...EngineOption) *Engine {
	if locks == nil {
		locks = infra.NewKeyLocks()
	}
	e := &Engine{
		store:        store,
		locks:        locks,
		prune:        true,
		recordDenied: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Record registra o acesso `now` de client em route e decide se ele está dentro da cota.
//
// Load, decisão e Save acontecem sob o lock da chave (client, route), então
// duas chamadas concorrentes para a mesma chave nunca perdem um append nem
// enxergam a mesma contagem.
func (e *Engine) Record(ctx context.Context, client domain.ClientKey, route domain.RouteKey, now time.Time, policy domain.Policy) (domain.Verdict, error) {
	if err := policy.Validate(); err != nil {
		return domain.Verdict{}, err
	}
	if client == "" || route == "" {
		return domain.Verdict{}, domain.ErrInvalidKey
	}

	unlock, err := e.lock(ctx, lockKey(client, route))
	if err != nil {
		return domain.Verdict{}, err
	}
	defer unlock()

	history, _, err := e.store.Load(ctx, client, route)
	if err != nil {
		return domain.Verdict{}, &domain.StorageError{Op: "load", Err: err}
	}

	windowStart := now.Add(-policy.Period)
	before := history.CountAfter(windowStart)
	count := before + 1
	allowed := count <= policy.Limit

	next := history
	if e.prune {
		next = pruneBefore(history, windowStart)
	}
	if allowed || e.recordDenied {
		next = append(next.Clone(), now)
	}

	if err := e.store.Save(ctx, client, route, next); err != nil {
		return domain.Verdict{}, &domain.StorageError{Op: "save", Err: err}
	}

	v := domain.Verdict{
		Allowed: allowed,
		Count:   count,
		Limit:   policy.Limit,
		History: next.Clone(),
		At:      now,
	}
	if count < policy.Limit {
		v.Remaining = policy.Limit - count
	}
	v.RetryAfter = retryAfter(next, windowStart, now, policy)
	return v, nil
}

func (e *Engine) lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StorageError{Op: "lock", Err: err}
	}

	acqCtx := ctx
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}

	unlock, ok := e.locks.Lock(acqCtx, key)
	if !ok {
		err := acqCtx.Err()
		if err == nil {
			err = context.Canceled
		}
		return nil, &domain.StorageError{Op: "lock", Err: err}
	}
	return unlock, nil
}

// "\x00" não aparece em IP nem em pattern de rota.
func lockKey(client domain.ClientKey, route domain.RouteKey) string {
	return string(client) + "\x00" + string(route)
}

// pruneBefore descarta as entradas <= cutoff. Como o period da rota é fixo,
// essas entradas nunca mais contam para nenhuma decisão.
func pruneBefore(log domain.AccessLog, cutoff time.Time) domain.AccessLog {
	out := make(domain.AccessLog, 0, len(log))
	for _, at := range log {
		if at.After(cutoff) {
			out = append(out, at)
		}
	}
	return out
}

// retryAfter calcula quanto falta até que a próxima requisição caiba no limite,
// considerando apenas o log salvo (sem novos acessos no meio).
func retryAfter(log domain.AccessLog, windowStart, now time.Time, policy domain.Policy) time.Duration {
	inWindow := make(domain.AccessLog, 0, len(log))
	for _, at := range log {
		if at.After(windowStart) {
			inWindow = append(inWindow, at)
		}
	}
	// a próxima passa quando sobrarem no máximo limit-1 entradas na janela
	expire := len(inWindow) - policy.Limit + 1
	if expire <= 0 {
		return 0
	}
	d := inWindow[expire-1].Add(policy.Period).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
