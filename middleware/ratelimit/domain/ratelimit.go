package domain

// Camada de domínio do rate limit por janela deslizante.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClientKey identifica quem faz a requisição (normalmente o IP).
type ClientKey string

// RouteKey identifica o endpoint lógico (ex: o pattern do mux, não o path cru).
type RouteKey string

// AccessLog é a sequência de instantes de acesso de um cliente a uma rota,
// em ordem de inserção (= ordem cronológica).
type AccessLog []time.Time

// Clone devolve uma cópia independente do log.
func (l AccessLog) Clone() AccessLog {
	if l == nil {
		return nil
	}
	out := make(AccessLog, len(l))
	copy(out, l)
	return out
}

// CountAfter conta as entradas estritamente posteriores a t.
func (l AccessLog) CountAfter(t time.Time) int {
	n := 0
	for _, at := range l {
		if at.After(t) {
			n++
		}
	}
	return n
}

// ClientRecord agrupa os logs de um cliente por rota.
type ClientRecord map[RouteKey]AccessLog

// Policy é o par (limit, period) associado a uma rota no registro.
// Não muda durante a vida do processo.
type Policy struct {
	Limit  int
	Period time.Duration
}

func (p Policy) Validate() error {
	if p.Limit < 1 {
		return fmt.Errorf("%w: limit must be >= 1, got %d", ErrInvalidPolicy, p.Limit)
	}
	if p.Period <= 0 {
		return fmt.Errorf("%w: period must be > 0, got %s", ErrInvalidPolicy, p.Period)
	}
	return nil
}

func (p Policy) String() string {
	return strconv.Itoa(p.Limit) + "/" + p.Period.String()
}

// ParsePolicy lê o formato textual "<limit>/<period>", ex: "5/60s" ou "100/1m".
func ParsePolicy(s string) (Policy, error) {
	limitStr, periodStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Policy{}, fmt.Errorf("%w: expected <limit>/<period>, got %q", ErrInvalidPolicy, s)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
	if err != nil {
		return Policy{}, fmt.Errorf("%w: bad limit %q", ErrInvalidPolicy, limitStr)
	}
	period, err := time.ParseDuration(strings.TrimSpace(periodStr))
	if err != nil {
		return Policy{}, fmt.Errorf("%w: bad period %q", ErrInvalidPolicy, periodStr)
	}
	p := Policy{Limit: limit, Period: period}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Verdict é a decisão do engine para uma requisição.
type Verdict struct {
	Allowed bool
	// Count é o número de acessos dentro da janela, incluindo o atual.
	Count     int
	Limit     int
	Remaining int
	// RetryAfter é quanto falta para a próxima requisição caber na janela.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// History é uma cópia do log persistido (útil para alertas/diagnóstico).
	History AccessLog
	At      time.Time
}

// AccessStore é o adapter de persistência usado pelo engine.
//
// Um Save que retornou nil precisa ser visível para um Load posterior no mesmo
// processo. O engine serializa Load+Save por (client, route); a implementação
// só precisa cuidar da própria consistência interna.
type AccessStore interface {
	Load(ctx context.Context, client ClientKey, route RouteKey) (AccessLog, bool, error)
	Save(ctx context.Context, client ClientKey, route RouteKey, log AccessLog) error
}

// AccessInspector expõe o estado guardado para visibilidade operacional.
type AccessInspector interface {
	Keys(ctx context.Context) ([]ClientKey, error)
	Get(ctx context.Context, client ClientKey) (ClientRecord, bool, error)
}
