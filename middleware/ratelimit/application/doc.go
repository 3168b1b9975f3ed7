// Package application contém os casos de uso (regras de aplicação) do rate limit
// por janela deslizante.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Engine.Record(ctx, client, route, now, policy) retorna um Verdict
// (allow/deny + histórico usado na decisão).
package application
