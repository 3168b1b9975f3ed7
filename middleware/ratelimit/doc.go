// Package ratelimit fornece adapters HTTP (net/http) para o rate limit por
// janela deslizante (cliente x rota).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: Engine (registra o acesso e decide allow/deny) e Registry de políticas
//   - infra: implementações concretas (stores em memória/Redis/SQLite, locks, stats, alertas)
//   - ratelimit (este pacote): middlewares HTTP + extração de cliente/rota + tradução para status/headers
//   - ginlimit: o mesmo para gin
//
// Fluxo:
//
//  1. Extrai a chave do cliente (IP/header/XFF) e a rota (pattern casado)
//  2. Chama Engine.Record para obter o Verdict
//  3. Se negado, responde 429 e dispara o alerta em background
//  4. Se o store falhar, deixa passar (fail-open) ou responde 503 (FailClosed)
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como ROUTE_LIMITS, ACCESS_STORE e WEBHOOK_URL.
package ratelimit
