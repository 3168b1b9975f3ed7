// Package domain define contratos e tipos de domínio do rate limit por janela
// deslizante (cliente x rota).
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (memória, Redis, SQLite, webhooks).
package domain
