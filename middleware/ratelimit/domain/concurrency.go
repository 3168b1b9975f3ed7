package domain

import "context"

// SlotPool representa um recurso com capacidade finita.
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
// Com capacidade 1 funciona como um mutex que respeita ctx (usado no lock por chave).
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// KeyLocker dá exclusão mútua por chave.
// Chaves diferentes nunca se bloqueiam.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), ok bool)
}
