package infra

import (
	"context"
	"sync"

	"route-limiter/middleware/ratelimit/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool simples baseado em channel com capacidade `max`.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// KeyLocks implementa domain.KeyLocker com um chanPool de capacidade 1 por chave.
// As entradas têm contagem de referência e somem quando ninguém mais espera por elas,
// então o mapa não cresce com o número de clientes já vistos.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	pool domain.SlotPool
	refs int
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

func (k *KeyLocks) Lock(ctx context.Context, key string) (func(), bool) {
	k.mu.Lock()
	kl, ok := k.locks[key]
	if !ok {
		kl = &keyLock{pool: NewChanPool(1)}
		k.locks[key] = kl
	}
	kl.refs++
	k.mu.Unlock()

	release, ok := kl.pool.Acquire(ctx)
	if !ok {
		k.unref(key, kl)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			k.unref(key, kl)
		})
	}, true
}

// Len devolve quantas chaves têm lock ativo (ou alguém esperando).
func (k *KeyLocks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyLocks) unref(key string, kl *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(k.locks, key)
	}
}
