package lock

import "sync"

// Keyed é uma tabela de mutexes indexada por chave (ex.: userID).
// Chaves diferentes não competem entre si; entradas sem uso são removidas.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*keyedEntry)}
}

// Lock bloqueia a chave e devolve a função de liberação.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return k.release(key, e)
}

// TryLock bloqueia a chave sem esperar; ok=false se ela já estiver em uso.
func (k *Keyed) TryLock(key string) (unlock func(), ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, found := k.locks[key]
	if found && !e.mu.TryLock() {
		return nil, false
	}
	if !found {
		e = &keyedEntry{}
		e.mu.Lock()
		k.locks[key] = e
	}
	e.refs++
	return k.release(key, e), true
}

func (k *Keyed) release(key string, e *keyedEntry) func() {
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len devolve quantas chaves estão em uso.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
