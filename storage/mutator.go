package storage

import "sync"

// keyedMutex hands out one mutex per record key so concurrent
// read-modify-write cycles on different records never contend, while
// cycles on the same record are fully serialized.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// Update runs a serialized read-modify-write cycle on a single record.
// Whole records (the contact list, a conversation history) are stored
// as one blob, so two concurrent handlers mutating the same record
// would otherwise clobber each other's writes. fn receives the current
// plaintext (ok=false when absent) and returns the replacement; a nil
// replacement deletes the record.
func (e *Engine) Update(key string, fn func(current []byte, ok bool) ([]byte, error)) error {
	l := e.locks.get(key)
	l.Lock()
	defer l.Unlock()

	current, ok, err := e.Get(key)
	if err != nil {
		return err
	}

	next, err := fn(current, ok)
	if err != nil {
		return err
	}

	if next == nil {
		return e.Delete(key)
	}
	return e.Put(key, next)
}
