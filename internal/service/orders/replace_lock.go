package orders

import "sync"

// ReplaceLock hands out one mutex per order id so concurrent replace attempts
// for the same order serialize while replaces for different orders stay fully
// independent. Entries are created lazily and removed on release so the map
// does not grow with historical order ids.
type ReplaceLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReplaceLock() *ReplaceLock {
	return &ReplaceLock{
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *ReplaceLock) Get(orderID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[orderID] = lock
	}

	return lock
}

// Release removes the entry for the id. A goroutine still blocked on the
// removed mutex can end up in the critical section alongside a later caller
// holding a fresh mutex for the same id; callers must re-check the order's
// bookkeeping after acquiring the lock rather than rely on lock identity.
func (l *ReplaceLock) Release(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, orderID)
}

func (l *ReplaceLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
