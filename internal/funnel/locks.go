package funnel

import "sync"

// leadLocks serialises turns per lead. Entries are dropped once unused.
type leadLocks struct {
	mu    sync.Mutex
	locks map[int64]*leadLock
}

type leadLock struct {
	mu   sync.Mutex
	refs int
}

func newLeadLocks() *leadLocks {
	return &leadLocks{locks: make(map[int64]*leadLock)}
}

func (l *leadLocks) Lock(leadID int64) func() {
	l.mu.Lock()
	lk, ok := l.locks[leadID]
	if !ok {
		lk = &leadLock{}
		l.locks[leadID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, leadID)
		}
		l.mu.Unlock()
	}
}

func (l *leadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
