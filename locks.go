package propsync

import (
	"slices"
	"sync"
)

// docLocks hands out one mutex per document and forgets it when no
// caller holds or waits for it.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*docLock)}
}

// lock acquires the locks of docs in sorted order and returns the release
// function.
func (l *docLocks) lock(docs ...string) func() {
	docs = slices.Clone(docs)
	slices.Sort(docs)
	docs = slices.Compact(docs)

	held := make([]*docLock, 0, len(docs))
	for _, doc := range docs {
		l.mu.Lock()
		dl, ok := l.locks[doc]
		if !ok {
			dl = &docLock{}
			l.locks[doc] = dl
		}
		dl.refs++
		l.mu.Unlock()

		dl.mu.Lock()
		held = append(held, dl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, docs[i])
			}
			l.mu.Unlock()
		}
	}
}

// size returns the number of live locks.
func (l *docLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
