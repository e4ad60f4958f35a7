package propsync

import (
	"sync"
	"testing"
	"time"
)

func TestDocLocksSerializeSameDocument(t *testing.T) {
	l := newDocLocks()

	unlock := l.lock("a.md")
	acquired := make(chan struct{})
	go func() {
		release := l.lock("a.md")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestDocLocksIndependentDocuments(t *testing.T) {
	l := newDocLocks()
	unlockA := l.lock("a.md")
	unlockB := l.lock("b.md")
	if got := l.size(); got != 2 {
		t.Errorf("size = %d, want 2", got)
	}
	unlockA()
	unlockB()
	if got := l.size(); got != 0 {
		t.Errorf("size after release = %d, want 0", got)
	}
}

func TestDocLocksPairOrdering(t *testing.T) {
	l := newDocLocks()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.lock("a.md", "b.md")()
		}()
		go func() {
			defer wg.Done()
			l.lock("b.md", "a.md")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposite lock orders deadlocked")
	}
	if got := l.size(); got != 0 {
		t.Errorf("size after release = %d, want 0", got)
	}

	// Locking the same document twice in one call must not self-deadlock.
	l.lock("a.md", "a.md")()
}
