// Package server keeps track of running sessions so shutdown can close them
// and wait for their goroutines.
package server

import (
	"context"
	"sync"

	"github.com/Tyrowin/rtchat/internal/chat"
)

type tracker struct {
	mu       sync.Mutex
	sessions map[*chat.Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

func newTracker() *tracker {
	return &tracker{sessions: make(map[*chat.Session]struct{})}
}

// add registers s. It returns false once shutdown has started.
func (t *tracker) add(s *chat.Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return false
	}
	t.sessions[s] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *tracker) remove(s *chat.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[s]; ok {
		delete(t.sessions, s)
		t.wg.Done()
	}
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// closeAll refuses new sessions and closes the connection of every running
// one. It returns how many were closed.
func (t *tracker) closeAll() int {
	t.mu.Lock()
	t.closing = true
	sessions := make([]*chat.Session, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return len(sessions)
}

// wait blocks until every registered session has returned or ctx is done.
func (t *tracker) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
