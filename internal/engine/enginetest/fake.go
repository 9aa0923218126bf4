// Package enginetest provides an in-memory engine for tests: feeds are
// recorded, terminal events are fired by hand, and misbehavior (duplicate
// fires, fires racing a stop) can be simulated deliberately.
package enginetest

import (
	"sync"

	"github.com/blacktop/tuneid/internal/engine"
)

// Fake implements engine.Engine.
type Fake struct {
	mu            sync.Mutex
	AvailableErr  error
	NewSessionErr error
	sessions      []*FakeSession
}

func (f *Fake) Available() error {
	return f.AvailableErr
}

func (f *Fake) NewSession(l engine.Listener) (engine.Session, error) {
	if f.NewSessionErr != nil {
		return nil, f.NewSessionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &FakeSession{listener: l}
	f.sessions = append(f.sessions, s)
	return s, nil
}

// Last returns the most recently created session, or nil.
func (f *Fake) Last() *FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

// SessionCount returns how many sub-sessions were ever created.
func (f *Fake) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// FakeSession implements engine.Session.
type FakeSession struct {
	mu       sync.Mutex
	listener engine.Listener
	fed      []*engine.PCMBuffer
	closed   bool

	FeedErr error
}

func (s *FakeSession) Feed(buf *engine.PCMBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FeedErr != nil {
		return s.FeedErr
	}
	s.fed = append(s.fed, buf)
	return nil
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeSession) FedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fed)
}

func (s *FakeSession) Fed() []*engine.PCMBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.PCMBuffer(nil), s.fed...)
}

// FireMatch invokes the listener the way the real engine would, from
// whatever goroutine the test chooses.
func (s *FakeSession) FireMatch(m engine.Match) { s.listener.OnMatch(m) }

// FireNoMatch invokes OnNoMatch.
func (s *FakeSession) FireNoMatch() { s.listener.OnNoMatch() }

// FireError invokes OnError.
func (s *FakeSession) FireError(err error) { s.listener.OnError(err) }
