package recognition

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/blacktop/tuneid/internal/engine"
)

// Session bridges a live PCM stream into one recognition engine activation.
//
// It has no goroutine of its own; it is driven concurrently by the decoder
// thread (Feed), the control thread (Start/Stop) and the engine's delegate
// goroutine (OnMatch/OnNoMatch/OnError). A single mutex guards the active
// flag and the current engine sub-session. The lock is never held across
// Feed's call into the engine or across the user callback, so either may
// re-enter the session without deadlocking.
type Session struct {
	eng      engine.Engine
	callback Callback
	userData any

	mu     sync.Mutex
	active bool
	sub    engine.Session
	gen    uint64 // bumped per Start; stale delegate fires carry an old gen
}

// activationListener ties engine events to the activation that registered
// it, so a delegate firing late out of a torn-down sub-session can never
// resolve a newer activation.
type activationListener struct {
	s   *Session
	gen uint64
}

func (l *activationListener) OnMatch(m engine.Match) {
	title := m.Title
	if title == "" {
		title = "Unknown Title"
	}
	l.s.resolve(l.gen, Result{
		Kind:          KindMatch,
		Title:         title,
		Artist:        m.Artist,
		ArtworkURL:    m.ArtworkURL,
		PrimaryLink:   m.PrimaryLink,
		SecondaryLink: m.SecondaryLink,
	})
}

func (l *activationListener) OnNoMatch() {
	l.s.resolve(l.gen, Result{Kind: KindNoMatch})
}

func (l *activationListener) OnError(err error) {
	l.s.resolve(l.gen, Result{Kind: KindError, Err: err})
}

func newSession(eng engine.Engine, callback Callback, userData any) (*Session, error) {
	if callback == nil {
		return nil, ErrNilCallback
	}
	return &Session{
		eng:      eng,
		callback: callback,
		userData: userData,
	}, nil
}

// Start activates the session. Any prior engine sub-session is fully torn
// down before the new one is created, so a restart never leaks an engine
// session or leaves a stale delegate firing into the new activation.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.active = false

	if err := s.eng.Available(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	s.gen++
	sub, err := s.eng.NewSession(&activationListener{s: s, gen: s.gen})
	if err != nil {
		return fmt.Errorf("failed to create engine session: %w", err)
	}

	s.sub = sub
	s.active = true
	return nil
}

// Feed packs one chunk and submits it to the engine. The active flag and
// sub-session are copied out under the lock and the lock released before the
// potentially expensive pack-and-submit, so Feed never blocks Stop or a
// delegate callback.
//
// Feeding an inactive session (never started, stopped, or already resolved)
// is a silent success: late chunks are expected during shutdown races.
func (s *Session) Feed(samples []float32, frameCount, channelCount int, sampleRate float64) error {
	s.mu.Lock()
	active, sub := s.active, s.sub
	s.mu.Unlock()

	if !active || sub == nil {
		return nil
	}

	buf, err := PackPCM(samples, frameCount, channelCount, sampleRate)
	if err != nil {
		return err
	}
	if buf == nil {
		return nil
	}
	return sub.Feed(buf)
}

// Stop deactivates the session and releases the engine sub-session.
// Idempotent; safe from any goroutine, including concurrently with Feed.
// No callback fires after Stop returns the session inactive.
func (s *Session) Stop() {
	s.mu.Lock()
	s.active = false
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// resolve attempts the Active -> Inactive transition for the activation
// identified by gen. Whoever wins it owns the terminal callback; everyone
// else (a duplicate delegate fire, a stale fire from a torn-down
// sub-session, a fire racing a caller Stop) drops their event entirely.
// This is the exactly-once guarantee: at most one terminal callback per
// activation.
func (s *Session) resolve(gen uint64, res Result) {
	s.mu.Lock()
	if !s.active || s.gen != gen {
		s.mu.Unlock()
		log.Debug("Dropping engine event for inactive session", "kind", res.Kind)
		return
	}
	s.active = false
	s.mu.Unlock()

	s.callback(res, s.userData)

	// Release engine resources after delivery so the sub-session cannot be
	// torn down out from under its own delegate.
	s.Stop()
}
