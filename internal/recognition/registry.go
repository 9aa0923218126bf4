package recognition

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/blacktop/tuneid/internal/engine"
)

// Maximum number of live sessions to track (prevent handle exhaustion)
const MaxConcurrentSessions = 64

// Handle names one session in a Registry. The zero Handle is never issued.
type Handle uint64

// Registry owns every live Session behind an opaque integer handle,
// preserving the create/destroy contract of the C bridge surface for any
// FFI consumer while making use-after-free impossible by construction: a
// destroyed handle simply stops resolving.
type Registry struct {
	mu       sync.Mutex
	eng      engine.Engine
	next     Handle
	sessions map[Handle]*Session
}

// NewRegistry creates a registry whose sessions run against eng.
func NewRegistry(eng engine.Engine) *Registry {
	return &Registry{
		eng:      eng,
		sessions: make(map[Handle]*Session),
	}
}

// Create allocates a session in the created-inactive state. The callback and
// userData are fixed here for the life of the session.
func (r *Registry) Create(callback Callback, userData any) (Handle, error) {
	if callback == nil {
		return 0, ErrNilCallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= MaxConcurrentSessions {
		log.Warn("Maximum concurrent sessions reached, rejecting create",
			"current", len(r.sessions), "max", MaxConcurrentSessions)
		return 0, ErrTooManySessions
	}

	s, err := newSession(r.eng, callback, userData)
	if err != nil {
		return 0, err
	}

	r.next++
	h := r.next
	r.sessions[h] = s

	log.Debug("Created recognition session", "handle", h)
	return h, nil
}

// Start activates the session named by h.
func (r *Registry) Start(h Handle) error {
	s, err := r.lookup(h)
	if err != nil {
		return err
	}
	return s.Start()
}

// Feed forwards one PCM chunk into the session named by h.
func (r *Registry) Feed(h Handle, samples []float32, frameCount, channelCount int, sampleRate float64) error {
	s, err := r.lookup(h)
	if err != nil {
		return err
	}
	return s.Feed(samples, frameCount, channelCount, sampleRate)
}

// Stop cancels the session named by h. Unknown handles are ignored; stopping
// an already-destroyed session is a documented no-op.
func (r *Registry) Stop(h Handle) {
	s, err := r.lookup(h)
	if err != nil {
		return
	}
	s.Stop()
}

// Destroy stops the session and releases its handle. After Destroy the
// handle no longer resolves; a second Destroy of the same handle is a no-op.
func (r *Registry) Destroy(h Handle) {
	r.mu.Lock()
	s, ok := r.sessions[h]
	delete(r.sessions, h)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.Stop()
	log.Debug("Destroyed recognition session", "handle", h)
}

// ActiveSessions returns the number of live handles.
func (r *Registry) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops and releases every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[Handle]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
	log.Debug("Recognition registry shutdown completed", "released", len(sessions))
}

func (r *Registry) lookup(h Handle) (*Session, error) {
	if h == 0 {
		return nil, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[h]
	if !ok {
		return nil, ErrNotInitialized
	}
	return s, nil
}
