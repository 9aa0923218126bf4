// Package identify orchestrates recognition attempts on top of the session
// bridge: one attempt at a time, a listening timeout, history persistence,
// and status/result events for whatever surface is watching.
package identify

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/blacktop/tuneid/internal/history"
	"github.com/blacktop/tuneid/internal/recognition"
)

// DefaultTimeout is how long an attempt listens before giving up with a
// no-match. Timeout policy lives here, not in the bridge.
const DefaultTimeout = 14 * time.Second

// Status of the manager as shown to the UI.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
)

// SourceMetadata describes what the radio claims is playing when an attempt
// starts; it is attached to the recognized track for comparison.
type SourceMetadata struct {
	Title  string
	Artist *string
}

// Event is one terminal attempt outcome.
type Event struct {
	Kind    string // "match" | "noMatch" | "error"
	Message string
	Track   *history.Track
}

// Manager drives recognition attempts. The playback engine calls IngestAudio
// continuously from the decoder goroutine; the UI calls IdentifyNow and
// reads the event channels.
type Manager struct {
	reg     *recognition.Registry
	store   *history.Store
	handle  recognition.Handle
	timeout time.Duration

	mu        sync.Mutex
	attemptID string
	active    bool
	source    *SourceMetadata

	identifying atomic.Bool

	statusCh chan Status
	resultCh chan Event
}

// New creates a manager with its one long-lived bridge session. The store
// may be nil when history persistence is not wanted.
func New(reg *recognition.Registry, store *history.Store, timeout time.Duration) (*Manager, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &Manager{
		reg:      reg,
		store:    store,
		timeout:  timeout,
		statusCh: make(chan Status, 8),
		resultCh: make(chan Event, 8),
	}

	h, err := reg.Create(m.onResult, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition session: %w", err)
	}
	m.handle = h
	return m, nil
}

// Statuses delivers listening/idle transitions.
func (m *Manager) Statuses() <-chan Status { return m.statusCh }

// Results delivers one event per finished attempt.
func (m *Manager) Results() <-chan Event { return m.resultCh }

// IdentifyNow starts a recognition attempt. Only one attempt runs at a time.
func (m *Manager) IdentifyNow(source *SourceMetadata) error {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return fmt.Errorf("song recognition is already in progress")
	}
	m.attemptID = uuid.NewString()
	m.active = true
	m.source = source
	attemptID := m.attemptID
	m.mu.Unlock()

	m.identifying.Store(true)
	if err := m.reg.Start(m.handle); err != nil {
		m.identifying.Store(false)
		m.mu.Lock()
		m.active = false
		m.source = nil
		m.mu.Unlock()
		return err
	}

	log.Info("Recognition attempt started", "attempt", attemptID, "timeout", m.timeout)
	m.emitStatus(StatusListening)

	time.AfterFunc(m.timeout, func() { m.finishTimeout(attemptID) })
	return nil
}

// IngestAudio hands one decoded PCM chunk to the bridge. Cheap when no
// attempt is running: a single atomic load.
func (m *Manager) IngestAudio(samples []float32, channels int, sampleRate float64) {
	if !m.identifying.Load() {
		return
	}
	if channels == 0 || len(samples) == 0 {
		return
	}
	frames := len(samples) / channels
	if frames == 0 {
		return
	}

	if err := m.reg.Feed(m.handle, samples, frames, channels, sampleRate); err != nil {
		m.finalizeError(err.Error())
	}
}

// History returns the stored track history, newest first.
func (m *Manager) History() ([]history.Track, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.List()
}

// ClearHistory removes all stored tracks.
func (m *Manager) ClearHistory() error {
	if m.store == nil {
		return nil
	}
	return m.store.Clear()
}

// Close cancels any running attempt and releases the bridge session.
func (m *Manager) Close() {
	m.identifying.Store(false)
	m.mu.Lock()
	m.active = false
	m.source = nil
	m.mu.Unlock()
	m.reg.Destroy(m.handle)
}

// onResult is the bridge terminal callback; it fires at most once per
// activation, from the engine's goroutine.
func (m *Manager) onResult(res recognition.Result, _ any) {
	switch res.Kind {
	case recognition.KindMatch:
		m.finalizeMatch(res)
	case recognition.KindNoMatch:
		m.finalizeNoMatch()
	case recognition.KindError:
		msg := "recognition failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		m.finalizeError(msg)
	}
}

func (m *Manager) finishTimeout(attemptID string) {
	m.mu.Lock()
	if !m.active || m.attemptID != attemptID {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.source = nil
	m.mu.Unlock()

	m.identifying.Store(false)
	m.reg.Stop(m.handle)
	m.emitStatus(StatusIdle)
	m.emitResult(Event{Kind: "noMatch", Message: "No match found."})
}

func (m *Manager) finalizeNoMatch() {
	if _, ok := m.takeActiveAttempt(); !ok {
		return
	}
	m.identifying.Store(false)
	m.reg.Stop(m.handle)
	m.emitStatus(StatusIdle)
	m.emitResult(Event{Kind: "noMatch", Message: "No match found."})
}

func (m *Manager) finalizeError(message string) {
	if _, ok := m.takeActiveAttempt(); !ok {
		return
	}
	m.identifying.Store(false)
	m.reg.Stop(m.handle)
	m.emitStatus(StatusIdle)
	m.emitResult(Event{Kind: "error", Message: message})
}

func (m *Manager) finalizeMatch(res recognition.Result) {
	source, ok := m.takeActiveAttempt()
	if !ok {
		return
	}
	m.identifying.Store(false)
	m.reg.Stop(m.handle)
	m.emitStatus(StatusIdle)

	track := history.Track{
		Title:         res.Title,
		Artist:        res.Artist,
		ArtworkURL:    res.ArtworkURL,
		PrimaryLink:   res.PrimaryLink,
		SecondaryLink: res.SecondaryLink,
		RecognizedAt:  time.Now().Unix(),
	}
	if source != nil {
		track.SourceTitle = &source.Title
		track.SourceArtist = source.Artist
	}

	message := "Recognized: " + track.Title
	if track.Artist != nil {
		message = fmt.Sprintf("Recognized: %s by %s", track.Title, *track.Artist)
	}

	if m.store != nil {
		if err := m.store.Append(track); err != nil {
			m.emitResult(Event{Kind: "error", Message: err.Error()})
			return
		}
	}

	m.emitResult(Event{Kind: "match", Message: message, Track: &track})
}

// takeActiveAttempt atomically claims the running attempt. Exactly one
// finalizer wins; a late timeout or duplicate result loses and does nothing.
func (m *Manager) takeActiveAttempt() (*SourceMetadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return nil, false
	}
	m.active = false
	source := m.source
	m.source = nil
	return source, true
}

func (m *Manager) emitStatus(s Status) {
	select {
	case m.statusCh <- s:
	default:
		log.Debug("Dropping status event, channel full", "status", s)
	}
}

func (m *Manager) emitResult(e Event) {
	select {
	case m.resultCh <- e:
	default:
		log.Debug("Dropping result event, channel full", "kind", e.Kind)
	}
}
