// Package engine defines the boundary to the external audio-fingerprinting
// engine. The bridge in internal/recognition only ever talks to these
// interfaces; concrete engines (the websocket remote engine, test fakes)
// live behind them.
package engine

// Format describes interleaved float32 PCM.
type Format struct {
	SampleRate float64
	Channels   int
}

// PCMBuffer is one engine-ready span of interleaved float32 samples.
// ByteLength is always FrameCount * Format.Channels * 4 once packed.
type PCMBuffer struct {
	Format     Format
	FrameCount int
	Data       []float32
	ByteLength int
}

// Match carries the fields the engine reports for a recognized track.
// Optional fields are nil when the engine did not supply them, which is
// distinct from an empty string.
type Match struct {
	Title         string
	Artist        *string
	ArtworkURL    *string
	PrimaryLink   *string
	SecondaryLink *string
}

// Listener receives the terminal event of one engine session. The engine
// invokes these from its own goroutine; an engine may misbehave and fire
// more than once, so listeners must tolerate duplicates.
type Listener interface {
	OnMatch(m Match)
	OnNoMatch()
	OnError(err error)
}

// Session is one activation of the engine, created per start and closed
// per stop. Close is idempotent.
type Session interface {
	Feed(buf *PCMBuffer) error
	Close() error
}

// Engine creates recognition sessions.
type Engine interface {
	// Available reports whether the engine can run at all (endpoint
	// configured, platform supported). A non-nil error is a static
	// precondition failure, not a per-call race.
	Available() error

	// NewSession opens a fresh engine sub-session with the given listener
	// attached. The listener fires at most one terminal event per
	// well-behaved session.
	NewSession(l Listener) (Session, error)
}
