package recognition

import "fmt"

// Kind tags the terminal event of one activation.
type Kind int

const (
	KindMatch Kind = iota + 1
	KindNoMatch
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindMatch:
		return "match"
	case KindNoMatch:
		return "noMatch"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the single terminal event delivered per activation. Optional
// strings are nil when the engine did not report them; nil and "" are
// deliberately distinct.
type Result struct {
	Kind          Kind
	Title         string // set for KindMatch, "Unknown Title" fallback applied upstream
	Artist        *string
	ArtworkURL    *string
	PrimaryLink   *string
	SecondaryLink *string
	Err           error // set for KindError
}

// Callback receives the terminal result. The userData value is the opaque
// context fixed at Create, passed through unchanged. Invoked at most once
// per activation, from the engine's goroutine, with no session lock held.
type Callback func(res Result, userData any)
