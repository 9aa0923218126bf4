package recognition

import "fmt"

// Error taxonomy surfaced by the bridge. Precondition errors (nil callback,
// unknown handle) are caller-fixable and reported synchronously; capability
// errors come out of Start; packing errors come out of Feed. Engine-reported
// failures never appear here — they travel through the terminal callback.
var (
	// ErrNilCallback - Create was given no result callback.
	ErrNilCallback = fmt.Errorf("result callback must not be nil")

	// ErrNotInitialized - the handle is zero or does not name a live session.
	ErrNotInitialized = fmt.Errorf("recognition session is not initialized")

	// ErrUnsupported - the recognition engine is unavailable on this host.
	ErrUnsupported = fmt.Errorf("recognition engine is not available")

	// ErrAllocation - the engine buffer could not be sized for the request.
	ErrAllocation = fmt.Errorf("failed to allocate engine audio buffer")

	// ErrFormat - the chunk's geometry does not describe its sample data.
	ErrFormat = fmt.Errorf("invalid audio chunk format")

	// ErrTooManySessions - the registry's concurrent session cap was hit.
	ErrTooManySessions = fmt.Errorf("too many concurrent recognition sessions")
)
