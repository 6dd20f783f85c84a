package tsb

import "errors"

// Sentinel errors for session operations.
var (
	// ErrNotInitialized is returned by operations called before Init or after Flush.
	ErrNotInitialized = errors.New("tsb session not initialized")
	// ErrSessionFlushed is returned by Init once the session has been flushed.
	ErrSessionFlushed = errors.New("tsb session flushed")
	// ErrNoDataManager is returned when no index exists for a media type.
	ErrNoDataManager = errors.New("no data manager for media type")
	// ErrNoReader is returned when no reader exists for a media type.
	ErrNoReader = errors.New("no reader for media type")

	// errTrackEmpty stops the write retry loop when nothing is left to evict.
	errTrackEmpty = errors.New("track has no fragments to evict")
)
