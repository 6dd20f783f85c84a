package tsb

import (
	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/storage"
)

// FragmentStore is the durable byte store holding fragment payloads.
// Write reports storage.ErrAlreadyExists and storage.ErrNoSpace; any other
// error is treated as a backend failure.
type FragmentStore interface {
	Size(key string) (int64, error)
	Read(key string, buf []byte) (int, error)
	Write(key string, data []byte) error
	Delete(key string) error
	Flush() error
}

// StoreOpener creates the store for a session.
type StoreOpener func(cfg storage.Config) (FragmentStore, error)

// DefaultStoreOpener opens one of the storage package backends.
func DefaultStoreOpener(cfg storage.Config) (FragmentStore, error) {
	return storage.Open(cfg)
}

// InitFragmentCache is the in-memory cache of recently downloaded init fragments.
type InitFragmentCache interface {
	Retrieve(url string) (data []byte, effectiveURL string, ok bool)
}

// StreamContext is the per-track injection target of the playback sink.
type StreamContext interface {
	MediaType() media.MediaType
	CacheTsbFragment(fragment *CachedFragment) bool
	SetDownloadedDuration(seconds float64)
}

// Player receives progress updates from the session.
type Player interface {
	UpdateCullingState(culledSeconds float64)
	UpdateDuration(seconds float64)
	SetCulledSeconds(seconds float64)
	CulledSeconds() float64
	AbsoluteEndPosition() float64
}

// PTSRecalculator extracts the presentation time of a fragment payload.
type PTSRecalculator interface {
	RecalculatePTS(mediaType media.MediaType, data []byte) float64
}

// KeyframeConverter rewrites a video fragment so that it only holds key frames.
type KeyframeConverter interface {
	ConvertToKeyFrame(data []byte) ([]byte, error)
}
