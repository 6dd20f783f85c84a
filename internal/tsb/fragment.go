package tsb

import "github.com/jmylchreest/tsb/internal/media"

// InvalidPosition marks a position that has not been observed yet.
const InvalidPosition = -1.0

// StreamInfo carries the encoding metadata of a profile.
type StreamInfo struct {
	Bandwidth int64 // bits per second
	Width     int
	Height    int
	FrameRate float64
}

// CachedFragment is a fragment buffer exchanged with producers and the
// playback sink.
type CachedFragment struct {
	Type          media.MediaType
	URI           string
	Data          []byte
	Position      float64
	AbsPosition   float64
	Duration      float64
	Discontinuity bool
	InitFragment  bool
	ProfileIndex  int
	StreamInfo    StreamInfo
}

// InitDescriptor describes a stored init fragment.
type InitDescriptor struct {
	url          string
	mediaType    media.MediaType
	streamInfo   StreamInfo
	periodID     string
	profileIndex int
	refs         int
}

// URL returns the store key of the init fragment.
func (d *InitDescriptor) URL() string { return d.url }

// MediaType returns the init media type.
func (d *InitDescriptor) MediaType() media.MediaType { return d.mediaType }

// StreamInfo returns the profile metadata.
func (d *InitDescriptor) StreamInfo() StreamInfo { return d.streamInfo }

// PeriodID returns the period the init fragment belongs to.
func (d *InitDescriptor) PeriodID() string { return d.periodID }

// ProfileIndex returns the ABR profile index.
func (d *InitDescriptor) ProfileIndex() int { return d.profileIndex }

// Bandwidth returns the profile bandwidth in bits per second.
func (d *InitDescriptor) Bandwidth() float64 { return float64(d.streamInfo.Bandwidth) }

// Fragment describes a stored media fragment. Apart from its neighbour links
// it is immutable once added to a DataManager.
type Fragment struct {
	url           string
	mediaType     media.MediaType
	position      float64
	duration      float64
	pts           float64
	discontinuity bool
	periodID      string
	init          *InitDescriptor

	prev *Fragment
	next *Fragment
}

func (f *Fragment) URL() string                { return f.url }
func (f *Fragment) MediaType() media.MediaType { return f.mediaType }
func (f *Fragment) Position() float64          { return f.position }
func (f *Fragment) Duration() float64          { return f.duration }
func (f *Fragment) PTS() float64               { return f.pts }
func (f *Fragment) IsDiscontinuous() bool      { return f.discontinuity }
func (f *Fragment) PeriodID() string           { return f.periodID }

// Init returns the init fragment the fragment was recorded against.
func (f *Fragment) Init() *InitDescriptor { return f.init }

// Prev returns the previous fragment of the track, or nil.
func (f *Fragment) Prev() *Fragment { return f.prev }

// Next returns the following fragment of the track, or nil.
func (f *Fragment) Next() *Fragment { return f.next }

// End returns the position just after the fragment.
func (f *Fragment) End() float64 { return f.position + f.duration }

// WriteJob is a queued store write.
type WriteJob struct {
	URL      string
	Fragment *CachedFragment
	PTS      float64
	PeriodID string
}
