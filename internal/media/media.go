// Package media defines the closed set of media types, tune types and playback
// rates shared by the time-shift buffer packages.
package media

import "math"

// MediaType identifies a track, or the init segment of a track.
type MediaType int

// Track media types come first so they can index per-track arrays directly.
const (
	Video MediaType = iota
	Audio
	Subtitle
	AuxAudio
	IFrame

	InitVideo
	InitAudio
	InitSubtitle
	InitAuxAudio
	InitIFrame
)

// TrackCount is the number of track media types (Video through IFrame).
const TrackCount = int(IFrame) + 1

var tracks = [TrackCount]MediaType{Video, Audio, Subtitle, AuxAudio, IFrame}

// Tracks returns the track media types in culling priority order, video first.
func Tracks() []MediaType {
	out := make([]MediaType, TrackCount)
	copy(out, tracks[:])
	return out
}

// Valid reports whether m is one of the declared media types.
func (m MediaType) Valid() bool {
	return m >= Video && m <= InitIFrame
}

// IsInit reports whether m names an init segment.
func (m MediaType) IsInit() bool {
	return m >= InitVideo && m <= InitIFrame
}

// Track maps an init media type onto the track it initialises.
// Track media types map onto themselves.
func (m MediaType) Track() MediaType {
	if m.IsInit() {
		return m - InitVideo
	}
	return m
}

// Init maps a track media type onto its init media type.
func (m MediaType) Init() MediaType {
	if m.IsInit() {
		return m
	}
	return m + InitVideo
}

// Index returns the per-track array index for m, or -1 when m is not valid.
func (m MediaType) Index() int {
	if !m.Valid() {
		return -1
	}
	return int(m.Track())
}

func (m MediaType) String() string {
	switch m {
	case Video:
		return "VIDEO"
	case Audio:
		return "AUDIO"
	case Subtitle:
		return "SUBTITLE"
	case AuxAudio:
		return "AUX-AUDIO"
	case IFrame:
		return "IFRAME"
	case InitVideo:
		return "INIT_VIDEO"
	case InitAudio:
		return "INIT_AUDIO"
	case InitSubtitle:
		return "INIT_SUBTITLE"
	case InitAuxAudio:
		return "INIT_AUX-AUDIO"
	case InitIFrame:
		return "INIT_IFRAME"
	default:
		return "UNKNOWN"
	}
}

// TuneType describes why the readers are being (re)positioned.
type TuneType int

const (
	TuneNewNormal TuneType = iota
	TuneNewSeek
	TuneSeek
	TuneSeekToLive
	TuneSeekToEnd
	TuneRetune
	TuneLastPlayed
	TuneNewEnd
)

func (t TuneType) String() string {
	switch t {
	case TuneNewNormal:
		return "new_normal"
	case TuneNewSeek:
		return "new_seek"
	case TuneSeek:
		return "seek"
	case TuneSeekToLive:
		return "seek_to_live"
	case TuneSeekToEnd:
		return "seek_to_end"
	case TuneRetune:
		return "retune"
	case TuneLastPlayed:
		return "last_played"
	case TuneNewEnd:
		return "new_end"
	default:
		return "unknown"
	}
}

// Playback rates with special handling.
const (
	NormalPlayRate = 1.0
	PauseRate      = 0.0
	SlowMotionRate = 0.5
)

// IsTrickPlay reports whether rate requires fragment skipping.
// Pause and slow motion are rendered by the sink and do not skip.
func IsTrickPlay(rate float64) bool {
	return rate != NormalPlayRate && rate != PauseRate && rate != SlowMotionRate
}

// Epsilon is the tolerance used when comparing fragment positions in seconds.
const Epsilon = 0.001

// NearlyEqual reports whether two positions are within Epsilon of each other.
func NearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}
