package isobmff

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

// ErrNoKeyframe is returned when a fragment holds no sync sample.
var ErrNoKeyframe = errors.New("fragment has no key frame")

// KeyframeConverter rewrites video fragments so that they only carry sync
// samples, for trick play without a dedicated iframe track.
type KeyframeConverter struct{}

// NewKeyframeConverter returns a converter.
func NewKeyframeConverter() *KeyframeConverter {
	return &KeyframeConverter{}
}

// ConvertToKeyFrame drops every non-sync sample. The duration of a dropped
// sample is folded into the preceding key frame so that the fragment keeps
// its length; leading non-sync samples advance the track base time instead.
func (c *KeyframeConverter) ConvertToKeyFrame(data []byte) ([]byte, error) {
	var parts fmp4.Parts
	if err := parts.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parsing parts: %w", err)
	}
	if len(parts) == 0 {
		return nil, ErrNoTracks
	}

	kept := 0
	for _, part := range parts {
		tracks := part.Tracks[:0]
		for _, track := range part.Tracks {
			track.BaseTime, track.Samples = keyframesOnly(track.BaseTime, track.Samples)
			if len(track.Samples) > 0 {
				tracks = append(tracks, track)
				kept += len(track.Samples)
			}
		}
		part.Tracks = tracks
	}
	if kept == 0 {
		return nil, ErrNoKeyframe
	}

	var buf seekablebuffer.Buffer
	if err := parts.Marshal(&buf); err != nil {
		return nil, fmt.Errorf("marshaling parts: %w", err)
	}
	return buf.Bytes(), nil
}

func keyframesOnly(baseTime uint64, samples []*fmp4.Sample) (uint64, []*fmp4.Sample) {
	out := make([]*fmp4.Sample, 0, len(samples))
	for _, s := range samples {
		if !s.IsNonSyncSample {
			out = append(out, s)
			continue
		}
		if len(out) == 0 {
			baseTime += uint64(s.Duration)
			continue
		}
		out[len(out)-1].Duration += s.Duration
	}
	return baseTime, out
}
