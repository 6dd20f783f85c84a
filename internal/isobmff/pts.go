// Package isobmff reads and rewrites the fragmented MP4 buffers held by the
// time-shift buffer.
package isobmff

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/observability"
)

// ErrNoTracks is returned when a buffer holds no fMP4 track.
var ErrNoTracks = errors.New("no fmp4 tracks found")

// PTSCalculator derives fragment presentation times from the tfdt box of
// media fragments, using the timescale announced by the last init fragment
// of each track. It is safe for concurrent use.
type PTSCalculator struct {
	logger *slog.Logger

	mu         sync.Mutex
	timescales [media.TrackCount]map[int]uint32
}

// NewPTSCalculator creates a calculator with no known timescales.
func NewPTSCalculator(logger *slog.Logger) *PTSCalculator {
	return &PTSCalculator{
		logger: observability.WithComponent(observability.OrDefault(logger), "pts"),
	}
}

// RecalculatePTS returns the presentation time in seconds of the first
// sample of a media fragment. Init fragments update the track timescales
// and report 0, as do buffers that cannot be parsed.
func (c *PTSCalculator) RecalculatePTS(mediaType media.MediaType, data []byte) float64 {
	idx := mediaType.Index()
	if idx < 0 || len(data) == 0 {
		return 0
	}

	if mediaType.IsInit() {
		scales, err := Timescales(data)
		if err != nil {
			c.logger.Warn("failed to parse init fragment",
				slog.String("media_type", mediaType.String()),
				slog.String("error", err.Error()),
			)
			return 0
		}
		c.mu.Lock()
		c.timescales[idx] = scales
		c.mu.Unlock()
		return 0
	}

	c.mu.Lock()
	scales := c.timescales[idx]
	c.mu.Unlock()
	if len(scales) == 0 {
		c.logger.Debug("no init fragment parsed for track", slog.String("media_type", mediaType.String()))
		return 0
	}

	pts, err := FirstPTS(data, scales)
	if err != nil {
		c.logger.Warn("failed to parse media fragment",
			slog.String("media_type", mediaType.String()),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return pts
}

// Timescales returns the timescale of every track of an init fragment keyed
// by track id.
func Timescales(initData []byte) (map[int]uint32, error) {
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(initData)); err != nil {
		return nil, fmt.Errorf("parsing init: %w", err)
	}
	if len(init.Tracks) == 0 {
		return nil, ErrNoTracks
	}
	scales := make(map[int]uint32, len(init.Tracks))
	for _, t := range init.Tracks {
		scales[t.ID] = t.TimeScale
	}
	return scales, nil
}

// FirstPTS returns the base media decode time of the first track of the
// first part of a media fragment, in seconds.
func FirstPTS(data []byte, timescales map[int]uint32) (float64, error) {
	var parts fmp4.Parts
	if err := parts.Unmarshal(data); err != nil {
		return 0, fmt.Errorf("parsing parts: %w", err)
	}
	for _, part := range parts {
		for _, track := range part.Tracks {
			scale := timescales[track.ID]
			if scale == 0 {
				continue
			}
			return float64(track.BaseTime) / float64(scale), nil
		}
	}
	return 0, ErrNoTracks
}
