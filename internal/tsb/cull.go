package tsb

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/metrics"
	"github.com/jmylchreest/tsb/internal/observability"
)

// CullSegments trims the buffer to the configured maximum length and returns
// the seconds culled from the front of the video track since the previous
// call, including fragments the writer evicted in between. Video drives the
// window; the other tracks are trimmed to the video start without ever
// starting after it.
func (s *SessionManager) CullSegments() float64 {
	if !s.ready("cull segments") {
		return 0
	}

	s.mu.Lock()
	culled, evicted := s.cullLocked(s.cfg.TSB.MaxLengthSeconds())
	s.mu.Unlock()

	s.deleteEvicted(metrics.ReasonCull, evicted...)
	metrics.AddCulledSeconds(culled)
	return culled
}

// cullLocked removes fragments from the indexes and returns the culled video
// seconds and the fragments whose store keys must be deleted. Called with
// s.mu held.
func (s *SessionManager) cullLocked(maxLength float64) (float64, []eviction) {
	video := s.tracks[media.Video.Index()].dm
	var culled float64
	var evicted []eviction

	// Fragments evicted by the writer since the last call.
	if video.Count() > 0 && s.lastVideoPos != InvalidPosition {
		culled += video.GetFirstFragmentPosition() - s.lastVideoPos
	}

	for _, mt := range media.Tracks() {
		dm := s.tracks[mt.Index()].dm
		for dm.Count() > 0 {
			videoFirst := video.GetFirstFragmentPosition()
			trackFirst := dm.GetFirstFragmentPosition()
			adjacent := trackFirst
			if first, _ := dm.GetFragment(trackFirst); first != nil {
				adjacent = first.End()
			}

			videoOver := s.totalStoreDuration(media.Video) > maxLength
			if !videoOver && videoFirst < adjacent {
				observability.Trace(context.Background(), s.logger, "no culling needed",
					slog.String("media_type", mt.String()),
					slog.Float64("store_duration", s.totalStoreDuration(mt)),
					slog.Float64("max_length", maxLength),
					slog.Float64("first", trackFirst),
					slog.Float64("next", adjacent),
					slog.Float64("video_first", videoFirst),
				)
				break
			}

			target := mt
			if videoOver {
				target = media.Video
			}
			if target == mt && mt != media.Video {
				nearest := dm.GetNearestFragment(trackFirst)
				if nearest != nil && strandsTrack(nearest.duration, videoFirst, trackFirst) {
					break
				}
			}

			removed, initDeleted := s.tracks[target.Index()].dm.RemoveFragment()
			if removed == nil {
				s.logger.Error("no fragments to remove", slog.String("media_type", target.String()))
				break
			}
			if target == media.Video {
				culled += removed.duration
			}
			evicted = append(evicted, eviction{mediaType: target, url: removed.url})
			if initDeleted {
				s.logger.Debug("init fragment no longer referenced",
					slog.String("media_type", target.String()),
					slog.String("url", removed.init.url),
				)
			}

			s.logger.Info("culled fragment",
				slog.String("media_type", target.String()),
				slog.Float64("duration", removed.duration),
				slog.Float64("position", removed.position),
				slog.Float64("pts", removed.pts),
				slog.String("url", removed.url),
			)
		}
	}

	if video.Count() > 0 {
		s.lastVideoPos = video.GetFirstFragmentPosition()
	}
	if culled > 0 {
		s.culledDuration += culled
	}
	return culled, evicted
}

// strandsTrack reports whether removing a fragment of duration from the
// front of a track would leave it starting after the video. The gap is
// negative when the track already starts after the video.
func strandsTrack(duration, videoFirst, trackFirst float64) bool {
	return duration > videoFirst-trackFirst
}
