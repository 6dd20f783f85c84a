package tsb

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/observability"
)

// Reader is the playback cursor over the DataManager of one track. Cursor
// state is guarded by the session read lock; the end-fragment wait has its
// own lock so that it can be released from any goroutine.
type Reader struct {
	dm        *DataManager
	mediaType media.MediaType
	logger    *slog.Logger

	initialized      bool
	startPosition    float64
	upcomingPosition float64
	rate             float64
	tuneType         media.TuneType
	eos              bool
	trackEnabled     bool
	firstPTS         float64
	currentBandwidth float64
	newInitWaiting   bool
	nextDisc         bool
	periodBoundary   bool

	endMu       sync.Mutex
	endInjected bool
	endCh       chan struct{}
}

// NewReader creates a reader over dm.
func NewReader(dm *DataManager, mediaType media.MediaType, logger *slog.Logger) *Reader {
	return &Reader{
		dm:        dm,
		mediaType: mediaType,
		logger:    observability.WithMediaType(observability.OrDefault(logger), mediaType.String()),
		rate:      media.NormalPlayRate,
		endCh:     make(chan struct{}),
	}
}

// Init positions the cursor startPos seconds after the first stored
// fragment and returns the absolute position of the selected fragment.
// Non-video readers given the video reader as sync step back so that they
// do not start after the video. An initialised reader is left untouched.
func (r *Reader) Init(startPos, rate float64, tuneType media.TuneType, sync *Reader) (float64, error) {
	if r.initialized {
		return r.startPosition, nil
	}
	if r.dm == nil {
		r.logger.Error("no data manager for reader")
		return startPos, ErrNoDataManager
	}
	if startPos < 0 {
		startPos = 0
	}
	r.tuneType = tuneType

	first, last := r.dm.GetFirstFragment(), r.dm.GetLastFragment()
	if first == nil || last == nil {
		r.logger.Info("tsb is empty")
		r.trackEnabled = false
		return startPos, nil
	}

	var target float64
	if last.position-first.position < startPos {
		r.logger.Warn("seek beyond tsb end, starting at last fragment",
			slog.Float64("requested", startPos),
			slog.Float64("window_start", first.position),
			slog.Float64("window_end", last.position),
			slog.String("tune_type", tuneType.String()),
		)
		target = last.position
	} else {
		target = first.position + startPos
	}

	selected := r.dm.GetNearestFragment(target)
	if r.mediaType != media.Video && sync != nil {
		videoPTS := sync.FirstPTS()
		for selected != nil && selected.pts > videoPTS {
			if selected.prev == nil || selected.prev.periodID != selected.periodID {
				break
			}
			selected = selected.prev
		}
	}
	if selected == nil {
		r.logger.Error("no fragment to start from", slog.Float64("position", target))
		return startPos, nil
	}

	r.startPosition = selected.position
	r.upcomingPosition = r.startPosition
	r.rate = rate
	// Only video is injected during trick play.
	r.trackEnabled = rate == media.NormalPlayRate || r.mediaType == media.Video
	r.firstPTS = selected.pts
	r.initialized = true

	r.logger.Info("reader initialised",
		slog.Float64("start_position", r.startPosition),
		slog.Float64("relative", r.startPosition-first.position),
		slog.Float64("rate", rate),
		slog.Float64("pts", r.firstPTS),
		slog.Float64("window_start", first.position),
		slog.Float64("window_end", last.position),
	)
	return selected.position, nil
}

// DeInit clears the cursor so that the reader can be initialised again.
func (r *Reader) DeInit() {
	r.startPosition = 0
	r.upcomingPosition = 0
	r.rate = media.NormalPlayRate
	r.initialized = false
	r.eos = false
	r.trackEnabled = false
	r.firstPTS = 0
	r.currentBandwidth = 0
	r.tuneType = media.TuneNewNormal
	r.periodBoundary = false
	r.nextDisc = false

	r.endMu.Lock()
	if r.endInjected {
		r.endInjected = false
		r.endCh = make(chan struct{})
	}
	r.endMu.Unlock()
}

// ReadNext returns the fragment at the cursor and advances it in the
// direction of the playback rate. It returns nil when nothing is available.
func (r *Reader) ReadNext() *Fragment {
	if !r.initialized {
		r.logger.Error("reader not initialised")
		return nil
	}
	r.periodBoundary = false

	ret, eos := r.dm.GetFragment(r.upcomingPosition)
	r.eos = eos
	if ret == nil {
		observability.Trace(context.Background(), r.logger, "retrying fragment lookup",
			slog.Float64("position", r.upcomingPosition),
			slog.Bool("eos", r.eos),
		)
		ret = r.dm.GetNearestFragment(r.upcomingPosition - media.Epsilon)
		if ret == nil {
			r.logger.Error("no fragment available", slog.Float64("position", r.upcomingPosition))
			return nil
		}
		// The nearest fragment is the one injected last; step past it.
		if r.rate > 0 && ret.position+media.Epsilon < r.upcomingPosition {
			ret = ret.next
		} else if r.rate < 0 && ret.position-media.Epsilon > r.upcomingPosition {
			ret = ret.prev
		}
		if ret == nil {
			if r.rate != media.NormalPlayRate {
				// Culled under the cursor during trick play.
				r.eos = true
			}
			return nil
		}
	}

	if r.rate >= 0 {
		r.eos = ret.next == nil
	} else {
		r.eos = ret.prev == nil
	}
	// Seek to live must leave through the live downloader once the newest
	// init fragment has been pushed.
	if r.tuneType == media.TuneSeekToLive {
		r.eos = r.eos && !r.newInitWaiting
	}

	if r.rate >= 0 {
		r.nextDisc = ret.discontinuity
	} else {
		r.nextDisc = ret.next != nil && ret.next.discontinuity
	}
	if r.rate == media.NormalPlayRate {
		r.detectDiscontinuity(ret)
	}

	if r.rate >= 0 {
		r.upcomingPosition += ret.duration
	} else {
		r.upcomingPosition -= ret.duration
	}

	r.logger.Debug("returning fragment",
		slog.Float64("position", ret.position),
		slog.Float64("pts", ret.pts),
		slog.Float64("next", r.upcomingPosition),
		slog.Bool("eos", r.eos),
		slog.Bool("init_waiting", r.newInitWaiting),
		slog.Bool("discontinuity", r.nextDisc),
		slog.Bool("period_boundary", r.periodBoundary),
		slog.String("period", ret.periodID),
		slog.String("url", ret.url),
	)
	return ret
}

// detectDiscontinuity flags a period change whose timestamps do not carry on
// from the adjacent fragment.
func (r *Reader) detectDiscontinuity(cur *Fragment) {
	if !r.IsFirstDownload() {
		adj := cur.prev
		if r.rate < 0 {
			adj = cur.next
		}
		r.periodBoundary = adj != nil && adj.periodID != cur.periodID
	}
	if !r.periodBoundary {
		return
	}
	var expected float64
	if r.rate >= 0 {
		expected = cur.prev.pts + cur.prev.duration
	} else {
		expected = cur.next.pts - cur.next.duration
	}
	if expected != cur.pts {
		r.firstPTS = cur.pts
		r.logger.Info("discontinuity detected", slog.Float64("pts", r.firstPTS))
		return
	}
	r.periodBoundary = false
}

// StartPosition returns the start position relative to the first stored fragment.
func (r *Reader) StartPosition() float64 {
	if r.startPosition < 0 || r.dm == nil {
		return 0
	}
	f := r.dm.GetNearestFragment(r.startPosition - media.Epsilon)
	if f == nil {
		return 0
	}
	return f.position - r.dm.GetFirstFragmentPosition()
}

// CheckForWaitIfReaderDone blocks until the reader has injected its last
// fragment or ctx is done.
func (r *Reader) CheckForWaitIfReaderDone(ctx context.Context) error {
	r.endMu.Lock()
	ch := r.endCh
	r.endMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AbortCheckForWaitIfReaderDone marks the end fragment as injected and
// releases every goroutine parked in CheckForWaitIfReaderDone.
func (r *Reader) AbortCheckForWaitIfReaderDone() {
	r.endMu.Lock()
	defer r.endMu.Unlock()
	if !r.endInjected {
		r.endInjected = true
		close(r.endCh)
	}
}

// IsEndFragmentInjected reports whether the end fragment wait was released.
func (r *Reader) IsEndFragmentInjected() bool {
	r.endMu.Lock()
	defer r.endMu.Unlock()
	return r.endInjected
}

func (r *Reader) IsEos() bool                { return r.eos }
func (r *Reader) ResetEos()                  { r.eos = false }
func (r *Reader) SetNewInitWaiting(v bool)   { r.newInitWaiting = v }
func (r *Reader) NewInitWaiting() bool       { return r.newInitWaiting }
func (r *Reader) IsFirstDownload() bool      { return r.startPosition == r.upcomingPosition }
func (r *Reader) TrackEnabled() bool         { return !r.eos && r.trackEnabled }
func (r *Reader) FirstPTS() float64          { return r.firstPTS }
func (r *Reader) PlaybackRate() float64      { return r.rate }
func (r *Reader) MediaType() media.MediaType { return r.mediaType }
func (r *Reader) IsDiscontinuous() bool      { return r.nextDisc }
func (r *Reader) IsPeriodBoundary() bool     { return r.periodBoundary }
func (r *Reader) TuneType() media.TuneType   { return r.tuneType }
func (r *Reader) Initialized() bool          { return r.initialized }
func (r *Reader) CurrentBandwidth() float64  { return r.currentBandwidth }

// SetCurrentBandwidth records the bandwidth of the last injected init fragment.
func (r *Reader) SetCurrentBandwidth(bw float64) {
	r.currentBandwidth = bw
}
