// Package tsb implements the time-shift buffer session: a disk backed rolling
// window of recently downloaded fragments with per-track indexes, a single
// writer that evicts under storage pressure, and playback readers that
// support seeking and trick play.
package tsb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jmylchreest/tsb/internal/config"
	"github.com/jmylchreest/tsb/internal/isobmff"
	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/metrics"
	"github.com/jmylchreest/tsb/internal/observability"
	"github.com/jmylchreest/tsb/internal/storage"
)

type sessionState int32

const (
	stateUninitialized sessionState = iota
	stateInitializing
	stateReady
	stateFlushed
)

func (s sessionState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitializing:
		return "initializing"
	case stateReady:
		return "ready"
	case stateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Options configures a SessionManager. Only Config is required.
type Options struct {
	Config config.Config
	// Logger defaults to a logger built from Config at the session log level.
	Logger *slog.Logger
	// SessionID names the store sub-directory; a random UUID when empty.
	SessionID string
	// OpenStore defaults to DefaultStoreOpener.
	OpenStore StoreOpener
	Player    Player
	InitCache InitFragmentCache
	// PTS defaults to an isobmff.PTSCalculator.
	PTS PTSRecalculator
	// Keyframes defaults to an isobmff.KeyframeConverter.
	Keyframes KeyframeConverter
}

// track is the per-track state owned by the session.
type track struct {
	dm     *DataManager
	reader *Reader
	// discontinuity is carried from an init write to the next media write.
	discontinuity bool
}

// eviction is a fragment removed from an index whose store key still needs
// to be deleted. Init fragment keys are only removed by Flush; a writer may
// re-register the same init URL between the index removal and the delete.
type eviction struct {
	mediaType media.MediaType
	url       string
}

// SessionManager owns the store, the per-track indexes and readers and the
// write pipeline of one time-shift buffer session.
type SessionManager struct {
	cfg       config.Config
	logger    *slog.Logger
	sessionID string
	openStore StoreOpener
	player    Player
	initCache InitFragmentCache
	pts       PTSRecalculator
	keyframes KeyframeConverter

	lifeMu sync.Mutex
	state  atomic.Int32
	store  FragmentStore
	writer *writer

	// mu guards the indexes, reader cursors and the position fields below.
	mu               sync.Mutex
	tracks           [media.TrackCount]track
	activeTuneType   media.TuneType
	lastVideoPos     float64
	culledDuration   float64
	storeEndPosition float64
	liveEndPosition  float64
	trickPlayStart   bool
}

// NewSessionManager creates an uninitialised session.
func NewSessionManager(opts Options) *SessionManager {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(config.LoggingConfig{
			Level:     opts.Config.SessionLogLevel(),
			Format:    opts.Config.Logging.Format,
			AddSource: opts.Config.Logging.AddSource,
		})
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	logger = observability.WithSession(observability.WithComponent(logger, "tsb"), sessionID)

	s := &SessionManager{
		cfg:          opts.Config,
		logger:       logger,
		sessionID:    sessionID,
		openStore:    opts.OpenStore,
		player:       opts.Player,
		initCache:    opts.InitCache,
		pts:          opts.PTS,
		keyframes:    opts.Keyframes,
		lastVideoPos: InvalidPosition,
	}
	if s.openStore == nil {
		s.openStore = DefaultStoreOpener
	}
	if s.player == nil {
		s.player = &nopPlayer{}
	}
	if s.pts == nil {
		s.pts = isobmff.NewPTSCalculator(logger)
	}
	if s.keyframes == nil {
		s.keyframes = isobmff.NewKeyframeConverter()
	}
	return s
}

// Init opens the session store, creates the track indexes and readers and
// starts the writer. Calling Init on a ready session is a no-op.
func (s *SessionManager) Init() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	switch sessionState(s.state.Load()) {
	case stateReady:
		return nil
	case stateFlushed:
		return ErrSessionFlushed
	}
	s.state.Store(int32(stateInitializing))

	storeCfg := storage.Config{
		Backend:           s.cfg.Storage.Backend,
		MaxCapacity:       s.cfg.Storage.MaxCapacity.Bytes(),
		MinFreePercentage: s.cfg.Storage.MinFreePercentage,
		Logger:            s.logger,
	}
	if s.cfg.TSB.Location != "" {
		storeCfg.Location = filepath.Join(s.cfg.TSB.Location, s.sessionID)
	}
	s.logger.Info("initialising tsb store",
		slog.String("backend", storeCfg.Backend),
		slog.String("location", storeCfg.Location),
		slog.Int64("max_capacity", storeCfg.MaxCapacity),
		slog.Int("min_free_percentage", storeCfg.MinFreePercentage),
		slog.String("log_level", s.cfg.SessionLogLevel()),
	)

	store, err := s.openStore(storeCfg)
	if err != nil {
		s.state.Store(int32(stateUninitialized))
		return fmt.Errorf("opening tsb store: %w", err)
	}
	s.store = store

	s.mu.Lock()
	for _, mt := range media.Tracks() {
		dm := NewDataManager()
		s.tracks[mt.Index()] = track{dm: dm, reader: NewReader(dm, mt, s.logger)}
	}
	s.mu.Unlock()

	s.writer = newWriter(store, s, s.logger)
	s.writer.start()
	s.state.Store(int32(stateReady))
	return nil
}

// ready reports whether the session accepts operations, logging op otherwise.
func (s *SessionManager) ready(op string) bool {
	st := sessionState(s.state.Load())
	if st == stateReady {
		return true
	}
	s.logger.Error("session manager not initialized",
		slog.String("operation", op),
		slog.String("state", st.String()),
	)
	return false
}

// Flush stops the writer, wipes the store and every index and resets the
// session positions. The session cannot be initialised again.
func (s *SessionManager) Flush() (err error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	done := observability.TimedOperationWithError(context.Background(), s.logger, "tsb flush", &err)
	defer done()

	prev := sessionState(s.state.Swap(int32(stateFlushed)))
	if prev == stateReady {
		s.writer.stop()
		if ferr := s.store.Flush(); ferr != nil {
			err = fmt.Errorf("flushing tsb store: %w", ferr)
		}

		s.mu.Lock()
		for i := range s.tracks {
			t := &s.tracks[i]
			t.dm.Flush()
			t.reader.DeInit()
			t.reader.AbortCheckForWaitIfReaderDone()
			t.discontinuity = false
			metrics.SetStoreDuration(media.MediaType(i).String(), 0)
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.storeEndPosition = 0
	s.liveEndPosition = 0
	s.lastVideoPos = InvalidPosition
	s.mu.Unlock()
	return err
}

// ReadInit returns the init fragment described by d, preferring the init
// fragment cache over the store. It returns nil when the fragment cannot be
// read.
func (s *SessionManager) ReadInit(d *InitDescriptor) *CachedFragment {
	if !s.ready("read init fragment") || d == nil {
		return nil
	}
	out := &CachedFragment{
		Type:         d.mediaType.Init(),
		URI:          d.url,
		InitFragment: true,
		ProfileIndex: d.profileIndex,
		StreamInfo:   d.streamInfo,
	}
	if s.initCache != nil {
		if data, effective, ok := s.initCache.Retrieve(d.url); ok {
			out.Data = data
			out.URI = effective
			return out
		}
	}

	data, err := s.readStore(d.url)
	if err != nil {
		s.logger.Warn("failed to read init fragment",
			slog.String("url", d.url),
			slog.String("error", err.Error()),
		)
		metrics.IncReadFailure(d.mediaType.Init().String())
		return nil
	}
	out.Data = data
	return out
}

// ReadFragment returns the media fragment described by f and its
// presentation time. It returns nil when the fragment cannot be read.
func (s *SessionManager) ReadFragment(f *Fragment) (*CachedFragment, float64) {
	if !s.ready("read fragment") || f == nil {
		return nil, 0
	}
	if f.init == nil {
		s.logger.Warn("fragment has no init fragment", slog.String("url", f.url))
		return nil, 0
	}

	data, err := s.readStore(f.url)
	if err != nil {
		s.logger.Warn("failed to read fragment",
			slog.String("url", f.url),
			slog.String("error", err.Error()),
		)
		metrics.IncReadFailure(f.mediaType.String())
		return nil, 0
	}

	out := &CachedFragment{
		Type:          f.init.mediaType,
		URI:           f.url,
		Data:          data,
		Position:      f.position,
		AbsPosition:   f.position,
		Duration:      f.duration,
		Discontinuity: f.discontinuity,
		ProfileIndex:  f.init.profileIndex,
		StreamInfo:    f.init.streamInfo,
	}
	s.logger.Info("read fragment from tsb",
		slog.String("media_type", f.mediaType.String()),
		slog.Float64("position", f.position),
		slog.Float64("pts", f.pts),
		slog.Float64("duration", f.duration),
		slog.Bool("discontinuity", f.discontinuity),
		slog.String("url", f.url),
	)
	return out, f.pts
}

// readStore reads key in full. Store I/O never happens under s.mu.
func (s *SessionManager) readStore(key string) ([]byte, error) {
	size, err := s.store.Size(key)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("zero length fragment: %s", key)
	}
	buf := make([]byte, size)
	n, err := s.store.Read(key, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// EnqueueWrite queues fragment for persistence under url. The fragment is
// indexed once the store acknowledges the write.
func (s *SessionManager) EnqueueWrite(url string, fragment *CachedFragment, periodID string) error {
	if !s.ready("enqueue write") {
		return ErrNotInitialized
	}
	if fragment == nil {
		return fmt.Errorf("nil fragment for %s", url)
	}
	mt := fragment.Type.Track()
	if mt.Index() < 0 {
		s.logger.Warn("no data manager for media type", slog.Int("media_type", int(fragment.Type)))
		return ErrNoDataManager
	}

	pts := s.pts.RecalculatePTS(fragment.Type, fragment.Data)
	job := WriteJob{URL: url, Fragment: fragment, PTS: pts, PeriodID: periodID}
	observability.Trace(context.Background(), s.logger, "enqueueing write",
		slog.String("media_type", fragment.Type.String()),
		slog.String("url", url),
		slog.Float64("pts", pts),
	)
	if !s.writer.enqueue(job) {
		return ErrNotInitialized
	}
	return nil
}

// commitWrite registers a persisted job with its track index.
func (s *SessionManager) commitWrite(job WriteJob, mt media.MediaType, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &s.tracks[mt.Index()]
	frag := job.Fragment
	if frag.InitFragment {
		if t.dm.AddInitFragment(job.URL, mt, frag.StreamInfo, job.PeriodID, frag.ProfileIndex) {
			t.reader.SetNewInitWaiting(true)
			s.logger.Info("new init active at live edge",
				slog.String("media_type", mt.String()),
				slog.String("url", job.URL),
			)
		}
		t.discontinuity = frag.Discontinuity
		return
	}

	added := t.dm.AddFragment(job, mt, t.discontinuity)
	t.discontinuity = false
	if existed {
		// Re-ingested fragments are only indexed when missing.
		return
	}
	t.reader.SetNewInitWaiting(false)
	if !added {
		s.logger.Warn("fragment not indexed",
			slog.String("media_type", mt.String()),
			slog.Float64("position", frag.Position),
			slog.Float64("last_position", t.dm.GetLastFragmentPosition()),
			slog.String("url", job.URL),
		)
		return
	}
	// Seek to live leaves through the live downloader, so its EOS stands.
	if s.activeTuneType != media.TuneSeekToLive {
		t.reader.ResetEos()
	}
}

// evictOldest drops the oldest fragment of mt to make room for a write.
func (s *SessionManager) evictOldest(mt media.MediaType) error {
	s.mu.Lock()
	removed, initDeleted := s.tracks[mt.Index()].dm.RemoveFragment()
	s.mu.Unlock()
	if removed == nil {
		return errTrackEmpty
	}

	ev := eviction{mediaType: mt, url: removed.url}
	if initDeleted {
		s.logger.Debug("init fragment no longer referenced",
			slog.String("media_type", mt.String()),
			slog.String("url", removed.init.url),
		)
	}
	s.logger.Info("evicted fragment for write",
		slog.String("media_type", mt.String()),
		slog.Float64("duration", removed.duration),
		slog.Float64("position", removed.position),
		slog.Float64("pts", removed.pts),
		slog.String("url", removed.url),
	)
	s.deleteEvicted(metrics.ReasonWritePressure, ev)
	return nil
}

// deleteEvicted removes evicted fragments from the store.
func (s *SessionManager) deleteEvicted(reason string, evs ...eviction) {
	for _, ev := range evs {
		s.deleteKey(ev.url)
		metrics.IncEviction(ev.mediaType.String(), reason)
	}
}

func (s *SessionManager) deleteKey(key string) {
	if err := s.store.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to delete fragment from store",
			slog.String("url", key),
			slog.String("error", err.Error()),
		)
	}
}

// InvokeTsbReaders repositions every reader position seconds after the start
// of the buffer. Video is positioned first; the other tracks follow it at
// normal rate and stay idle during trick play. It returns the position of
// the selected video fragment relative to the start of the buffer.
func (s *SessionManager) InvokeTsbReaders(position, rate float64, tuneType media.TuneType) (float64, error) {
	if !s.ready("invoke tsb readers") {
		return position, ErrNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if position < 0 {
		s.logger.Info("relative position reset to 0", slog.Float64("requested", position))
		position = 0
	}
	s.activeTuneType = tuneType

	video := s.tracks[media.Video.Index()].reader
	video.DeInit()
	if _, err := video.Init(position, rate, tuneType, nil); err != nil {
		return position, err
	}

	tracks := media.Tracks()
	for i := len(tracks) - 1; i > 0; i-- {
		r := s.tracks[tracks[i].Index()].reader
		r.DeInit()
		if rate != media.NormalPlayRate {
			continue
		}
		if _, err := r.Init(position, rate, tuneType, video); err != nil {
			return position, err
		}
	}

	if video.Initialized() {
		return video.StartPosition(), nil
	}
	return position, nil
}

// MarkTrickPlayStart makes the next trick play skip start from the fragment
// the reader is positioned on.
func (s *SessionManager) MarkTrickPlayStart() {
	s.mu.Lock()
	s.trickPlayStart = true
	s.mu.Unlock()
}

// skipFragment advances the video reader by the span of content covered by
// one trick play frame. Called with s.mu held.
func (s *SessionManager) skipFragment(r *Reader, next *Fragment) *Fragment {
	if next == nil || r.IsEos() || r.MediaType() != media.Video {
		return next
	}

	rate := r.PlaybackRate()
	start := next.position
	var delta float64
	if s.trickPlayStart {
		s.logger.Warn("playback switched to trick play, skip delta set to zero")
		s.trickPlayStart = false
	} else {
		fps := s.cfg.TSB.TrickplayFPS
		if fps < 1 {
			fps = 1
		}
		delta = math.Abs(rate) / float64(fps)
	}

	var skipped float64
	for next != nil && delta >= next.duration {
		delta -= next.duration
		skipped += next.duration
		next = r.ReadNext()
		if r.IsEos() {
			break
		}
	}

	if next != nil {
		s.logger.Info("skipped fragments",
			slog.Float64("rate", rate),
			slog.Float64("from", start),
			slog.Float64("to", next.position),
			slog.Float64("skipped", skipped),
		)
	} else {
		s.logger.Info("no fragment after skip", slog.Bool("eos", r.IsEos()))
	}
	return next
}

// PushNextTsbFragment reads the next fragment of the stream context's track
// and hands it, preceded by its init fragment when required, to the sink.
// It returns false when nothing was delivered.
func (s *SessionManager) PushNextTsbFragment(sc StreamContext) bool {
	if !s.ready("push next tsb fragment") {
		return false
	}
	mt := sc.MediaType()
	idx := mt.Index()
	if idx < 0 || mt.IsInit() {
		s.logger.Error("no reader for media type", slog.Int("media_type", int(mt)))
		return false
	}

	s.mu.Lock()
	t := &s.tracks[idx]
	r := t.reader
	if !r.TrackEnabled() {
		s.mu.Unlock()
		s.logger.Debug("track not enabled", slog.String("media_type", mt.String()))
		return false
	}

	firstDownload := r.IsFirstDownload()
	next := r.ReadNext()
	rate := r.PlaybackRate()
	trick := media.IsTrickPlay(rate)
	if trick && mt == media.Video {
		next = s.skipFragment(r, next)
	}

	var (
		initDesc *InitDescriptor
		needInit bool
		disc     bool
		firstPos float64
	)
	if next != nil {
		initDesc = next.init
		disc = r.IsDiscontinuous()
		bw := initDesc.Bandwidth()
		if bw != r.CurrentBandwidth() {
			s.logger.Info("profile changed",
				slog.String("media_type", mt.String()),
				slog.Float64("bandwidth", bw),
				slog.Float64("previous_bandwidth", r.CurrentBandwidth()),
			)
		}
		needInit = disc || firstDownload || bw != r.CurrentBandwidth()
		if needInit {
			r.SetCurrentBandwidth(bw)
		}
		firstPos = t.dm.GetFirstFragmentPosition()
	}
	eos := r.IsEos()
	s.mu.Unlock()

	ok := s.deliver(sc, next, initDesc, needInit, disc, firstPos, trick)
	if eos {
		// Unblock the live downloader waiting for the last injection.
		r.AbortCheckForWaitIfReaderDone()
	}
	return ok
}

// deliver fetches and injects the init and media fragments selected by
// PushNextTsbFragment. It runs without s.mu.
func (s *SessionManager) deliver(sc StreamContext, next *Fragment, initDesc *InitDescriptor, needInit, disc bool, firstPos float64, trick bool) bool {
	if next == nil {
		return false
	}
	mt := sc.MediaType()

	if needInit {
		initFrag := s.ReadInit(initDesc)
		if initFrag == nil {
			s.logger.Error("failed to get init fragment", slog.String("media_type", mt.String()))
			return false
		}
		if disc {
			initFrag.Discontinuity = true
		}
		// The sink overrides its timeline from the init position.
		initFrag.Position = next.pts
		if !sc.CacheTsbFragment(initFrag) {
			return false
		}
	}

	frag, pts := s.ReadFragment(next)
	if frag == nil {
		s.logger.Error("failed to fetch fragment",
			slog.String("media_type", mt.String()),
			slog.Float64("position", next.position),
		)
		return false
	}
	sc.SetDownloadedDuration(s.player.CulledSeconds() + (next.position - firstPos) + next.duration)

	if s.cfg.TSB.IFrameExtraction && trick && mt == media.Video {
		converted, err := s.keyframes.ConvertToKeyFrame(frag.Data)
		if err != nil {
			s.logger.Error("failed to generate iframe track from video",
				slog.Float64("position", next.position),
				slog.String("error", err.Error()),
			)
		} else {
			frag.Data = converted
		}
	}
	frag.Position = pts
	return sc.CacheTsbFragment(frag)
}

// UpdateProgress culls the buffer and publishes the resulting window to the
// player. It is called once per progress tick.
func (s *SessionManager) UpdateProgress(manifestDuration, manifestCulled float64) {
	if !s.ready("update progress") {
		return
	}

	culled := s.CullSegments()
	if culled > 0 {
		observability.Trace(context.Background(), s.logger, "updating culled seconds", slog.Float64("culled", culled))
		s.player.UpdateCullingState(culled)
	}

	s.mu.Lock()
	first := s.tracks[media.Video.Index()].dm.GetFirstFragmentPosition()
	s.storeEndPosition = first + s.totalStoreDuration(media.Video)
	storeEnd := s.storeEndPosition
	for _, mt := range media.Tracks() {
		metrics.SetStoreDuration(mt.String(), math.Max(s.totalStoreDuration(mt), 0))
	}
	s.mu.Unlock()

	s.player.SetCulledSeconds(first)
	absEnd := s.player.AbsoluteEndPosition()

	s.mu.Lock()
	s.liveEndPosition = absEnd
	s.mu.Unlock()

	observability.Trace(context.Background(), s.logger, "live downloader progress",
		slog.Float64("manifest_duration", manifestDuration),
		slog.Float64("manifest_culled", manifestCulled),
		slog.Float64("store_end", storeEnd),
	)
	if s.cfg.TSB.ProgressLogging {
		s.logger.Info("tsb position",
			slog.Float64("start", first),
			slog.Float64("end", absEnd),
		)
	}
	s.player.UpdateDuration(absEnd - first)
}

// GetManifestEndDelta reports 1 when the store end lies beyond the live end
// position and 0 otherwise, including before the first progress update.
func (s *SessionManager) GetManifestEndDelta() float64 {
	absEnd := s.player.AbsoluteEndPosition()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeEndPosition > 0 && absEnd > 0 {
		if s.storeEndPosition-absEnd > 0 {
			return 1
		}
		return 0
	}
	s.logger.Warn("tsb progress not updated yet")
	return 0
}

// GetVideoBitrate returns the bandwidth of the last video init fragment
// injected, in bits per second.
func (s *SessionManager) GetVideoBitrate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.tracks[media.Video.Index()].reader
	if r == nil {
		return 0
	}
	return r.CurrentBandwidth()
}

// TotalStoreDuration returns the buffered duration of mt in seconds, or -1
// when the track has no index.
func (s *SessionManager) TotalStoreDuration(mt media.MediaType) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalStoreDuration(mt)
}

func (s *SessionManager) totalStoreDuration(mt media.MediaType) float64 {
	idx := mt.Index()
	if idx < 0 || s.tracks[idx].dm == nil {
		s.logger.Error("no data manager for media type", slog.Int("media_type", int(mt)))
		return -1
	}
	dm := s.tracks[idx].dm
	last := dm.GetLastFragment()
	if last == nil {
		return 0
	}
	return last.End() - dm.GetFirstFragmentPosition()
}

// CulledDuration returns the total seconds culled from the video track.
func (s *SessionManager) CulledDuration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.culledDuration
}

// StoreEndPosition returns the absolute end of the buffered video.
func (s *SessionManager) StoreEndPosition() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeEndPosition
}

// LiveEndPosition returns the live end position seen at the last progress update.
func (s *SessionManager) LiveEndPosition() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveEndPosition
}

// ActiveTuneType returns the tune type of the last reader invocation.
func (s *SessionManager) ActiveTuneType() media.TuneType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTuneType
}

// SessionID returns the session identifier.
func (s *SessionManager) SessionID() string { return s.sessionID }

// DataManager returns the index of mt, or nil. The index is shared with the
// writer; callers must not use it while writes are pending.
func (s *SessionManager) DataManager(mt media.MediaType) *DataManager {
	idx := mt.Index()
	if idx < 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[idx].dm
}

// Reader returns the reader of mt, or nil.
func (s *SessionManager) Reader(mt media.MediaType) *Reader {
	idx := mt.Index()
	if idx < 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[idx].reader
}

// WaitForWrites blocks until the write queue is drained.
func (s *SessionManager) WaitForWrites() {
	if sessionState(s.state.Load()) != stateReady {
		return
	}
	s.writer.waitIdle()
}

// PendingWrites returns the number of queued and in-flight writes.
func (s *SessionManager) PendingWrites() int {
	if sessionState(s.state.Load()) != stateReady {
		return 0
	}
	return s.writer.Pending()
}

// nopPlayer stands in when the session runs without a player.
type nopPlayer struct {
	mu     sync.Mutex
	culled float64
}

func (p *nopPlayer) UpdateCullingState(float64)   {}
func (p *nopPlayer) UpdateDuration(float64)       {}
func (p *nopPlayer) AbsoluteEndPosition() float64 { return 0 }

func (p *nopPlayer) SetCulledSeconds(seconds float64) {
	p.mu.Lock()
	p.culled = seconds
	p.mu.Unlock()
}

func (p *nopPlayer) CulledSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.culled
}
