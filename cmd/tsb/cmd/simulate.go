package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/tsb/internal/cache"
	"github.com/jmylchreest/tsb/internal/config"
	"github.com/jmylchreest/tsb/internal/isobmff"
	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/observability"
	"github.com/jmylchreest/tsb/internal/tsb"
)

const syntheticBandwidth = 3_000_000

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive a session with a synthetic live stream",
	Long: `Simulate ingests a synthetic fMP4 live stream (VP9 video and AAC audio)
into a time-shift buffer session, culls it to the configured maximum
length, then seeks and plays the buffer back and prints a report.

  tsb simulate --fragments 300 --max-length 2m --seek 30 --rate 8`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.Int("fragments", 120, "number of fragments per track to ingest")
	f.Float64("fragment-duration", 2, "fragment duration in seconds")
	f.Float64("seek", 0, "playback start in seconds from the start of the buffer")
	f.Float64("rate", media.NormalPlayRate, "playback rate (negative to rewind)")
	f.Bool("metrics", false, "include tsb metric totals in the report")
	f.String("max-length", "", "override tsb.max_length")
	f.String("backend", "", "override storage.backend (file, badger, memory)")
	f.String("location", "", "override tsb.location")
	f.Bool("iframe", false, "override tsb.iframe_extraction")
	rootCmd.AddCommand(simulateCmd)
}

// simulateOptions controls a simulation run.
type simulateOptions struct {
	Fragments        int
	FragmentDuration float64
	Seek             float64
	Rate             float64
}

// trackReport summarises what the playback sink received for one track.
type trackReport struct {
	Stored             int     `yaml:"stored"`
	InitsInjected      int     `yaml:"inits_injected"`
	FragmentsInjected  int     `yaml:"fragments_injected"`
	Bytes              int64   `yaml:"bytes"`
	FirstPTS           float64 `yaml:"first_pts"`
	LastPTS            float64 `yaml:"last_pts"`
	NonKeyframeSamples int     `yaml:"non_keyframe_samples"`
}

// simulationReport is the result of a simulation run.
type simulationReport struct {
	SessionID      string                 `yaml:"session_id"`
	Backend        string                 `yaml:"backend"`
	Ingested       int                    `yaml:"ingested_per_track"`
	Culled         float64                `yaml:"culled_seconds"`
	StoreDuration  float64                `yaml:"store_duration_seconds"`
	StartPosition  float64                `yaml:"start_position"`
	ManifestDelta  float64                `yaml:"manifest_end_delta"`
	DownloadedUpTo float64                `yaml:"downloaded_up_to"`
	PlayerWindow   float64                `yaml:"player_window_seconds"`
	PlayerCulled   float64                `yaml:"player_culled_seconds"`
	Tracks         map[string]trackReport `yaml:"tracks"`
	Metrics        map[string]float64     `yaml:"metrics,omitempty"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	overrideFromFlag(flags, "max-length", "tsb.max_length")
	overrideFromFlag(flags, "backend", "storage.backend")
	overrideFromFlag(flags, "location", "tsb.location")
	overrideFromFlag(flags, "iframe", "tsb.iframe_extraction")

	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	var opts simulateOptions
	opts.Fragments, _ = flags.GetInt("fragments")
	opts.FragmentDuration, _ = flags.GetFloat64("fragment-duration")
	opts.Seek, _ = flags.GetFloat64("seek")
	opts.Rate, _ = flags.GetFloat64("rate")
	withMetrics, _ := flags.GetBool("metrics")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runSimulation(ctx, cfg, opts, slog.Default())
	if err != nil {
		return err
	}
	if withMetrics {
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return fmt.Errorf("gathering metrics: %w", err)
		}
		report.Metrics = metricTotals(families, "tsb_")
	}
	return writeReport(cmd.OutOrStdout(), report)
}

// runSimulation ingests a synthetic stream into a new session and plays it
// back from opts.Seek at opts.Rate.
func runSimulation(ctx context.Context, cfg *config.Config, opts simulateOptions, logger *slog.Logger) (report *simulationReport, err error) {
	if opts.Fragments < 1 {
		return nil, fmt.Errorf("fragments must be at least 1")
	}
	if opts.FragmentDuration <= 0 {
		return nil, fmt.Errorf("fragment duration must be positive")
	}
	logger = observability.WithComponent(observability.OrDefault(logger), "simulate")
	done := observability.TimedOperationWithError(ctx, logger, "simulation", &err)
	defer done()

	stream := isobmff.NewSyntheticStream(opts.FragmentDuration)
	initCache := cache.NewInitFragmentCache(cfg.Cache.InitFragmentTTL.Duration(), cfg.Cache.CleanupInterval.Duration())
	defer initCache.Flush()
	player := &livePlayer{}

	session := tsb.NewSessionManager(tsb.Options{
		Config:    *cfg,
		Logger:    logger,
		Player:    player,
		InitCache: initCache,
	})
	if err := session.Init(); err != nil {
		return nil, err
	}
	defer func() {
		if ferr := session.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	src := &syntheticSource{stream: stream, session: session, cache: initCache}
	if err := src.writeInits(); err != nil {
		return nil, err
	}
	for i := 0; i < opts.Fragments; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := src.writeFragment(i); err != nil {
			return nil, err
		}
		player.advance(opts.FragmentDuration)
		live := player.AbsoluteEndPosition()
		session.UpdateProgress(live, live-session.TotalStoreDuration(media.Video))
	}
	session.WaitForWrites()
	session.UpdateProgress(player.AbsoluteEndPosition(), player.CulledSeconds())

	report = &simulationReport{
		SessionID:     session.SessionID(),
		Backend:       cfg.Storage.Backend,
		Ingested:      opts.Fragments,
		Culled:        session.CulledDuration(),
		StoreDuration: session.TotalStoreDuration(media.Video),
		ManifestDelta: session.GetManifestEndDelta(),
		Tracks:        make(map[string]trackReport),
	}
	report.PlayerWindow, report.PlayerCulled = player.window()

	if media.IsTrickPlay(opts.Rate) {
		session.MarkTrickPlayStart()
	}
	report.StartPosition, err = session.InvokeTsbReaders(opts.Seek, opts.Rate, media.TuneSeek)
	if err != nil {
		return nil, fmt.Errorf("invoking readers: %w", err)
	}

	sinks := []*collectingSink{{mediaType: media.Video}, {mediaType: media.Audio}}
	for i := range sinks {
		sinks[i].stored = session.DataManager(sinks[i].mediaType).Count()
	}
	limit := 4*opts.Fragments + 8
	for n := 0; n < limit; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pushed := false
		for _, sink := range sinks {
			if session.PushNextTsbFragment(sink) {
				pushed = true
			}
		}
		if !pushed {
			break
		}
	}

	for _, sink := range sinks {
		report.Tracks[strings.ToLower(sink.mediaType.String())] = sink.report()
		if sink.mediaType == media.Video {
			report.DownloadedUpTo = sink.downloaded
		}
	}
	logger.Info("simulation finished",
		slog.Float64("culled", report.Culled),
		slog.Float64("store_duration", report.StoreDuration),
		slog.Int("video_injected", report.Tracks["video"].FragmentsInjected),
		slog.Int("audio_injected", report.Tracks["audio"].FragmentsInjected),
	)
	return report, nil
}

// syntheticSource feeds the synthetic stream into a session the way a live
// downloader would.
type syntheticSource struct {
	stream  *isobmff.SyntheticStream
	session *tsb.SessionManager
	cache   *cache.InitFragmentCache
}

func (s *syntheticSource) writeInits() error {
	video, err := s.stream.VideoInit()
	if err != nil {
		return fmt.Errorf("building video init: %w", err)
	}
	audio, err := s.stream.AudioInit()
	if err != nil {
		return fmt.Errorf("building audio init: %w", err)
	}
	info := tsb.StreamInfo{
		Bandwidth: syntheticBandwidth,
		Width:     s.stream.Width,
		Height:    s.stream.Height,
		FrameRate: float64(s.stream.FrameRate),
	}
	for _, in := range []struct {
		mt   media.MediaType
		data []byte
	}{{media.InitVideo, video}, {media.InitAudio, audio}} {
		url := initURL(in.mt.Track())
		s.cache.Store(url, url, in.data)
		err := s.session.EnqueueWrite(url, &tsb.CachedFragment{
			Type:         in.mt,
			URI:          url,
			Data:         in.data,
			InitFragment: true,
			StreamInfo:   info,
		}, "p0")
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *syntheticSource) writeFragment(i int) error {
	video, err := s.stream.VideoFragment(i)
	if err != nil {
		return fmt.Errorf("building video fragment %d: %w", i, err)
	}
	audio, err := s.stream.AudioFragment(i)
	if err != nil {
		return fmt.Errorf("building audio fragment %d: %w", i, err)
	}
	pos := float64(i) * s.stream.FragmentDuration
	for _, in := range []struct {
		mt   media.MediaType
		data []byte
	}{{media.Video, video}, {media.Audio, audio}} {
		url := fragmentURL(in.mt, i)
		err := s.session.EnqueueWrite(url, &tsb.CachedFragment{
			Type:        in.mt,
			URI:         url,
			Data:        in.data,
			Position:    pos,
			AbsPosition: pos,
			Duration:    s.stream.FragmentDuration,
		}, "p0")
		if err != nil {
			return err
		}
	}
	return nil
}

func initURL(mt media.MediaType) string {
	return fmt.Sprintf("synthetic://%s/init.mp4", strings.ToLower(mt.String()))
}

func fragmentURL(mt media.MediaType, i int) string {
	return fmt.Sprintf("synthetic://%s/seg-%06d.m4s", strings.ToLower(mt.String()), i)
}

// livePlayer tracks the live edge of the simulated stream.
type livePlayer struct {
	mu       sync.Mutex
	liveEnd  float64
	culled   float64
	start    float64
	duration float64
}

func (p *livePlayer) advance(seconds float64) {
	p.mu.Lock()
	p.liveEnd += seconds
	p.mu.Unlock()
}

func (p *livePlayer) UpdateCullingState(culled float64) {
	p.mu.Lock()
	p.culled += culled
	p.mu.Unlock()
}

func (p *livePlayer) UpdateDuration(seconds float64) {
	p.mu.Lock()
	p.duration = seconds
	p.mu.Unlock()
}

func (p *livePlayer) SetCulledSeconds(seconds float64) {
	p.mu.Lock()
	p.start = seconds
	p.mu.Unlock()
}

func (p *livePlayer) CulledSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.start
}

func (p *livePlayer) AbsoluteEndPosition() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveEnd
}

// window returns the seekable duration and the total seconds culled so far.
func (p *livePlayer) window() (duration, culled float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration, p.culled
}

// collectingSink is a playback sink that inspects what it is given.
type collectingSink struct {
	mediaType  media.MediaType
	stored     int
	inits      int
	fragments  int
	bytes      int64
	firstPTS   float64
	lastPTS    float64
	nonSync    int
	downloaded float64
}

func (s *collectingSink) MediaType() media.MediaType { return s.mediaType }

func (s *collectingSink) SetDownloadedDuration(seconds float64) { s.downloaded = seconds }

func (s *collectingSink) CacheTsbFragment(f *tsb.CachedFragment) bool {
	s.bytes += int64(len(f.Data))
	if f.InitFragment {
		s.inits++
		return true
	}
	if s.fragments == 0 {
		s.firstPTS = f.Position
	}
	s.lastPTS = f.Position
	s.fragments++

	if s.mediaType == media.Video {
		var parts fmp4.Parts
		if err := parts.Unmarshal(f.Data); err != nil {
			return false
		}
		for _, part := range parts {
			for _, tr := range part.Tracks {
				for _, sample := range tr.Samples {
					if sample.IsNonSyncSample {
						s.nonSync++
					}
				}
			}
		}
	}
	return true
}

func (s *collectingSink) report() trackReport {
	return trackReport{
		Stored:             s.stored,
		InitsInjected:      s.inits,
		FragmentsInjected:  s.fragments,
		Bytes:              s.bytes,
		FirstPTS:           s.firstPTS,
		LastPTS:            s.lastPTS,
		NonKeyframeSamples: s.nonSync,
	}
}

// metricTotals sums every sample of the metric families whose name starts
// with prefix. Histograms contribute their sample count.
func metricTotals(families []*dto.MetricFamily, prefix string) map[string]float64 {
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				total += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				total += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[name] = total
	}
	return out
}

func writeReport(w io.Writer, report *simulationReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	_, err = w.Write(data)
	return err
}
