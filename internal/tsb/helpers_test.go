package tsb

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/tsb/internal/config"
	"github.com/jmylchreest/tsb/internal/media"
	"github.com/jmylchreest/tsb/internal/storage"
	"github.com/jmylchreest/tsb/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// faultyStore is a memory store that can be told to fail the next writes.
type faultyStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	writeErrs []error
	writes    int
	deleted   []string

	deleteHold    chan struct{}
	deleteEntered chan string
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: storage.NewMemoryStore(storage.Config{})}
}

func (s *faultyStore) failNext(errs ...error) {
	s.mu.Lock()
	s.writeErrs = append(s.writeErrs, errs...)
	s.mu.Unlock()
}

func (s *faultyStore) Write(key string, data []byte) error {
	s.mu.Lock()
	s.writes++
	if len(s.writeErrs) > 0 {
		err := s.writeErrs[0]
		s.writeErrs = s.writeErrs[1:]
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.MemoryStore.Write(key, data)
}

func (s *faultyStore) Delete(key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	hold, entered := s.deleteHold, s.deleteEntered
	s.deleteHold, s.deleteEntered = nil, nil
	s.mu.Unlock()

	if hold != nil {
		entered <- key
		<-hold
	}
	return s.MemoryStore.Delete(key)
}

// holdNextDelete parks the next Delete call until release is called. The
// returned channel receives the key once that call is parked.
func (s *faultyStore) holdNextDelete() (entered <-chan string, release func()) {
	hold := make(chan struct{})
	ch := make(chan string, 1)
	s.mu.Lock()
	s.deleteHold, s.deleteEntered = hold, ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() { once.Do(func() { close(hold) }) }
}

func (s *faultyStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deleted))
	copy(out, s.deleted)
	return out
}

type fakePlayer struct {
	mu            sync.Mutex
	culledTotal   float64
	culledSeconds float64
	duration      float64
	absEnd        float64
}

func (p *fakePlayer) UpdateCullingState(culled float64) {
	p.mu.Lock()
	p.culledTotal += culled
	p.mu.Unlock()
}

func (p *fakePlayer) UpdateDuration(seconds float64) {
	p.mu.Lock()
	p.duration = seconds
	p.mu.Unlock()
}

func (p *fakePlayer) SetCulledSeconds(seconds float64) {
	p.mu.Lock()
	p.culledSeconds = seconds
	p.mu.Unlock()
}

func (p *fakePlayer) CulledSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.culledSeconds
}

func (p *fakePlayer) AbsoluteEndPosition() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.absEnd
}

func (p *fakePlayer) setAbsoluteEnd(v float64) {
	p.mu.Lock()
	p.absEnd = v
	p.mu.Unlock()
}

// fakeStream records the fragments injected for one track.
type fakeStream struct {
	mt         media.MediaType
	reject     bool
	injected   []*CachedFragment
	downloaded float64
}

func (c *fakeStream) MediaType() media.MediaType { return c.mt }

func (c *fakeStream) CacheTsbFragment(f *CachedFragment) bool {
	if c.reject {
		return false
	}
	c.injected = append(c.injected, f)
	return true
}

func (c *fakeStream) SetDownloadedDuration(seconds float64) { c.downloaded = seconds }

func (c *fakeStream) media() []*CachedFragment {
	var out []*CachedFragment
	for _, f := range c.injected {
		if !f.InitFragment {
			out = append(out, f)
		}
	}
	return out
}

// payloadPTS reads the presentation time stamped into a test payload.
type payloadPTS struct{}

func (payloadPTS) RecalculatePTS(mt media.MediaType, data []byte) float64 {
	if mt.IsInit() || len(data) < 8 {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data))
}

func stamp(data []byte, pts float64) []byte {
	binary.BigEndian.PutUint64(data, math.Float64bits(pts))
	return data
}

func testConfig() config.Config {
	return config.Config{
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
		TSB: config.TSBConfig{
			MaxLength:    config.Duration(30 * time.Minute),
			TrickplayFPS: 4,
		},
		Storage: config.StorageConfig{Backend: storage.BackendMemory},
	}
}

type sessionFixture struct {
	s      *SessionManager
	store  *faultyStore
	player *fakePlayer
	gen    *testutil.SampleDataGenerator
}

func newFixture(t *testing.T, cfg config.Config, mods ...func(*Options)) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		store:  newFaultyStore(),
		player: &fakePlayer{},
		gen:    testutil.NewSampleDataGeneratorWithSeed(1),
	}
	opts := Options{
		Config:    cfg,
		Logger:    discardLogger(),
		SessionID: "test-session",
		OpenStore: func(storage.Config) (FragmentStore, error) { return f.store, nil },
		Player:    f.player,
		PTS:       payloadPTS{},
	}
	for _, mod := range mods {
		mod(&opts)
	}
	f.s = NewSessionManager(opts)
	require.NoError(t, f.s.Init())
	t.Cleanup(func() { _ = f.s.Flush() })
	return f
}

// toCached converts a generated fragment into a session buffer.
func toCached(mt media.MediaType, sf testutil.SampleFragment, bandwidth int64) *CachedFragment {
	cf := &CachedFragment{
		Type:        mt,
		URI:         sf.URL,
		Data:        sf.Data,
		Position:    sf.Position,
		AbsPosition: sf.Position,
		Duration:    sf.Duration,
		StreamInfo:  StreamInfo{Bandwidth: bandwidth},
	}
	if sf.Init {
		cf.Type = mt.Init()
		cf.InitFragment = true
	} else {
		cf.Data = stamp(sf.Data, sf.Position)
	}
	return cf
}

// ingest writes a generated track through the session and waits for the writer.
func (f *sessionFixture) ingest(t *testing.T, mt media.MediaType, opts testutil.TrackOptions) []testutil.SampleFragment {
	t.Helper()
	return f.ingestWith(t, mt, opts, 3_000_000, false)
}

// ingestWith is ingest with an explicit bandwidth and init discontinuity.
func (f *sessionFixture) ingestWith(t *testing.T, mt media.MediaType, opts testutil.TrackOptions, bandwidth int64, disc bool) []testutil.SampleFragment {
	t.Helper()
	frags := f.gen.GenerateTrack(opts)
	for _, sf := range frags {
		cf := toCached(mt, sf, bandwidth)
		if sf.Init {
			cf.Discontinuity = disc
		}
		require.NoError(t, f.s.EnqueueWrite(sf.URL, cf, "p0"))
	}
	f.s.WaitForWrites()
	return frags
}

func trackOpts(name string, count int, start, dur float64) testutil.TrackOptions {
	opts := testutil.DefaultTrackOptions(name)
	opts.Count = count
	opts.Start = start
	opts.Duration = dur
	opts.SequenceStart = int(start * 1000)
	return opts
}

func positions(dm *DataManager) []float64 {
	var out []float64
	for f := dm.GetFirstFragment(); f != nil; f = f.Next() {
		out = append(out, f.Position())
	}
	return out
}
