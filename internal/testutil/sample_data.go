// Package testutil provides test utilities including sample fragment generation.
package testutil

import (
	"fmt"
	"math/rand"
)

// Standard fictional origins for generated fragment URLs.
var (
	Origins = []string{
		"https://cdn-a.example.com/live",
		"https://cdn-b.example.com/live",
		"https://edge.example.net/hls",
	}

	// Profiles lists the ABR ladder used by generated tracks.
	Profiles = []Profile{
		{Name: "1080p", Bandwidth: 6_000_000, Width: 1920, Height: 1080, FrameRate: 50},
		{Name: "720p", Bandwidth: 3_000_000, Width: 1280, Height: 720, FrameRate: 50},
		{Name: "540p", Bandwidth: 1_500_000, Width: 960, Height: 540, FrameRate: 25},
		{Name: "audio", Bandwidth: 128_000},
	}
)

// Profile is one rung of the generated ABR ladder.
type Profile struct {
	Name      string
	Bandwidth int64
	Width     int
	Height    int
	FrameRate float64
}

// SampleFragment is a generated fragment of a track.
type SampleFragment struct {
	URL      string
	Data     []byte
	Position float64
	Duration float64
	Init     bool
}

// SampleDataGenerator generates deterministic fragment data for testing.
type SampleDataGenerator struct {
	rng *rand.Rand
}

// NewSampleDataGenerator creates a new sample data generator with a random seed.
func NewSampleDataGenerator() *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(rand.Int63())),
	}
}

// NewSampleDataGeneratorWithSeed creates a new generator with a fixed seed for reproducibility.
func NewSampleDataGeneratorWithSeed(seed int64) *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// RandomOrigin returns a random origin base URL.
func (g *SampleDataGenerator) RandomOrigin() string {
	return Origins[g.rng.Intn(len(Origins))]
}

// RandomProfile returns a random video profile.
func (g *SampleDataGenerator) RandomProfile() Profile {
	return Profiles[g.rng.Intn(len(Profiles)-1)]
}

// Payload returns size random bytes.
func (g *SampleDataGenerator) Payload(size int) []byte {
	b := make([]byte, size)
	g.rng.Read(b)
	return b
}

// TrackOptions configures track generation.
type TrackOptions struct {
	Name          string  // Track name used in URLs (video, audio, ...)
	Count         int     // Number of media fragments
	Start         float64 // Position of the first fragment in seconds
	Duration      float64 // Duration of every fragment in seconds
	PayloadSize   int     // Bytes per fragment
	Origin        string  // Base URL (defaults to the first origin)
	ProfileName   string  // Profile segment of the URL (defaults to "720p")
	IncludeInit   bool    // Prefix the track with its init fragment
	SequenceStart int     // Sequence number of the first fragment
}

// DefaultTrackOptions returns default generation options for a track.
func DefaultTrackOptions(name string) TrackOptions {
	return TrackOptions{
		Name:        name,
		Count:       5,
		Duration:    2,
		PayloadSize: 188,
		Origin:      Origins[0],
		ProfileName: "720p",
		IncludeInit: true,
	}
}

// InitURL returns the init fragment URL of a track.
func InitURL(opts TrackOptions) string {
	return fmt.Sprintf("%s/%s/%s/init.mp4", originOf(opts), opts.Name, profileOf(opts))
}

// FragmentURL returns the URL of the media fragment with sequence number seq.
func FragmentURL(opts TrackOptions, seq int) string {
	return fmt.Sprintf("%s/%s/%s/seg-%06d.m4s", originOf(opts), opts.Name, profileOf(opts), seq)
}

// GenerateTrack generates an optional init fragment followed by Count
// contiguous media fragments.
func (g *SampleDataGenerator) GenerateTrack(opts TrackOptions) []SampleFragment {
	out := make([]SampleFragment, 0, opts.Count+1)
	if opts.IncludeInit {
		out = append(out, SampleFragment{
			URL:  InitURL(opts),
			Data: g.Payload(max(opts.PayloadSize/4, 1)),
			Init: true,
		})
	}
	for i := 0; i < opts.Count; i++ {
		out = append(out, SampleFragment{
			URL:      FragmentURL(opts, opts.SequenceStart+i),
			Data:     g.Payload(max(opts.PayloadSize, 1)),
			Position: opts.Start + float64(i)*opts.Duration,
			Duration: opts.Duration,
		})
	}
	return out
}

func originOf(opts TrackOptions) string {
	if opts.Origin == "" {
		return Origins[0]
	}
	return opts.Origin
}

func profileOf(opts TrackOptions) string {
	if opts.ProfileName == "" {
		return "720p"
	}
	return opts.ProfileName
}
