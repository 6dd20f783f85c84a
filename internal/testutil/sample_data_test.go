package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleDataGenerator(t *testing.T) {
	gen := NewSampleDataGenerator()
	require.NotNil(t, gen)
	require.NotNil(t, gen.rng)
}

func TestNewSampleDataGeneratorWithSeed(t *testing.T) {
	gen1 := NewSampleDataGeneratorWithSeed(42)
	gen2 := NewSampleDataGeneratorWithSeed(42)

	// Same seed should produce same results
	assert.Equal(t, gen1.RandomOrigin(), gen2.RandomOrigin())
	assert.Equal(t, gen1.Payload(16), gen2.Payload(16))
}

func TestRandomProfile(t *testing.T) {
	gen := NewSampleDataGenerator()

	for i := 0; i < 10; i++ {
		p := gen.RandomProfile()
		assert.Contains(t, Profiles, p)
		assert.NotEqual(t, "audio", p.Name)
	}
}

func TestGenerateTrack(t *testing.T) {
	gen := NewSampleDataGeneratorWithSeed(7)

	tests := []struct {
		name      string
		opts      TrackOptions
		wantLen   int
		wantFirst float64
	}{
		{
			name:    "defaults with init",
			opts:    DefaultTrackOptions("video"),
			wantLen: 6,
		},
		{
			name: "offset without init",
			opts: TrackOptions{
				Name:          "audio",
				Count:         3,
				Start:         10,
				Duration:      1.5,
				PayloadSize:   32,
				SequenceStart: 100,
			},
			wantLen:   3,
			wantFirst: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags := gen.GenerateTrack(tt.opts)
			require.Len(t, frags, tt.wantLen)

			media := frags
			if tt.opts.IncludeInit {
				assert.True(t, frags[0].Init)
				assert.True(t, strings.HasSuffix(frags[0].URL, "/init.mp4"))
				media = frags[1:]
			}
			assert.InDelta(t, tt.wantFirst, media[0].Position, 0.0001)
			for i, f := range media {
				assert.False(t, f.Init)
				assert.InDelta(t, tt.opts.Duration, f.Duration, 0.0001)
				assert.Len(t, f.Data, tt.opts.PayloadSize)
				assert.Equal(t, FragmentURL(tt.opts, tt.opts.SequenceStart+i), f.URL)
				if i > 0 {
					assert.InDelta(t, media[i-1].Position+tt.opts.Duration, f.Position, 0.0001)
				}
			}
		})
	}
}

func TestURLsAreDistinctPerTrack(t *testing.T) {
	video := DefaultTrackOptions("video")
	audio := DefaultTrackOptions("audio")
	assert.NotEqual(t, InitURL(video), InitURL(audio))
	assert.NotEqual(t, FragmentURL(video, 1), FragmentURL(audio, 1))
	assert.NotEqual(t, FragmentURL(video, 1), FragmentURL(video, 2))
}
