package isobmff

import (
	"fmt"
	"math"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// Track ids and timescales of the synthetic stream.
const (
	VideoTrackID   = 1
	AudioTrackID   = 2
	VideoTimescale = 90000
	AudioTimescale = 48000

	aacFrameSamples = 1024
)

// SyntheticStream produces a deterministic fMP4 live stream with one VP9
// video track and one AAC audio track, each with its own init fragment.
type SyntheticStream struct {
	// FragmentDuration is the length of every media fragment in seconds.
	FragmentDuration float64
	// FrameRate is the number of video samples per second.
	FrameRate int
	// GOPSize is the number of video samples between key frames.
	GOPSize int
	Width   int
	Height  int
}

// NewSyntheticStream returns a 720p stream at 25 fps with one key frame per second.
func NewSyntheticStream(fragmentDuration float64) *SyntheticStream {
	return &SyntheticStream{
		FragmentDuration: fragmentDuration,
		FrameRate:        25,
		GOPSize:          25,
		Width:            1280,
		Height:           720,
	}
}

// VideoInit returns the init fragment of the video track.
func (s *SyntheticStream) VideoInit() ([]byte, error) {
	init := fmp4.Init{
		Tracks: []*fmp4.InitTrack{{
			ID:        VideoTrackID,
			TimeScale: VideoTimescale,
			Codec: &mp4.CodecVP9{
				Width:             s.Width,
				Height:            s.Height,
				Profile:           0,
				BitDepth:          8,
				ChromaSubsampling: 1,
			},
		}},
	}
	return marshalInit(&init)
}

// AudioInit returns the init fragment of the audio track.
func (s *SyntheticStream) AudioInit() ([]byte, error) {
	init := fmp4.Init{
		Tracks: []*fmp4.InitTrack{{
			ID:        AudioTrackID,
			TimeScale: AudioTimescale,
			Codec: &mp4.CodecMPEG4Audio{
				Config: mpeg4audio.AudioSpecificConfig{
					Type:         mpeg4audio.ObjectTypeAACLC,
					SampleRate:   AudioTimescale,
					ChannelCount: 2,
				},
			},
		}},
	}
	return marshalInit(&init)
}

// VideoFragment returns the media fragment at index, starting at
// index * FragmentDuration seconds.
func (s *SyntheticStream) VideoFragment(index int) ([]byte, error) {
	if s.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid frame rate: %d", s.FrameRate)
	}
	gop := s.GOPSize
	if gop <= 0 {
		gop = s.FrameRate
	}

	frameDur := uint32(VideoTimescale / s.FrameRate)
	total := s.ticks(VideoTimescale)
	frames := s.frameCount(total, frameDur)
	baseTime := uint64(index) * uint64(total)
	firstFrame := int(baseTime / uint64(frameDur))

	samples := spread(total, frameDur, frames, func(i int) *fmp4.Sample {
		n := firstFrame + i
		return &fmp4.Sample{
			IsNonSyncSample: i > 0 && n%gop != 0,
			Payload:         payload(index, i, 32),
		}
	})
	return marshalPart(uint32(index), VideoTrackID, baseTime, samples)
}

// AudioFragment returns the audio fragment at index.
func (s *SyntheticStream) AudioFragment(index int) ([]byte, error) {
	total := s.ticks(AudioTimescale)
	frames := s.frameCount(total, aacFrameSamples)
	samples := spread(total, aacFrameSamples, frames, func(i int) *fmp4.Sample {
		return &fmp4.Sample{Payload: payload(index, i, 8)}
	})
	return marshalPart(uint32(index), AudioTrackID, uint64(index)*uint64(total), samples)
}

func (s *SyntheticStream) ticks(timescale uint32) uint32 {
	return uint32(math.Round(s.FragmentDuration * float64(timescale)))
}

func (s *SyntheticStream) frameCount(total, frameDur uint32) int {
	n := int(total / frameDur)
	if n == 0 {
		n = 1
	}
	return n
}

// spread builds frames samples of frameDur ticks, giving the last sample
// whatever remains of total.
func spread(total, frameDur uint32, frames int, build func(i int) *fmp4.Sample) []*fmp4.Sample {
	samples := make([]*fmp4.Sample, frames)
	remaining := total
	for i := range samples {
		sm := build(i)
		sm.Duration = frameDur
		if i == frames-1 || remaining < frameDur {
			sm.Duration = remaining
		}
		remaining -= sm.Duration
		samples[i] = sm
	}
	return samples
}

func payload(index, sample, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(index*31 + sample*7 + i)
	}
	return b
}

func marshalInit(init *fmp4.Init) ([]byte, error) {
	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return nil, fmt.Errorf("marshaling init: %w", err)
	}
	return buf.Bytes(), nil
}

func marshalPart(seq uint32, trackID int, baseTime uint64, samples []*fmp4.Sample) ([]byte, error) {
	part := fmp4.Part{
		SequenceNumber: seq,
		Tracks: []*fmp4.PartTrack{{
			ID:       trackID,
			BaseTime: baseTime,
			Samples:  samples,
		}},
	}
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return nil, fmt.Errorf("marshaling part: %w", err)
	}
	return buf.Bytes(), nil
}
