package media

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var (
	ErrStopped  = errors.New("media source stopped")
	ErrNoTrack  = errors.New("media source has no such track")
	ErrNoSource = errors.New("no media source")
)

// Source is the local audio/video a participant sends to every link.
// One Source is shared by all links, so toggles apply everywhere at once.
type Source interface {
	ID() string

	// AudioTrack and VideoTrack return nil when the source has no such track.
	AudioTrack() webrtc.TrackLocal
	VideoTrack() webrtc.TrackLocal

	AudioEnabled() bool
	VideoEnabled() bool
	SetAudioEnabled(on bool)
	SetVideoEnabled(on bool)

	// RequestKeyframe asks the producer for a fresh keyframe.
	RequestKeyframe()

	// Stop releases the source. Safe to call more than once.
	Stop()
}

// Options describes which tracks a LocalSource carries.
type Options struct {
	// StreamID groups the tracks on the remote side, e.g. "camera" or "screen".
	StreamID string

	Audio bool
	Video bool

	// VideoMimeType defaults to VP8.
	VideoMimeType string
}

// LocalSource is a Source backed by pion sample tracks. Producers push
// samples with WriteAudio and WriteVideo; disabled tracks drop them.
type LocalSource struct {
	id    string
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool

	audioSamples atomic.Uint64
	videoSamples atomic.Uint64

	keyframes chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// NewLocalSource creates the requested tracks, enabled.
func NewLocalSource(opts Options) (*LocalSource, error) {
	if opts.StreamID == "" {
		opts.StreamID = "huddle"
	}
	if opts.VideoMimeType == "" {
		opts.VideoMimeType = webrtc.MimeTypeVP8
	}

	s := &LocalSource{
		id:        opts.StreamID,
		keyframes: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	if opts.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", opts.StreamID,
		)
		if err != nil {
			return nil, err
		}
		s.audio = track
		s.audioOn.Store(true)
	}

	if opts.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: opts.VideoMimeType}, "video", opts.StreamID,
		)
		if err != nil {
			return nil, err
		}
		s.video = track
		s.videoOn.Store(true)
	}

	return s, nil
}

func (s *LocalSource) ID() string { return s.id }

func (s *LocalSource) AudioTrack() webrtc.TrackLocal {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

func (s *LocalSource) VideoTrack() webrtc.TrackLocal {
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *LocalSource) AudioEnabled() bool { return s.audioOn.Load() }
func (s *LocalSource) VideoEnabled() bool { return s.videoOn.Load() }

func (s *LocalSource) SetAudioEnabled(on bool) {
	if s.audio != nil {
		s.audioOn.Store(on)
	}
}

func (s *LocalSource) SetVideoEnabled(on bool) {
	if s.video != nil {
		s.videoOn.Store(on)
	}
}

// WriteAudio sends one audio sample to every bound link.
func (s *LocalSource) WriteAudio(sample pionmedia.Sample) error {
	return s.write(s.audio, &s.audioOn, &s.audioSamples, sample)
}

// WriteVideo sends one video sample to every bound link.
func (s *LocalSource) WriteVideo(sample pionmedia.Sample) error {
	return s.write(s.video, &s.videoOn, &s.videoSamples, sample)
}

func (s *LocalSource) write(track *webrtc.TrackLocalStaticSample, on *atomic.Bool, count *atomic.Uint64, sample pionmedia.Sample) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	if track == nil {
		return ErrNoTrack
	}
	if !on.Load() {
		return nil
	}
	count.Add(1)
	return track.WriteSample(sample)
}

// SamplesSent reports how many audio and video samples passed the mute gate.
func (s *LocalSource) SamplesSent() (audio, video uint64) {
	return s.audioSamples.Load(), s.videoSamples.Load()
}

func (s *LocalSource) RequestKeyframe() {
	select {
	case s.keyframes <- struct{}{}:
	default:
	}
}

// KeyframeRequests yields one value per pending keyframe request.
func (s *LocalSource) KeyframeRequests() <-chan struct{} {
	return s.keyframes
}

func (s *LocalSource) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Done is closed once Stop has been called.
func (s *LocalSource) Done() <-chan struct{} {
	return s.done
}

// NoMedia is the placeholder for participants without local media.
// They can still answer links and chat; they send nothing.
type NoMedia struct{}

func (NoMedia) ID() string                    { return "none" }
func (NoMedia) AudioTrack() webrtc.TrackLocal { return nil }
func (NoMedia) VideoTrack() webrtc.TrackLocal { return nil }
func (NoMedia) AudioEnabled() bool            { return false }
func (NoMedia) VideoEnabled() bool            { return false }
func (NoMedia) SetAudioEnabled(bool)          {}
func (NoMedia) SetVideoEnabled(bool)          {}
func (NoMedia) RequestKeyframe()              {}
func (NoMedia) Stop()                         {}
