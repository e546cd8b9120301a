package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Ogg pages produced by common Opus encoders hold 20ms of audio.
const oggPageDuration = 20 * time.Millisecond

const defaultFrameInterval = 33 * time.Millisecond

// ProbeIVF returns the WebRTC mime type matching the file's FourCC.
func ProbeIVF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", fmt.Errorf("read ivf header: %w", err)
	}

	switch header.FourCC {
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	default:
		return "", fmt.Errorf("unsupported IVF codec %q", header.FourCC)
	}
}

// PlayIVF paces the frames of an IVF file into src's video track. It returns
// when ctx ends, src is stopped, or the file ends and loop is false.
// A keyframe request restarts the file, whose first frame is a keyframe.
func PlayIVF(ctx context.Context, src *LocalSource, path string, loop bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}

	interval := defaultFrameInterval
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		interval = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	rewind := func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		ivf, _, err = ivfreader.NewWith(f)
		return err
	}

	// A time.Ticker keeps pacing free of accumulated skew.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-src.Done():
			return nil
		case <-src.KeyframeRequests():
			if err := rewind(); err != nil {
				return err
			}
			continue
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if !loop {
				return nil
			}
			if err := rewind(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("read ivf frame: %w", err)
		}

		if err := src.WriteVideo(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
	}
}

// PlayOgg paces the pages of an Ogg/Opus file into src's audio track.
func PlayOgg(ctx context.Context, src *LocalSource, path string, loop bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-src.Done():
			return nil
		case <-ticker.C:
		}

		page, pageHeader, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if !loop {
				return nil
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			if ogg, _, err = oggreader.NewWith(f); err != nil {
				return err
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			return fmt.Errorf("read ogg page: %w", err)
		}

		// The sample count is the difference between granule positions
		sampleCount := float64(pageHeader.GranulePosition - lastGranule)
		lastGranule = pageHeader.GranulePosition
		duration := time.Duration((sampleCount / 48000) * float64(time.Second))

		if err := src.WriteAudio(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
	}
}
