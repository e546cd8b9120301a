package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/protocol"
)

// call is one peer connection carrying media both ways.
type call struct {
	id     string
	peer   string
	n      *Negotiator
	pc     *pion.PeerConnection
	stream *media.RemoteStream

	mu         sync.Mutex
	src        media.Source
	senders    map[pion.RTPCodecType]*pion.RTPSender
	remoteSet  bool
	candidates []pion.ICECandidateInit

	// Local candidates wait until our description has been signalled.
	signalled bool
	gathered  []pion.ICECandidateInit

	connected     chan struct{}
	failed        chan struct{}
	connectedOnce sync.Once
	failedOnce    sync.Once
	closeOnce     sync.Once
}

func (n *Negotiator) newCall(id, peer string, src media.Source) (*call, error) {
	pc, err := n.api.NewPeerConnection(n.config)
	if err != nil {
		return nil, err
	}

	c := &call{
		id:        id,
		peer:      peer,
		n:         n,
		pc:        pc,
		stream:    media.NewRemoteStream(peer),
		src:       src,
		senders:   make(map[pion.RTPCodecType]*pion.RTPSender),
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
	}

	pc.OnICECandidate(func(cand *pion.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		if !c.signalled {
			c.gathered = append(c.gathered, cand.ToJSON())
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.sendCandidate(cand.ToJSON())
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Debug("connection state", "peer", peer, "call", id, "state", state)
		switch state {
		case pion.PeerConnectionStateConnected:
			c.connectedOnce.Do(func() { close(c.connected) })
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			c.failedOnce.Do(func() { close(c.failed) })
		}
	})

	pc.OnTrack(c.onTrack)

	return c, nil
}

// attachTracks binds the source tracks to senders. Kinds the source lacks
// get a silent placeholder so a later ReplaceSource has a sender to use.
func (c *call) attachTracks(src media.Source) error {
	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		track := trackOf(src, kind)
		if track == nil {
			var err error
			if track, err = placeholder(kind); err != nil {
				return err
			}
		}

		sender, err := c.pc.AddTrack(track)
		if err != nil {
			return err
		}
		c.senders[kind] = sender
		go c.readRTCP(sender)
	}
	return nil
}

func trackOf(src media.Source, kind pion.RTPCodecType) pion.TrackLocal {
	if src == nil {
		return nil
	}
	if kind == pion.RTPCodecTypeAudio {
		return src.AudioTrack()
	}
	return src.VideoTrack()
}

func placeholder(kind pion.RTPCodecType) (pion.TrackLocal, error) {
	mime := pion.MimeTypeOpus
	if kind == pion.RTPCodecTypeVideo {
		mime = pion.MimeTypeVP8
	}
	return pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: mime}, kind.String(), "placeholder")
}

// readRTCP forwards keyframe requests from the remote decoder to the
// current source.
func (c *call) readRTCP(sender *pion.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if src := c.source(); src != nil {
					src.RequestKeyframe()
				}
			}
		}
	}
}

func (c *call) onTrack(track *pion.TrackRemote, _ *pion.RTPReceiver) {
	slog.Info("remote track", "peer", c.peer, "kind", track.Kind(), "codec", track.Codec().MimeType)
	c.stream.AddTrack(track)

	if track.Kind() == pion.RTPCodecTypeVideo {
		err := c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
		if err != nil {
			slog.Debug("request keyframe", "peer", c.peer, "error", err)
		}
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("remote track ended", "peer", c.peer, "error", err)
			}
			return
		}
		c.stream.CountBytes(n)
	}
}

func (c *call) source() media.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

// addCandidate applies a remote candidate, or buffers it until the remote
// description is known.
func (c *call) addCandidate(cand pion.ICECandidateInit) error {
	c.mu.Lock()
	if !c.remoteSet {
		c.candidates = append(c.candidates, cand)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(cand)
}

// setRemote applies the remote description and flushes buffered candidates.
func (c *call) setRemote(desc pion.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	c.mu.Lock()
	c.remoteSet = true
	pending := c.candidates
	c.candidates = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			slog.Debug("add buffered candidate", "peer", c.peer, "error", err)
		}
	}
	return nil
}

// describe sends our offer or answer, then any candidates gathered while
// it was being built.
func (c *call) describe(typ string) error {
	err := c.n.signals.SendSignal(&protocol.SignalPayload{
		To:     c.peer,
		CallID: c.id,
		Type:   typ,
		SDP:    c.pc.LocalDescription().SDP,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.signalled = true
	gathered := c.gathered
	c.gathered = nil
	c.mu.Unlock()

	for _, cand := range gathered {
		c.sendCandidate(cand)
	}
	return nil
}

func (c *call) sendCandidate(cand pion.ICECandidateInit) {
	err := c.n.signals.SendSignal(&protocol.SignalPayload{
		To:        c.peer,
		CallID:    c.id,
		Type:      protocol.SignalCandidate,
		Candidate: toWire(cand),
	})
	if err != nil {
		slog.Debug("send candidate", "peer", c.peer, "error", err)
	}
}

func (c *call) wait(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-c.failed:
		return ErrConnectionFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *call) PeerID() string { return c.peer }

// Done is closed once the connection has failed or been closed, including
// after it was handed to the caller.
func (c *call) Done() <-chan struct{} { return c.failed }

func (c *call) Stream() *media.RemoteStream { return c.stream }

// ReplaceSource swaps the outgoing tracks on the existing senders. Kinds
// the new source lacks fall back to a silent placeholder.
func (c *call) ReplaceSource(src media.Source) error {
	c.mu.Lock()
	c.src = src
	senders := c.senders
	c.mu.Unlock()

	var errs []error
	for kind, sender := range senders {
		track := trackOf(src, kind)
		if track == nil {
			var err error
			if track, err = placeholder(kind); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := sender.ReplaceTrack(track); err != nil {
			errs = append(errs, fmt.Errorf("replace %s track: %w", kind, err))
		}
	}
	if src != nil {
		src.RequestKeyframe()
	}
	return errors.Join(errs...)
}

func (c *call) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.n.forget(c)
		err = c.pc.Close()
		c.failedOnce.Do(func() { close(c.failed) })
		c.stream.Release()
	})
	return err
}
