package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// RemoteStream gathers the tracks received from one peer. Tracks are
// attached as they start; the stream exists before the first one arrives.
type RemoteStream struct {
	PeerID string

	mu       sync.Mutex
	tracks   []*webrtc.TrackRemote
	released bool

	bytes atomic.Uint64
}

// NewRemoteStream creates an empty stream for peerID.
func NewRemoteStream(peerID string) *RemoteStream {
	return &RemoteStream{PeerID: peerID}
}

// AddTrack attaches a started remote track. Ignored after Release.
func (r *RemoteStream) AddTrack(t *webrtc.TrackRemote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.released {
		r.tracks = append(r.tracks, t)
	}
}

// Tracks returns a copy of the attached tracks.
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), r.tracks...)
}

// Kinds reports whether any audio or video track is attached.
func (r *RemoteStream) Kinds() (audio, video bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tracks {
		switch t.Kind() {
		case webrtc.RTPCodecTypeAudio:
			audio = true
		case webrtc.RTPCodecTypeVideo:
			video = true
		}
	}
	return audio, video
}

// CountBytes records received payload for display.
func (r *RemoteStream) CountBytes(n int) {
	r.bytes.Add(uint64(n))
}

// BytesReceived is the total payload counted so far.
func (r *RemoteStream) BytesReceived() uint64 {
	return r.bytes.Load()
}

// Release drops the track references. Safe to call more than once.
func (r *RemoteStream) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
	r.tracks = nil
}

// Released reports whether Release has been called.
func (r *RemoteStream) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
