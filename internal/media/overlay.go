package media

import "github.com/pion/webrtc/v4"

// Overlay sends Base's audio with Top's video, the shape of a screen share
// that keeps the microphone. Stopping an Overlay stops only Top; Base
// belongs to whoever built the overlay.
type Overlay struct {
	Base Source
	Top  Source
}

func (o Overlay) ID() string { return o.Top.ID() }

func (o Overlay) AudioTrack() webrtc.TrackLocal { return o.Base.AudioTrack() }
func (o Overlay) VideoTrack() webrtc.TrackLocal { return o.Top.VideoTrack() }

func (o Overlay) AudioEnabled() bool      { return o.Base.AudioEnabled() }
func (o Overlay) VideoEnabled() bool      { return o.Top.VideoEnabled() }
func (o Overlay) SetAudioEnabled(on bool) { o.Base.SetAudioEnabled(on) }
func (o Overlay) SetVideoEnabled(on bool) { o.Top.SetVideoEnabled(on) }

func (o Overlay) RequestKeyframe() { o.Top.RequestKeyframe() }

func (o Overlay) Stop() { o.Top.Stop() }
