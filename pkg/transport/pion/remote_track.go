package pion

import (
	"sync/atomic"

	"github.com/pion/webrtc/v3"
)

// RemoteTrack adapts a pion remote track to the publication's track handle.
type RemoteTrack struct {
	remote *webrtc.TrackRemote
	gone   atomic.Bool
}

func newRemoteTrack(remote *webrtc.TrackRemote) *RemoteTrack {
	return &RemoteTrack{remote: remote}
}

func (t *RemoteTrack) ID() string { return t.remote.ID() }

func (t *RemoteTrack) Kind() string { return t.remote.Kind().String() }

// StreamID of the track's media stream.
func (t *RemoteTrack) StreamID() string { return t.remote.StreamID() }

// Unsubscribed marks the handle dead. The RTP receiver winds down on its
// own once the SFU stops forwarding.
func (t *RemoteTrack) Unsubscribed() { t.gone.Store(true) }

// IsActive reports whether the subscription is still live.
func (t *RemoteTrack) IsActive() bool { return !t.gone.Load() }
