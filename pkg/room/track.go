package room

import (
	"sync"
)

// RemoteTrack is the handle the transport layer attaches to a publication
// after a successful subscription. The association is weak: ClearTrack
// detaches the handle while the publication record lives on.
type RemoteTrack interface {
	// ID of the transport-level track.
	ID() string
	// Kind of the media carried by the track ("audio", "video").
	Kind() string
	// Unsubscribed informs the handle that the server dropped the
	// subscription so it can release transport resources.
	Unsubscribed()
}

// TrackPublication is the record of an advertised track, independent of
// whether a transport handle is attached. It transitions between published
// (no handle) and subscribed (handle attached); unpublishing clears the
// handle but the record may linger to permit transparent re-publish reuse.
type TrackPublication struct {
	mu    sync.Mutex
	info  TrackInfo
	track RemoteTrack
}

func NewTrackPublication(info TrackInfo) *TrackPublication {
	return &TrackPublication{info: info}
}

func (p *TrackPublication) Sid() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Sid
}

func (p *TrackPublication) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Name
}

func (p *TrackPublication) Kind() TrackKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Kind
}

func (p *TrackPublication) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Source
}

func (p *TrackPublication) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Muted
}

// SetMuted updates the muted flag and reports whether it changed.
func (p *TrackPublication) SetMuted(muted bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.info.Muted == muted {
		return false
	}
	p.info.Muted = muted
	return true
}

// Info returns a copy of the publication's descriptor.
func (p *TrackPublication) Info() TrackInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// UpdateInfo overwrites the descriptor, keeping the sid stable.
func (p *TrackPublication) UpdateInfo(info TrackInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info.Sid = p.info.Sid
	p.info = info
}

// Track returns the attached transport handle, or nil.
func (p *TrackPublication) Track() RemoteTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}

// IsSubscribed reports whether a transport handle is attached.
func (p *TrackPublication) IsSubscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track != nil
}

// AttachTrack binds the transport handle supplied after subscription.
func (p *TrackPublication) AttachTrack(track RemoteTrack) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = track
}

// ClearTrack detaches the handle, preserving the publication record, and
// returns the previously attached handle (nil if none).
func (p *TrackPublication) ClearTrack() RemoteTrack {
	p.mu.Lock()
	defer p.mu.Unlock()

	track := p.track
	p.track = nil
	return track
}
