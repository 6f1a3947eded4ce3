package room

import (
	"context"
	"sync"

	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/sirupsen/logrus"
	"github.com/thoas/go-funk"
	"golang.org/x/exp/maps"
)

// Capabilities are the local participant's hooks into the transport layer.
// They are supplied at construction so that no event can observe a local
// participant whose callbacks are not wired yet.
type Capabilities struct {
	EnableCamera     func(ctx context.Context, enabled bool) error
	EnableMicrophone func(ctx context.Context, enabled bool) error
	PublishData      func(ctx context.Context, kind DataKind, payload []byte) error
}

// SubscribeFunc flips a remote participant's subscription to one of its
// tracks. Implemented by the transport controller.
type SubscribeFunc func(ctx context.Context, trackSid string, subscribe bool) error

// Participant is the in-memory model of one room member: identity, metadata,
// lifecycle state and the set of track publications it exclusively owns.
type Participant struct {
	mu sync.Mutex

	sid      string
	identity string
	name     string
	state    ParticipantState
	metadata map[string]any
	isLocal  bool

	tracks map[string]*TrackPublication

	capabilities Capabilities
	subscribe    SubscribeFunc

	events *event.Emitter[string]
	logger *logrus.Entry
}

// NewLocalParticipant constructs the local participant with its transport
// capabilities wired in.
func NewLocalParticipant(info ParticipantInfo, capabilities Capabilities, logger *logrus.Entry) *Participant {
	p := newParticipant(info, logger)
	p.isLocal = true
	p.capabilities = capabilities
	return p
}

// NewRemoteParticipant constructs a remote participant with its subscribe
// callback wired in.
func NewRemoteParticipant(info ParticipantInfo, subscribe SubscribeFunc, logger *logrus.Entry) *Participant {
	p := newParticipant(info, logger)
	p.subscribe = subscribe
	return p
}

func newParticipant(info ParticipantInfo, logger *logrus.Entry) *Participant {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("participant", info.Sid)

	p := &Participant{
		sid:      info.Sid,
		identity: info.Identity,
		name:     info.Name,
		state:    info.State,
		metadata: info.Metadata,
		tracks:   make(map[string]*TrackPublication),
		events:   event.NewEmitter[string](logger),
		logger:   logger,
	}
	if p.state == "" {
		p.state = ParticipantJoining
	}
	for _, track := range info.Tracks {
		p.tracks[track.Sid] = NewTrackPublication(track)
	}

	return p
}

func (p *Participant) Sid() string { return p.sid }

func (p *Participant) IsLocal() bool { return p.isLocal }

func (p *Participant) Identity() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

func (p *Participant) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Participant) State() ParticipantState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Participant) SetState(state ParticipantState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *Participant) Metadata() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.metadata)
}

// Events is the participant-scoped emitter. All listeners are dropped when
// the participant leaves the room.
func (p *Participant) Events() *event.Emitter[string] { return p.events }

// Capabilities returns the local participant's transport hooks. Zero-valued
// for remote participants.
func (p *Participant) Capabilities() Capabilities { return p.capabilities }

// Subscribe flips the subscription state of one of this participant's
// tracks. Only meaningful on remote participants.
func (p *Participant) Subscribe(ctx context.Context, trackSid string, subscribe bool) error {
	if p.subscribe == nil {
		return nil
	}
	return p.subscribe(ctx, trackSid, subscribe)
}

// GetTrack returns the publication for the track sid, or nil.
func (p *Participant) GetTrack(sid string) *TrackPublication {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracks[sid]
}

// Tracks returns a snapshot of the participant's publications.
func (p *Participant) Tracks() []*TrackPublication {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Values(p.tracks)
}

// AddTrack records a newly published track, deduplicated on sid. A repeated
// descriptor for a known sid updates the existing publication in place. The
// returned bool tells whether the publication is a new one.
func (p *Participant) AddTrack(info TrackInfo) (*TrackPublication, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.tracks[info.Sid]; ok {
		existing.UpdateInfo(info)
		return existing, false
	}

	publication := NewTrackPublication(info)
	p.tracks[info.Sid] = publication
	return publication, true
}

// RemoveTrack drops the publication record entirely, detaching any handle.
func (p *Participant) RemoveTrack(sid string) *TrackPublication {
	p.mu.Lock()
	defer p.mu.Unlock()

	publication := p.tracks[sid]
	if publication == nil {
		return nil
	}

	publication.ClearTrack()
	delete(p.tracks, sid)
	return publication
}

// UpdateInfo is the single reconciliation point for participant state: it
// assigns the scalar fields, creates or updates publications for every track
// descriptor in the new info, and unpublishes every track absent from it.
// track-published / track-unpublished events fire on the participant emitter.
func (p *Participant) UpdateInfo(info ParticipantInfo) {
	p.mu.Lock()

	if info.Identity != "" {
		p.identity = info.Identity
	}
	if info.Name != "" {
		p.name = info.Name
	}
	if info.State != "" {
		p.state = info.State
	}
	if info.Metadata != nil {
		p.metadata = info.Metadata
	}

	incoming := funk.Map(info.Tracks, func(t TrackInfo) string { return t.Sid }).([]string)

	published := []*TrackPublication{}
	for _, track := range info.Tracks {
		if existing, ok := p.tracks[track.Sid]; ok {
			existing.SetMuted(track.Muted)
			continue
		}

		publication := NewTrackPublication(track)
		p.tracks[track.Sid] = publication
		published = append(published, publication)
	}

	unpublished := []*TrackPublication{}
	for sid, publication := range p.tracks {
		if funk.ContainsString(incoming, sid) {
			continue
		}

		publication.ClearTrack()
		delete(p.tracks, sid)
		unpublished = append(unpublished, publication)
	}

	p.mu.Unlock()

	// Events fire outside the lock: listeners are allowed to read back
	// participant state.
	for _, publication := range published {
		p.events.Emit(EventTrackPublished, TrackEvent{Participant: p, Publication: publication})
	}
	for _, publication := range unpublished {
		p.events.Emit(EventTrackUnpublished, TrackEvent{Participant: p, Publication: publication})
	}
}

// Info renders the participant back into its wire descriptor.
func (p *Participant) Info() ParticipantInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracks := make([]TrackInfo, 0, len(p.tracks))
	for _, publication := range p.tracks {
		tracks = append(tracks, publication.Info())
	}

	return ParticipantInfo{
		Sid:      p.sid,
		Identity: p.identity,
		Name:     p.name,
		State:    p.state,
		Metadata: maps.Clone(p.metadata),
		Tracks:   tracks,
	}
}

// Teardown clears all publications and listeners. Called when the
// participant leaves the room.
func (p *Participant) Teardown() {
	p.mu.Lock()
	for sid, publication := range p.tracks {
		publication.ClearTrack()
		delete(p.tracks, sid)
	}
	p.mu.Unlock()

	p.events.RemoveAll()
}

func (p *Participant) Logger() *logrus.Entry { return p.logger }
