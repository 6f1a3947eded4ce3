package room

import (
	"encoding/json"
	"sync"

	"github.com/bytepulseflow/pulsewave/pkg/domainerror"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// State is the authoritative per-connection view of a room: room info, the
// RTP capabilities blob, the local participant and the remote participants
// keyed by sid.
//
// The store upholds the room invariants: one participant per sid, unique
// identities, the local participant never appears among the remotes, and
// removing a participant tears down all its publications atomically.
type State struct {
	mu sync.RWMutex

	room            RoomInfo
	rtpCapabilities json.RawMessage
	local           *Participant
	remote          map[string]*Participant

	logger *logrus.Entry
}

func NewState(logger *logrus.Entry) *State {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &State{
		remote: make(map[string]*Participant),
		logger: logger,
	}
}

func (s *State) SetRoom(info RoomInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = info
}

func (s *State) Room() RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// SetRTPCapabilities stores the server's RTP capabilities blob. The store
// treats it as opaque; only the transport layer interprets it.
func (s *State) SetRTPCapabilities(capabilities json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rtpCapabilities = capabilities
}

func (s *State) RTPCapabilities() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rtpCapabilities
}

func (s *State) SetLocal(participant *Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = participant
}

func (s *State) Local() *Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

// AddRemote inserts a remote participant. A participant that collides with
// the local sid is rejected; a stale participant holding the same identity
// under a different sid is evicted first (the server has reassigned the
// session).
func (s *State) AddRemote(participant *Participant) error {
	s.mu.Lock()

	if s.local != nil && s.local.Sid() == participant.Sid() {
		s.mu.Unlock()
		return domainerror.InvalidState("local participant cannot be added as remote").
			WithContext("sid", participant.Sid())
	}

	var stale *Participant
	for sid, existing := range s.remote {
		if existing.Identity() == participant.Identity() && sid != participant.Sid() {
			stale = existing
			delete(s.remote, sid)
			break
		}
	}

	s.remote[participant.Sid()] = participant
	s.mu.Unlock()

	if stale != nil {
		s.logger.WithFields(logrus.Fields{
			"identity": participant.Identity(),
			"old_sid":  stale.Sid(),
			"new_sid":  participant.Sid(),
		}).Warn("evicting stale participant with duplicate identity")
		stale.Teardown()
	}

	return nil
}

// Remote returns the remote participant for the sid, or nil.
func (s *State) Remote(sid string) *Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote[sid]
}

// Find returns the participant (local or remote) for the sid, or nil.
func (s *State) Find(sid string) *Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.local != nil && s.local.Sid() == sid {
		return s.local
	}
	return s.remote[sid]
}

// FindByIdentity returns the remote participant with the identity, or nil.
func (s *State) FindByIdentity(identity string) *Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, participant := range s.remote {
		if participant.Identity() == identity {
			return participant
		}
	}
	return nil
}

// RemoveRemote drops the participant and all its publications atomically.
// Returns the removed participant, or nil if the sid is unknown.
func (s *State) RemoveRemote(sid string) *Participant {
	s.mu.Lock()
	participant := s.remote[sid]
	delete(s.remote, sid)
	s.mu.Unlock()

	if participant != nil {
		participant.Teardown()
	}
	return participant
}

// Participants returns a snapshot of the remote participants, ordered by sid
// for deterministic iteration.
func (s *State) Participants() []*Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := maps.Values(s.remote)
	slices.SortFunc(participants, func(a, b *Participant) bool {
		return a.Sid() < b.Sid()
	})
	return participants
}

// Clear tears down every participant and resets the store. Used on
// connection shutdown.
func (s *State) Clear() {
	s.mu.Lock()
	remote := maps.Values(s.remote)
	local := s.local
	s.remote = make(map[string]*Participant)
	s.local = nil
	s.rtpCapabilities = nil
	s.room = RoomInfo{}
	s.mu.Unlock()

	for _, participant := range remote {
		participant.Teardown()
	}
	if local != nil {
		local.Teardown()
	}
}
