package models

import "time"

// RoomStatus is the lifecycle state of a Room.
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"
	RoomStatusConnecting RoomStatus = "connecting"
	RoomStatusActive     RoomStatus = "active"
	RoomStatusEnded      RoomStatus = "ended"
)

// Open reports whether the room has not ended yet.
func (s RoomStatus) Open() bool {
	return s != RoomStatusEnded
}

// Participant is one side of a Room.
type Participant struct {
	// UserID is the anonymous ID of the participant.
	UserID string `json:"userId"`
	// TransportID is the connection the participant joined the room on.
	TransportID string `json:"transportId"`
	// JoinedAt is the time the participant originally joined the waiting queue.
	JoinedAt time.Time `json:"joinedAt"`
	// IsActive is false once the participant left; the record itself is kept.
	IsActive bool `json:"isActive"`
	// Ready is set once the participant took part in the handshake.
	Ready bool `json:"ready"`
}

// Room is a matched pair and its lifecycle.
type Room struct {
	RoomID       string        `json:"roomId"`
	SessionType  string        `json:"sessionType"`
	Participants []Participant `json:"participants"`
	Status       RoomStatus    `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	// StartedAt is set exactly once, on connecting -> active.
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	// Duration is EndedAt - StartedAt, or zero if the room never became active.
	Duration time.Duration `json:"duration"`
	// Aborted is true when the room ended before becoming active.
	Aborted   bool   `json:"aborted"`
	EndReason string `json:"endReason,omitempty"`
	// Version grows with every status transition; a lower version is an older snapshot.
	Version uint64 `json:"version"`
}

// Clone returns a copy that does not share the participants slice.
func (r *Room) Clone() Room {
	c := *r
	c.Participants = append([]Participant(nil), r.Participants...)
	return c
}

// ParticipantIndex returns the index of the participant on transportID, or -1.
func (r *Room) ParticipantIndex(transportID string) int {
	for i := range r.Participants {
		if r.Participants[i].TransportID == transportID {
			return i
		}
	}
	return -1
}

// Peer returns the participant other than the one on transportID.
func (r *Room) Peer(transportID string) (Participant, bool) {
	if r.ParticipantIndex(transportID) < 0 {
		return Participant{}, false
	}
	for _, p := range r.Participants {
		if p.TransportID != transportID {
			return p, true
		}
	}
	return Participant{}, false
}

// ActiveParticipants returns the participants that have not left.
func (r *Room) ActiveParticipants() []Participant {
	var out []Participant
	for _, p := range r.Participants {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// AllReady reports whether every participant took part in the handshake.
func (r *Room) AllReady() bool {
	if len(r.Participants) == 0 {
		return false
	}
	for _, p := range r.Participants {
		if !p.Ready {
			return false
		}
	}
	return true
}
