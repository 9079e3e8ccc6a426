package signalhub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speakmatch/backend/internal/metrics"
	"speakmatch/backend/internal/models"
)

// End reasons recorded on a room.
const (
	EndReasonEndCall          = "end-call"
	EndReasonDisconnect       = "disconnect"
	EndReasonHandshakeTimeout = "handshake-timeout"
	EndReasonShutdown         = "shutdown"
)

var allowedTransitions = map[models.RoomStatus][]models.RoomStatus{
	models.RoomStatusWaiting:    {models.RoomStatusConnecting, models.RoomStatusEnded},
	models.RoomStatusConnecting: {models.RoomStatusActive, models.RoomStatusEnded},
	models.RoomStatusActive:     {models.RoomStatusEnded},
}

// LeaveResult describes what a transport loss did to one room.
type LeaveResult struct {
	Room models.Room
	// Ended is true when this leave ended the room.
	Ended bool
	// Remaining are the participants still active after the leave.
	Remaining []models.Participant
}

// RoomManager owns every Room from creation to termination.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
	// byTransport indexes open rooms by participant transport.
	byTransport map[string]string

	now              func() time.Time
	handshakeTimeout time.Duration
	log              zerolog.Logger
}

// NewRoomManager creates an empty room table.
func NewRoomManager(handshakeTimeout time.Duration, now func() time.Time, log zerolog.Logger) *RoomManager {
	if now == nil {
		now = time.Now
	}
	return &RoomManager{
		rooms:            make(map[string]*models.Room),
		byTransport:      make(map[string]string),
		now:              now,
		handshakeTimeout: handshakeTimeout,
		log:              log.With().Str("component", "rooms").Logger(),
	}
}

// Create opens a room in waiting for two matched entries.
func (m *RoomManager) Create(sessionType string, a, b models.QueueEntry) models.Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := &models.Room{
		RoomID:      uuid.New().String(),
		SessionType: sessionType,
		Status:      models.RoomStatusWaiting,
		CreatedAt:   m.now(),
	}
	for _, e := range []models.QueueEntry{a, b} {
		room.Participants = append(room.Participants, models.Participant{
			UserID:      e.UserID,
			TransportID: e.TransportID,
			JoinedAt:    e.JoinedAt,
			IsActive:    true,
		})
		m.byTransport[e.TransportID] = room.RoomID
	}
	m.rooms[room.RoomID] = room
	metrics.RecordRoomCreated()
	return room.Clone()
}

// Discard destroys a room that is still waiting, as if it never existed.
// It reports false if the room is gone or already moved on.
func (m *RoomManager) Discard(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok || room.Status != models.RoomStatusWaiting {
		return false
	}
	m.unindex(room)
	delete(m.rooms, roomID)
	metrics.RecordRoomClosed()
	return true
}

// Confirm moves a waiting room to connecting once both participants were
// notified. It fails with ErrParticipantGone if either already left.
func (m *RoomManager) Confirm(roomID string) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	if room.Status != models.RoomStatusWaiting {
		return room.Clone(), ErrInvalidTransition
	}
	if len(room.ActiveParticipants()) != len(room.Participants) {
		return room.Clone(), ErrParticipantGone
	}
	m.transition(room, models.RoomStatusConnecting)
	return room.Clone(), nil
}

// MarkReady records that the participant on transportID took part in the
// handshake. When every participant is ready the room becomes active.
func (m *RoomManager) MarkReady(roomID, transportID string) (room models.Room, activated bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, false, ErrRoomNotFound
	}
	i := r.ParticipantIndex(transportID)
	if i < 0 {
		return r.Clone(), false, ErrNotParticipant
	}
	if r.Status != models.RoomStatusConnecting && r.Status != models.RoomStatusActive {
		return r.Clone(), false, ErrInvalidTransition
	}

	r.Participants[i].Ready = true
	if r.Status == models.RoomStatusConnecting && r.AllReady() {
		r.StartedAt = m.now()
		m.transition(r, models.RoomStatusActive)
		activated = true
	}
	return r.Clone(), activated, nil
}

// EndCall ends the room on request of one of its participants.
// first is false when the room had already ended.
func (m *RoomManager) EndCall(roomID, transportID string) (room models.Room, first bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, false, ErrRoomNotFound
	}
	if r.ParticipantIndex(transportID) < 0 {
		return r.Clone(), false, ErrNotParticipant
	}
	if !r.Status.Open() {
		return r.Clone(), false, nil
	}
	m.end(r, EndReasonEndCall)
	return r.Clone(), true, nil
}

// End ends the room for a reason not tied to a participant.
func (m *RoomManager) End(roomID, reason string) (models.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok || !r.Status.Open() {
		return models.Room{}, false
	}
	m.end(r, reason)
	return r.Clone(), true
}

// Leave marks the participant on transportID inactive in its open rooms and
// ends every room with nobody left.
func (m *RoomManager) Leave(transportID string) []LeaveResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.byTransport[transportID]
	if !ok {
		return nil
	}
	delete(m.byTransport, transportID)

	r, ok := m.rooms[roomID]
	if !ok || !r.Status.Open() {
		return nil
	}
	i := r.ParticipantIndex(transportID)
	if i < 0 {
		return nil
	}
	r.Participants[i].IsActive = false

	res := LeaveResult{Remaining: r.ActiveParticipants()}
	if len(res.Remaining) == 0 {
		m.end(r, EndReasonDisconnect)
		res.Ended = true
	}
	res.Room = r.Clone()
	return []LeaveResult{res}
}

// RoomForTransport returns the open room the transport takes part in.
func (m *RoomManager) RoomForTransport(transportID string) (models.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.byTransport[transportID]
	if !ok {
		return models.Room{}, false
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return r.Clone(), true
}

// Route resolves where a signaling message from a transport may go.
// target may be the peer's transport ID or user ID. The sender's room must be
// connecting or active and both sides must still be in it.
func (m *RoomManager) Route(fromTransportID, target string) (roomID, peerTransportID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byTransport[fromTransportID]
	if !ok {
		return "", "", ErrRoomNotFound
	}
	r, ok := m.rooms[id]
	if !ok {
		return "", "", ErrRoomNotFound
	}
	if r.Status != models.RoomStatusConnecting && r.Status != models.RoomStatusActive {
		return r.RoomID, "", ErrInvalidTransition
	}
	i := r.ParticipantIndex(fromTransportID)
	if i < 0 || !r.Participants[i].IsActive {
		return r.RoomID, "", ErrNotParticipant
	}
	peer, ok := r.Peer(fromTransportID)
	if !ok || !peer.IsActive {
		return r.RoomID, "", ErrRelayRejected
	}
	if target != peer.TransportID && target != peer.UserID {
		return r.RoomID, "", ErrRelayRejected
	}
	return r.RoomID, peer.TransportID, nil
}

// Get returns a snapshot of a room, ended rooms included.
func (m *RoomManager) Get(roomID string) (models.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return r.Clone(), true
}

// ExpireHandshakes aborts rooms stuck in waiting or connecting for longer
// than the handshake timeout.
func (m *RoomManager) ExpireHandshakes() []models.Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var aborted []models.Room
	for _, r := range m.rooms {
		if r.Status != models.RoomStatusWaiting && r.Status != models.RoomStatusConnecting {
			continue
		}
		if now.Sub(r.CreatedAt) <= m.handshakeTimeout {
			continue
		}
		m.end(r, EndReasonHandshakeTimeout)
		aborted = append(aborted, r.Clone())
	}
	return aborted
}

// EndAll ends every open room, used on shutdown.
func (m *RoomManager) EndAll(reason string) []models.Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ended []models.Room
	for _, r := range m.rooms {
		if !r.Status.Open() {
			continue
		}
		m.end(r, reason)
		ended = append(ended, r.Clone())
	}
	return ended
}

// PruneEnded drops ended rooms older than retention from memory. Their
// audit rows stay in storage.
func (m *RoomManager) PruneEnded(retention time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	pruned := 0
	for id, r := range m.rooms {
		if r.Status == models.RoomStatusEnded && now.Sub(r.EndedAt) > retention {
			delete(m.rooms, id)
			pruned++
		}
	}
	return pruned
}

// Counts returns the number of rooms per status.
func (m *RoomManager) Counts() map[models.RoomStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[models.RoomStatus]int, 4)
	for _, r := range m.rooms {
		counts[r.Status]++
	}
	return counts
}

// end must be called with mu held on an open room.
func (m *RoomManager) end(r *models.Room, reason string) {
	r.EndedAt = m.now()
	if r.Status == models.RoomStatusActive {
		r.Duration = r.EndedAt.Sub(r.StartedAt)
	} else {
		r.Aborted = true
		r.Duration = 0
	}
	r.EndReason = reason
	for i := range r.Participants {
		r.Participants[i].IsActive = false
	}
	m.transition(r, models.RoomStatusEnded)
	m.unindex(r)
	metrics.RecordRoomClosed()
}

func (m *RoomManager) transition(r *models.Room, to models.RoomStatus) {
	from := r.Status
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			r.Status = to
			r.Version++
			metrics.RecordStateTransition(string(from), string(to))
			m.log.Debug().
				Str("room_id", r.RoomID).
				Str("from", string(from)).
				Str("to", string(to)).
				Msg("room transition")
			return
		}
	}
	// Callers check the state first; reaching here is a bug in the manager.
	m.log.Error().Str("room_id", r.RoomID).Str("from", string(from)).Str("to", string(to)).Msg("refused room transition")
}

func (m *RoomManager) unindex(r *models.Room) {
	for _, p := range r.Participants {
		if m.byTransport[p.TransportID] == r.RoomID {
			delete(m.byTransport, p.TransportID)
		}
	}
}
