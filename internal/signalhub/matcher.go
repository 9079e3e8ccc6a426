package signalhub

import (
	"errors"

	"github.com/rs/zerolog"

	"speakmatch/backend/internal/metrics"
	"speakmatch/backend/internal/models"
)

// MatcherService відповідає за алгоритм пошуку співрозмовників.
//
// Pairing is a two-phase protocol: the two oldest waiting entries are locked
// (matching), committed out of the queue, a room is created, and both peers
// are notified. A failed notification rolls the room back and puts the
// reachable peer back at its original place in the queue.
type MatcherService struct {
	Hub *Hub
	log zerolog.Logger
}

// NewMatcherService створює новий Matcher.
func NewMatcherService(hub *Hub) *MatcherService {
	return &MatcherService{
		Hub: hub,
		log: hub.log.With().Str("component", "matcher").Logger(),
	}
}

// Match pairs waiting entries of the session type until fewer than two
// remain. It returns the rooms that were confirmed.
func (m *MatcherService) Match(sessionType string) []models.Room {
	var confirmed []models.Room
	for {
		a, b, expired, ok := m.Hub.Queue.lockPair(sessionType)
		m.Hub.notifyExpired(expired)
		if !ok {
			return confirmed
		}

		// Withdrawal won the race for one of the entries; try again without it.
		siblings, committed := m.Hub.Queue.commitPair(a, b)
		if !committed {
			m.log.Debug().Str("session_type", sessionType).Msg("pairing aborted, entry withdrawn")
			continue
		}

		room, ok := m.pair(sessionType, *a, *b, siblings)
		if ok {
			confirmed = append(confirmed, room)
		}
	}
}

// pair creates the room for a committed pair and notifies both peers.
func (m *MatcherService) pair(sessionType string, a, b models.QueueEntry, siblings []models.QueueEntry) (models.Room, bool) {
	room := m.Hub.Rooms.Create(sessionType, a, b)

	errA := m.Hub.Registry.Send(a.TransportID, matchFound(room.RoomID, b))
	errB := m.Hub.Registry.Send(b.TransportID, matchFound(room.RoomID, a))
	if errA != nil || errB != nil {
		m.rollback(room, []models.QueueEntry{a, b}, siblings)
		return models.Room{}, false
	}

	confirmed, err := m.Hub.Rooms.Confirm(room.RoomID)
	if errors.Is(err, ErrParticipantGone) {
		// Someone disconnected between the notification and the commit.
		m.rollback(room, []models.QueueEntry{a, b}, siblings)
		return models.Room{}, false
	}
	if err != nil {
		// The room already ended through disconnects of both peers.
		m.log.Debug().Err(err).Str("room_id", room.RoomID).Msg("room not confirmed")
		return models.Room{}, false
	}

	metrics.Matches.WithLabelValues(sessionType).Inc()
	m.Hub.persistRoom(confirmed)
	m.log.Info().
		Str("room_id", room.RoomID).
		Str("session_type", sessionType).
		Str("user_a", a.UserID).
		Str("user_b", b.UserID).
		Msg("match found")
	return confirmed, true
}

// rollback destroys the room and requeues every peer whose transport is
// still registered, with all the entries it had before the commit. A peer
// that failed a send is either gone or was evicted by the registry.
func (m *MatcherService) rollback(room models.Room, entries, siblings []models.QueueEntry) {
	metrics.MatchRollbacks.Inc()
	discarded := m.Hub.Rooms.Discard(room.RoomID)
	m.log.Warn().
		Str("room_id", room.RoomID).
		Bool("discarded", discarded).
		Msg("match rolled back, peer unreachable")

	if !discarded {
		if ended, ok := m.Hub.Rooms.End(room.RoomID, EndReasonDisconnect); ok {
			m.Hub.finalize(ended)
		}
	}

	var restored []models.QueueEntry
	for _, e := range entries {
		if !m.Hub.Registry.Has(e.TransportID) {
			continue
		}
		// The peer already got match-found for a room that no longer exists.
		_ = m.Hub.Registry.Send(e.TransportID, models.Event{
			Type:   models.EventParticipantDisconnected,
			RoomID: room.RoomID,
		})

		m.restore(e)
		for _, s := range siblings {
			if s.UserID == e.UserID && m.restore(s) {
				restored = append(restored, s)
			}
		}
	}

	// The sibling lines may now hold a pair; the current line is retried by Match.
	m.Hub.rematch(restored)
}

// restore puts an entry back at its original place and acknowledges it.
func (m *MatcherService) restore(e models.QueueEntry) bool {
	position, err := m.Hub.Queue.requeue(e)
	if err != nil {
		m.log.Debug().Err(err).Str("user_id", e.UserID).Str("session_type", e.SessionType).Msg("requeue skipped")
		return false
	}
	_ = m.Hub.Registry.Send(e.TransportID, models.Event{
		Type:        models.EventQueueJoined,
		SessionType: e.SessionType,
		Position:    position,
	})
	return true
}

func matchFound(roomID string, partner models.QueueEntry) models.Event {
	return models.Event{
		Type:               models.EventMatchFound,
		RoomID:             roomID,
		PartnerTransportID: partner.TransportID,
		PartnerUserID:      partner.UserID,
	}
}
