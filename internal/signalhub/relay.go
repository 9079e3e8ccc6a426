package signalhub

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"speakmatch/backend/internal/metrics"
	"speakmatch/backend/internal/models"
)

// Relay forwards opaque handshake messages between the two participants of
// a room. It never looks inside the payload.
type Relay struct {
	rooms    *RoomManager
	registry *Registry
	log      zerolog.Logger
}

// NewRelay creates a relay over the room table and the transport registry.
func NewRelay(rooms *RoomManager, registry *Registry, log zerolog.Logger) *Relay {
	return &Relay{
		rooms:    rooms,
		registry: registry,
		log:      log.With().Str("component", "relay").Logger(),
	}
}

// Forward delivers evt from fromTransportID to target, which must be the
// other participant of the sender's room (by transport ID or user ID).
// The blob is forwarded verbatim with the sender as "from".
// On success the sender counts as ready; activated reports whether that
// moved the room to active.
func (r *Relay) Forward(fromTransportID, target string, evt models.Event) (room models.Room, activated bool, err error) {
	roomID, peerTransportID, err := r.rooms.Route(fromTransportID, target)
	if err != nil {
		r.drop(fromTransportID, target, roomID, evt.Type, err)
		return models.Room{}, false, fmt.Errorf("%w: %w", ErrRelayRejected, err)
	}

	out := models.Event{
		Type: evt.Type,
		From: fromTransportID,
		Blob: evt.Blob,
	}
	if err := r.registry.Send(peerTransportID, out); err != nil {
		r.drop(fromTransportID, target, roomID, evt.Type, err)
		return models.Room{}, false, err
	}
	metrics.RelayMessages.WithLabelValues(evt.Type).Inc()

	room, activated, err = r.rooms.MarkReady(roomID, fromTransportID)
	if err != nil {
		// The room ended between routing and marking; the message already went out.
		r.log.Debug().Err(err).Str("room_id", roomID).Msg("ready mark skipped")
		return room, false, nil
	}
	return room, activated, nil
}

func (r *Relay) drop(from, target, roomID, kind string, err error) {
	reason := "rejected"
	switch {
	case errors.Is(err, ErrRoomNotFound):
		reason = "no_room"
	case errors.Is(err, ErrInvalidTransition):
		reason = "room_state"
	case errors.Is(err, ErrNotParticipant):
		reason = "not_participant"
	case errors.Is(err, ErrTransportNotFound), errors.Is(err, ErrTransportBusy):
		reason = "peer_unreachable"
	}
	metrics.RelayDropped.WithLabelValues(reason).Inc()
	r.log.Warn().
		Err(err).
		Str("transport_id", from).
		Str("target", target).
		Str("room_id", roomID).
		Str("kind", kind).
		Msg("signaling message dropped")
}
