package signalhub

import "speakmatch/backend/internal/models"

// HandleDisconnect reacts to the loss of a transport. It is the only cleanup
// hook a connection needs: queue entries, room membership and the registry
// binding are all released here.
func (h *Hub) HandleDisconnect(transportID string) {
	userID, _ := h.Registry.UserID(transportID)

	// Unregister first so that any send racing with this cleanup fails and
	// takes the matcher's rollback path.
	h.Registry.Unregister(transportID)

	removed := h.Queue.WithdrawTransport(transportID)

	for _, res := range h.Rooms.Leave(transportID) {
		if res.Ended {
			h.finalize(res.Room)
			continue
		}
		// A waiting room belongs to an in-flight match; the matcher rolls it back.
		if res.Room.Status == models.RoomStatusWaiting {
			continue
		}
		for _, p := range res.Remaining {
			_ = h.Registry.Send(p.TransportID, models.Event{
				Type:   models.EventParticipantDisconnected,
				RoomID: res.Room.RoomID,
			})
		}
		h.log.Info().
			Str("room_id", res.Room.RoomID).
			Str("transport_id", transportID).
			Str("user_id", userID).
			Int("remaining", len(res.Remaining)).
			Msg("participant disconnected")
	}

	h.rematch(removed)
}
