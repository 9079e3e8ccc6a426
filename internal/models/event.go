package models

import (
	"encoding/json"
	"errors"
)

// Client -> server event types.
const (
	EventJoinQueue    = "join-queue"
	EventLeaveQueue   = "leave-queue"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
	EventReady        = "ready"
	EventEndCall      = "end-call"
)

// Server -> client event types.
const (
	EventQueueJoined             = "queue-joined"
	EventQueueError              = "queue-error"
	EventQueueLeft               = "queue-left"
	EventMatchFound              = "match-found"
	EventCallEnded               = "call-ended"
	EventParticipantDisconnected = "participant-disconnected"
)

// IsSignal reports whether the event type is relayed verbatim to the peer.
func IsSignal(eventType string) bool {
	switch eventType {
	case EventOffer, EventAnswer, EventICECandidate:
		return true
	}
	return false
}

// Event is a single websocket frame in either direction.
//
// Signaling frames keep every key except type, targetTransportId and from in
// Blob, so the payload reaches the peer exactly as sent, even when a key shares
// its name with a field of Event. Other frames keep only unknown keys in Blob.
type Event struct {
	Type               string `json:"type"`
	UserID             string `json:"userId,omitempty"`
	SessionType        string `json:"sessionType,omitempty"`
	RoomID             string `json:"roomId,omitempty"`
	Position           int    `json:"position,omitempty"`
	Message            string `json:"message,omitempty"`
	PartnerTransportID string `json:"partnerTransportId,omitempty"`
	PartnerUserID      string `json:"partnerUserId,omitempty"`
	TargetTransportID  string `json:"targetTransportId,omitempty"`
	From               string `json:"from,omitempty"`

	Blob map[string]json.RawMessage `json:"-"`
}

var eventKeys = []string{
	"type", "userId", "sessionType", "roomId", "position", "message",
	"partnerTransportId", "partnerUserId", "targetTransportId", "from",
}

// routingKeys are consumed by the hub and never forwarded.
var routingKeys = []string{"type", "targetTransportId", "from"}

// MarshalJSON writes the known fields next to the opaque blob keys.
// Non-empty known fields win over blob keys with the same name.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	base, err := json.Marshal(plain(e))
	if err != nil || len(e.Blob) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(e.Blob)+len(eventKeys))
	for k, v := range e.Blob {
		merged[k] = v
	}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields leniently: a key whose JSON type does
// not match the field leaves the field empty instead of rejecting the frame.
// Only a missing or non-string type is an error.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var evt Event
	if err := json.Unmarshal(raw["type"], &evt.Type); err != nil || evt.Type == "" {
		return errors.New("event has no type")
	}
	decodeField(raw, "userId", &evt.UserID)
	decodeField(raw, "sessionType", &evt.SessionType)
	decodeField(raw, "roomId", &evt.RoomID)
	decodeField(raw, "position", &evt.Position)
	decodeField(raw, "message", &evt.Message)
	decodeField(raw, "partnerTransportId", &evt.PartnerTransportID)
	decodeField(raw, "partnerUserId", &evt.PartnerUserID)
	decodeField(raw, "targetTransportId", &evt.TargetTransportID)
	decodeField(raw, "from", &evt.From)

	consumed := eventKeys
	if IsSignal(evt.Type) {
		consumed = routingKeys
	}
	for _, k := range consumed {
		delete(raw, k)
	}
	if len(raw) > 0 {
		evt.Blob = raw
	}

	*e = evt
	return nil
}

func decodeField(raw map[string]json.RawMessage, key string, dst any) {
	if v, ok := raw[key]; ok {
		_ = json.Unmarshal(v, dst)
	}
}
