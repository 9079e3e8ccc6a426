package models

import "time"

// QueueStatus is the state of a waiting queue entry.
type QueueStatus string

const (
	// QueueStatusWaiting marks an entry that can be picked by the matcher.
	QueueStatusWaiting QueueStatus = "waiting"
	// QueueStatusMatching marks an entry locked by an in-flight pairing.
	QueueStatusMatching QueueStatus = "matching"
)

// QueueEntry is one admission request in the waiting queue.
// A user has at most one entry per session type.
type QueueEntry struct {
	// UserID is the anonymous ID of the user waiting for a partner.
	UserID string `json:"userId"`
	// TransportID identifies the connection the user is reachable on.
	TransportID string `json:"transportId"`
	// SessionType is the kind of practice session requested (e.g. "public_speaking").
	SessionType string `json:"sessionType"`
	// JoinedAt defines FIFO order and expiry.
	JoinedAt time.Time `json:"joinedAt"`
	// Status is waiting, or matching while locked by the matcher.
	Status QueueStatus `json:"status"`
}

// Expired reports whether the entry has been waiting longer than ttl.
func (e QueueEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.JoinedAt) > ttl
}
