package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// RoomRecord is the audit row of a Room in PostgreSQL.
// Rows are never deleted; an ended room keeps its final state.
type RoomRecord struct {
	// RoomID is the unique identifier of the room (UUID).
	RoomID string `gorm:"primaryKey" json:"roomId"`
	// SessionType is the practice type the pair was matched for.
	SessionType string `gorm:"index" json:"sessionType"`
	// ParticipantIDs are the user IDs in match order.
	ParticipantIDs pq.StringArray `gorm:"type:text[]" json:"participantIds"`
	// Status mirrors RoomStatus.
	Status string `gorm:"index" json:"status"`
	// CreatedAt is when the pair was matched.
	CreatedAt time.Time `json:"createdAt"`
	// StartedAt is when the room became active.
	StartedAt *time.Time `json:"startedAt,omitempty"`
	// EndedAt is when the room ended.
	EndedAt *time.Time `json:"endedAt,omitempty"`
	// DurationSeconds is EndedAt - StartedAt in whole seconds.
	DurationSeconds int64 `json:"duration"`
	// Aborted is true when the room ended before becoming active.
	Aborted   bool   `json:"aborted"`
	EndReason string `json:"endReason,omitempty"`
}

// TableName pins the audit table name.
func (RoomRecord) TableName() string { return "rooms" }

// NewRoomRecord builds the audit row for the current state of room.
func NewRoomRecord(room Room) *RoomRecord {
	rec := &RoomRecord{
		RoomID:          room.RoomID,
		SessionType:     room.SessionType,
		Status:          string(room.Status),
		CreatedAt:       room.CreatedAt,
		DurationSeconds: int64(room.Duration / time.Second),
		Aborted:         room.Aborted,
		EndReason:       room.EndReason,
	}
	for _, p := range room.Participants {
		rec.ParticipantIDs = append(rec.ParticipantIDs, p.UserID)
	}
	if !room.StartedAt.IsZero() {
		started := room.StartedAt
		rec.StartedAt = &started
	}
	if !room.EndedAt.IsZero() {
		ended := room.EndedAt
		rec.EndedAt = &ended
	}
	return rec
}

// CompletedSession is the finalized-session record emitted once per
// participant when a room ends.
type CompletedSession struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"index;not null" json:"userId"`
	SessionType string    `gorm:"not null" json:"sessionType"`
	RoomID      string    `gorm:"index;not null" json:"roomId"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
	// Duration is in seconds.
	Duration int64 `json:"duration"`
	Aborted  bool  `json:"aborted"`
}

// BeforeCreate is a GORM hook that assigns a UUID when ID is not set.
func (s *CompletedSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// CompletedSessionsFor builds one record per participant of an ended room.
func CompletedSessionsFor(room Room) []CompletedSession {
	out := make([]CompletedSession, 0, len(room.Participants))
	for _, p := range room.Participants {
		out = append(out, CompletedSession{
			UserID:      p.UserID,
			SessionType: room.SessionType,
			RoomID:      room.RoomID,
			StartedAt:   room.StartedAt,
			EndedAt:     room.EndedAt,
			Duration:    int64(room.Duration / time.Second),
			Aborted:     room.Aborted,
		})
	}
	return out
}
