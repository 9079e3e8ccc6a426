package models_test

import (
	"testing"
	"time"

	"speakmatch/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCompletedSessionBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestCompletedSessionBeforeCreate_GeneratesUUID(t *testing.T) {
	// Arrange
	rec := &models.CompletedSession{
		UserID:      "user_A",
		SessionType: "public_speaking",
		RoomID:      uuid.New().String(),
		Duration:    42,
	}
	assert.Empty(t, rec.ID, "ID should be empty before BeforeCreate")

	// Act - GORM would call this automatically
	err := rec.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(rec.ID)
	assert.NoError(t, parseErr, "ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestCompletedSessionBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestCompletedSessionBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	rec := &models.CompletedSession{ID: existingID, UserID: "user_B"}

	err := rec.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, rec.ID)
}

// TestCompletedSessionsFor_OneRecordPerParticipant checks the finalized records of an ended room.
func TestCompletedSessionsFor_OneRecordPerParticipant(t *testing.T) {
	started := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)
	room := models.Room{
		RoomID:      "room1",
		SessionType: "public_speaking",
		Participants: []models.Participant{
			{UserID: "user_A", TransportID: "t_A"},
			{UserID: "user_B", TransportID: "t_B"},
		},
		Status:    models.RoomStatusEnded,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
	}

	records := models.CompletedSessionsFor(room)

	require.Len(t, records, 2)
	assert.Equal(t, "user_A", records[0].UserID)
	assert.Equal(t, "user_B", records[1].UserID)
	for _, r := range records {
		assert.Equal(t, "room1", r.RoomID)
		assert.Equal(t, "public_speaking", r.SessionType)
		assert.Equal(t, int64(90), r.Duration)
		assert.Equal(t, started, r.StartedAt)
		assert.Equal(t, ended, r.EndedAt)
		assert.False(t, r.Aborted)
	}
}

// TestNewRoomRecord_AbortedRoomHasNoStart verifies that a room which never became active keeps a nil start.
func TestNewRoomRecord_AbortedRoomHasNoStart(t *testing.T) {
	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	room := models.Room{
		RoomID:       "room2",
		SessionType:  "interview",
		Participants: []models.Participant{{UserID: "user_A"}, {UserID: "user_B"}},
		Status:       models.RoomStatusEnded,
		CreatedAt:    created,
		EndedAt:      created.Add(time.Minute),
		Aborted:      true,
	}

	rec := models.NewRoomRecord(room)

	assert.Equal(t, "ended", rec.Status)
	assert.Nil(t, rec.StartedAt)
	require.NotNil(t, rec.EndedAt)
	assert.Equal(t, int64(0), rec.DurationSeconds)
	assert.True(t, rec.Aborted)
	assert.Equal(t, []string{"user_A", "user_B"}, []string(rec.ParticipantIDs))
}
