// Package storage persists room audit rows and completed-session records
// in PostgreSQL and fans completed sessions out over Redis.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"speakmatch/backend/internal/models"
)

// ErrRoomNotFound is returned when an audit row does not exist.
var ErrRoomNotFound = errors.New("room not found")

// Storage is everything the hub and the admin CLI need from persistence.
type Storage interface {
	SaveRoom(ctx context.Context, room *models.RoomRecord) error
	GetRoomByID(ctx context.Context, roomID string) (*models.RoomRecord, error)
	GetOpenRoomIDs(ctx context.Context) ([]string, error)
	ListRooms(ctx context.Context, limit int) ([]models.RoomRecord, error)
	CloseStaleRooms(ctx context.Context, before time.Time) (int64, error)

	RecordCompletedSession(ctx context.Context, session *models.CompletedSession) error
	ListCompletedSessions(ctx context.Context, userID string) ([]models.CompletedSession, error)
}

// Service implements Storage on top of gorm and go-redis.
// Redis is optional; without it completed sessions are only stored.
type Service struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Channel string

	log zerolog.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, channel string, log zerolog.Logger) *Service {
	return &Service{
		DB:      db,
		Redis:   rdb,
		Channel: channel,
		log:     log.With().Str("component", "storage").Logger(),
	}
}

// Migrate creates or updates the audit tables.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(&models.RoomRecord{}, &models.CompletedSession{})
}

// SaveRoom upserts the audit row of a room. A row that already reached ended
// is only overwritten by another ended row.
func (s *Service) SaveRoom(ctx context.Context, room *models.RoomRecord) error {
	if err := s.DB.WithContext(ctx).Clauses(roomUpsert(room)).Create(room).Error; err != nil {
		return fmt.Errorf("save room %s: %w", room.RoomID, err)
	}
	return nil
}

func roomUpsert(room *models.RoomRecord) clause.OnConflict {
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		UpdateAll: true,
	}
	if room.Status != string(models.RoomStatusEnded) {
		upsert.Where = clause.Where{Exprs: []clause.Expression{
			gorm.Expr("rooms.status <> ?", string(models.RoomStatusEnded)),
		}}
	}
	return upsert
}

// GetRoomByID returns the audit row of a room.
func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.RoomRecord, error) {
	var room models.RoomRecord
	err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &room, nil
}

// GetOpenRoomIDs returns the rooms whose audit row has not reached ended.
func (s *Service) GetOpenRoomIDs(ctx context.Context) ([]string, error) {
	var roomIDs []string
	if err := s.DB.WithContext(ctx).Model(&models.RoomRecord{}).
		Where("status <> ?", string(models.RoomStatusEnded)).
		Pluck("room_id", &roomIDs).Error; err != nil {
		return nil, fmt.Errorf("list open rooms: %w", err)
	}
	return roomIDs, nil
}

// ListRooms returns the most recent audit rows.
func (s *Service) ListRooms(ctx context.Context, limit int) ([]models.RoomRecord, error) {
	var rooms []models.RoomRecord
	if err := s.DB.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// CloseStaleRooms marks rooms created before the given time and still open as
// aborted. Their transports belong to a previous process and cannot come back.
func (s *Service) CloseStaleRooms(ctx context.Context, before time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.RoomRecord{}).
		Where("status <> ? AND created_at < ?", string(models.RoomStatusEnded), before).
		Updates(map[string]interface{}{
			"status":     string(models.RoomStatusEnded),
			"ended_at":   gorm.Expr("NOW()"),
			"aborted":    gorm.Expr("started_at IS NULL"),
			"end_reason": "recovered",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("close stale rooms: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RecordCompletedSession stores the record and publishes it on Redis.
// Both steps are attempted; their errors are joined.
func (s *Service) RecordCompletedSession(ctx context.Context, session *models.CompletedSession) error {
	var errs []error
	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		errs = append(errs, fmt.Errorf("store completed session for room %s: %w", session.RoomID, err))
	}
	if err := s.PublishCompletedSession(ctx, session); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ListCompletedSessions returns a user's sessions, newest first.
func (s *Service) ListCompletedSessions(ctx context.Context, userID string) ([]models.CompletedSession, error) {
	var sessions []models.CompletedSession
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("ended_at desc").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	return sessions, nil
}

// PublishCompletedSession публікує запис у Redis Pub/Sub
func (s *Service) PublishCompletedSession(ctx context.Context, session *models.CompletedSession) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.Redis.Publish(ctx, s.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish completed session for room %s: %w", session.RoomID, err)
	}
	return nil
}
