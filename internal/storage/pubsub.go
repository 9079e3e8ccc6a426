package storage

import (
	"context"
	"encoding/json"
	"errors"

	"speakmatch/backend/internal/models"
)

// ErrNoRedis is returned when a subscription is requested without a Redis client.
var ErrNoRedis = errors.New("redis is not configured")

// SubscribeCompletedSessions слухає Redis Pub/Sub і викликає fn для кожного запису.
// It blocks until ctx is cancelled.
func (s *Service) SubscribeCompletedSessions(ctx context.Context, fn func(models.CompletedSession)) error {
	if s.Redis == nil {
		return ErrNoRedis
	}

	pubsub := s.Redis.Subscribe(ctx, s.Channel)
	defer pubsub.Close()

	// Receive confirms the subscription before we start reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var session models.CompletedSession
			if err := json.Unmarshal([]byte(msg.Payload), &session); err != nil {
				s.log.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping malformed completed session")
				continue
			}
			fn(session)
		}
	}
}
