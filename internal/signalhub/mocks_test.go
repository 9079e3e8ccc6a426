package signalhub_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"speakmatch/backend/internal/models"
	"speakmatch/backend/internal/signalhub"
)

// MockStorage is a mock implementation of the storage.Storage interface.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.RoomRecord) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockStorage) GetRoomByID(ctx context.Context, roomID string) (*models.RoomRecord, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomRecord), args.Error(1)
}

func (m *MockStorage) GetOpenRoomIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) ListRooms(ctx context.Context, limit int) ([]models.RoomRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoomRecord), args.Error(1)
}

func (m *MockStorage) CloseStaleRooms(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) RecordCompletedSession(ctx context.Context, session *models.CompletedSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockStorage) ListCompletedSessions(ctx context.Context, userID string) ([]models.CompletedSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CompletedSession), args.Error(1)
}

// recordedUsers returns the user IDs passed to RecordCompletedSession.
func (m *MockStorage) recordedUsers() []string {
	var users []string
	for _, call := range m.Calls {
		if call.Method == "RecordCompletedSession" {
			users = append(users, call.Arguments.Get(1).(*models.CompletedSession).UserID)
		}
	}
	return users
}

// savedStatuses returns the room statuses passed to SaveRoom, in call order.
func (m *MockStorage) savedStatuses() []string {
	var statuses []string
	for _, call := range m.Calls {
		if call.Method == "SaveRoom" {
			statuses = append(statuses, call.Arguments.Get(1).(*models.RoomRecord).Status)
		}
	}
	return statuses
}

// MockClient is a test double for the signalhub.Client interface.
type MockClient struct {
	transportID string
	userID      string
	RecvChannel chan models.Event
	closed      atomic.Bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		transportID: "t_" + userID,
		userID:      userID,
		RecvChannel: make(chan models.Event, 64),
	}
}

func (c *MockClient) GetTransportID() string              { return c.transportID }
func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.RecvChannel }
func (c *MockClient) Run()                                {}
func (c *MockClient) Close()                              { c.closed.Store(true) }

// next returns the next pending event or fails the test.
func (c *MockClient) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case evt := <-c.RecvChannel:
		return evt
	case <-time.After(time.Second):
		t.Fatalf("client %s received no event", c.userID)
		return models.Event{}
	}
}

// drain returns every pending event.
func (c *MockClient) drain() []models.Event {
	var out []models.Event
	for {
		select {
		case evt := <-c.RecvChannel:
			out = append(out, evt)
		default:
			return out
		}
	}
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const publicSpeaking = "public_speaking"

// createTestHub builds a hub with a fake clock and no background loops.
func createTestHub(s *MockStorage, clock *fakeClock) *signalhub.Hub {
	opts := signalhub.Options{
		SessionTypes:     []string{publicSpeaking, "interview"},
		QueueTTL:         300 * time.Second,
		HandshakeTimeout: 45 * time.Second,
		SweepInterval:    time.Hour,
		Now:              clock.Now,
	}
	if s == nil {
		return signalhub.NewHub(nil, opts, zerolog.Nop())
	}
	return signalhub.NewHub(s, opts, zerolog.Nop())
}

// connect registers a mock client with the hub.
func connect(hub *signalhub.Hub, userID string) *MockClient {
	c := newMockClient(userID)
	hub.Register(c)
	return c
}
