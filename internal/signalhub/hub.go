// Package signalhub pairs anonymous users waiting for a practice session and
// relays the connection handshake between the two peers of each room.
//
// The waiting queue, the room table and the transport registry each own
// their state behind a mutex. Nothing holds one of those locks while doing
// I/O; persistence runs on a separate worker after state transitions.
package signalhub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speakmatch/backend/internal/config"
	"speakmatch/backend/internal/metrics"
	"speakmatch/backend/internal/models"
	"speakmatch/backend/internal/storage"
)

const (
	defaultEndedRetention = 10 * time.Minute
	persistQueueSize      = 1024
	persistTimeout        = 5 * time.Second
)

// Options tunes the hub.
type Options struct {
	SessionTypes     []string
	QueueTTL         time.Duration
	HandshakeTimeout time.Duration
	SweepInterval    time.Duration
	// EndedRetention is how long ended rooms stay in memory.
	EndedRetention time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// OptionsFromConfig maps the service configuration onto hub options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SessionTypes:     cfg.SessionTypes,
		QueueTTL:         cfg.QueueTTL,
		HandshakeTimeout: cfg.HandshakeTimeout,
		SweepInterval:    cfg.SweepInterval,
	}
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Transports int            `json:"transports"`
	Queue      map[string]int `json:"queue"`
	Rooms      map[string]int `json:"rooms"`
}

type persistJob struct {
	room    models.Room
	records bool
}

// persistMark is the newest room version the worker has written.
type persistMark struct {
	version uint64
	endedAt time.Time
}

// Hub coordinates the registry, the waiting queue, the matcher, the room
// manager and the relay.
type Hub struct {
	Registry *Registry
	Queue    *WaitingQueue
	Rooms    *RoomManager
	Relay    *Relay
	Matcher  *MatcherService

	// Storage receives audit rows and completed sessions. It may be nil.
	Storage storage.Storage

	opts Options
	log  zerolog.Logger

	jobs      chan persistJob
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// persisted is owned by the persistence worker.
	persisted map[string]persistMark
}

// NewHub wires a hub with empty state.
func NewHub(s storage.Storage, opts Options, log zerolog.Logger) *Hub {
	if opts.QueueTTL <= 0 {
		opts.QueueTTL = config.DefaultQueueTTL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	if opts.EndedRetention <= 0 {
		opts.EndedRetention = defaultEndedRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &Hub{
		Storage:   s,
		opts:      opts,
		log:       log.With().Str("component", "hub").Logger(),
		jobs:      make(chan persistJob, persistQueueSize),
		persisted: make(map[string]persistMark),
		done:      make(chan struct{}),
	}
	h.Registry = NewRegistry(log)
	h.Queue = NewWaitingQueue(opts.SessionTypes, opts.QueueTTL, opts.Now, log)
	h.Rooms = NewRoomManager(opts.HandshakeTimeout, opts.Now, log)
	h.Relay = NewRelay(h.Rooms, h.Registry, log)
	h.Matcher = NewMatcherService(h)
	return h
}

// Register makes a connection reachable by its transport ID.
func (h *Hub) Register(c Client) {
	h.Registry.Register(c)
}

// HandleEvent dispatches one client event. It never panics on bad input;
// protocol violations are logged and dropped.
func (h *Hub) HandleEvent(c Client, evt models.Event) {
	transportID := c.GetTransportID()

	switch {
	case evt.Type == models.EventJoinQueue:
		if evt.UserID != "" && evt.UserID != c.GetUserID() {
			h.rejectAdmission(transportID, ErrUserMismatch)
			return
		}
		_, _ = h.JoinQueue(transportID, c.GetUserID(), evt.SessionType)

	case evt.Type == models.EventLeaveQueue:
		h.LeaveQueue(transportID, c.GetUserID())

	case models.IsSignal(evt.Type):
		_ = h.Signal(transportID, evt)

	case evt.Type == models.EventReady:
		_ = h.Ready(transportID, evt.RoomID)

	case evt.Type == models.EventEndCall:
		_ = h.EndCall(transportID, evt.RoomID)

	default:
		h.log.Warn().Str("transport_id", transportID).Str("event", evt.Type).Msg("unknown event type")
	}
}

// JoinQueue admits the user, acknowledges with the queue position and runs
// the matcher for the session type.
func (h *Hub) JoinQueue(transportID, userID, sessionType string) (int, error) {
	if _, inRoom := h.Rooms.RoomForTransport(transportID); inRoom {
		h.rejectAdmission(transportID, ErrAlreadyInRoom)
		return 0, ErrAlreadyInRoom
	}

	position, err := h.Queue.Admit(userID, transportID, sessionType)
	if err != nil {
		h.rejectAdmission(transportID, err)
		return 0, err
	}
	metrics.QueueAdmissions.WithLabelValues(sessionType).Inc()
	h.log.Info().
		Str("user_id", userID).
		Str("transport_id", transportID).
		Str("session_type", sessionType).
		Int("position", position).
		Msg("user joined queue")

	_ = h.Registry.Send(transportID, models.Event{Type: models.EventQueueJoined, Position: position})
	h.Matcher.Match(sessionType)
	return position, nil
}

// LeaveQueue withdraws the user from every session type. It is idempotent.
func (h *Hub) LeaveQueue(transportID, userID string) {
	removed := h.Queue.Withdraw(userID)
	_ = h.Registry.Send(transportID, models.Event{Type: models.EventQueueLeft})
	h.rematch(removed)
}

// Signal relays a handshake message to the sender's peer.
func (h *Hub) Signal(transportID string, evt models.Event) error {
	room, activated, err := h.Relay.Forward(transportID, evt.TargetTransportID, evt)
	if err != nil {
		return err
	}
	if activated {
		h.onActivated(room)
	}
	return nil
}

// Ready marks the sender ready without relaying anything.
func (h *Hub) Ready(transportID, roomID string) error {
	if roomID == "" {
		room, ok := h.Rooms.RoomForTransport(transportID)
		if !ok {
			return ErrRoomNotFound
		}
		roomID = room.RoomID
	}
	room, activated, err := h.Rooms.MarkReady(roomID, transportID)
	if err != nil {
		h.log.Warn().Err(err).Str("transport_id", transportID).Str("room_id", roomID).Msg("ready refused")
		return err
	}
	if activated {
		h.onActivated(room)
	}
	return nil
}

// EndCall ends the room on request of a participant and tells both peers.
// A repeated end-call is acknowledged to the caller only.
func (h *Hub) EndCall(transportID, roomID string) error {
	if roomID == "" {
		room, ok := h.Rooms.RoomForTransport(transportID)
		if !ok {
			return ErrRoomNotFound
		}
		roomID = room.RoomID
	}
	room, first, err := h.Rooms.EndCall(roomID, transportID)
	if err != nil {
		h.log.Warn().Err(err).Str("transport_id", transportID).Str("room_id", roomID).Msg("end-call refused")
		return err
	}

	ended := models.Event{Type: models.EventCallEnded, RoomID: roomID}
	if !first {
		_ = h.Registry.Send(transportID, ended)
		return nil
	}
	for _, p := range room.Participants {
		_ = h.Registry.Send(p.TransportID, ended)
	}
	h.finalize(room)
	return nil
}

// Stats returns queue depth per session type, room counts per status and
// the number of live transports.
func (h *Hub) Stats() Stats {
	st := Stats{
		Transports: h.Registry.Count(),
		Queue:      make(map[string]int),
		Rooms:      make(map[string]int),
	}
	for _, t := range h.Queue.SessionTypes() {
		st.Queue[t] = h.Queue.Len(t)
	}
	for status, n := range h.Rooms.Counts() {
		st.Rooms[string(status)] = n
	}
	return st
}

// RecoverStaleRooms closes audit rows left open by a previous process.
// Their transports are gone, so none of them can resume.
func (h *Hub) RecoverStaleRooms(ctx context.Context) {
	if h.Storage == nil {
		return
	}
	h.log.Info().Msg("starting stale room recovery")

	openRoomIDs, err := h.Storage.GetOpenRoomIDs(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list open rooms")
		return
	}
	if len(openRoomIDs) == 0 {
		return
	}

	closed, err := h.Storage.CloseStaleRooms(ctx, h.opts.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to close stale rooms")
		return
	}
	h.log.Info().Int("open", len(openRoomIDs)).Int64("closed", closed).Msg("stale room recovery complete")
}

func (h *Hub) rejectAdmission(transportID string, err error) {
	reason := "other"
	switch {
	case errors.Is(err, ErrAlreadyQueued):
		reason = "already_queued"
	case errors.Is(err, ErrInvalidSessionType):
		reason = "invalid_session_type"
	case errors.Is(err, ErrUserMismatch):
		reason = "user_mismatch"
	case errors.Is(err, ErrAlreadyInRoom):
		reason = "in_room"
	}
	metrics.QueueRejections.WithLabelValues(reason).Inc()
	_ = h.Registry.Send(transportID, models.Event{Type: models.EventQueueError, Message: err.Error()})
}

func (h *Hub) notifyExpired(entries []models.QueueEntry) {
	for _, e := range entries {
		_ = h.Registry.Send(e.TransportID, models.Event{
			Type:        models.EventQueueError,
			SessionType: e.SessionType,
			Message:     "queue timeout",
		})
	}
}

// rematch runs the matcher for every session type that lost entries.
func (h *Hub) rematch(removed []models.QueueEntry) {
	seen := make(map[string]bool, len(removed))
	for _, e := range removed {
		if seen[e.SessionType] {
			continue
		}
		seen[e.SessionType] = true
		h.Matcher.Match(e.SessionType)
	}
}

func (h *Hub) onActivated(room models.Room) {
	h.persistRoom(room)
	h.log.Info().Str("room_id", room.RoomID).Time("started_at", room.StartedAt).Msg("room active")
}

// finalize reports an ended room. It is called exactly once per room, by
// whoever won the transition to ended.
func (h *Hub) finalize(room models.Room) {
	if !room.Aborted {
		metrics.RoomDuration.Observe(room.Duration.Seconds())
	}
	h.log.Info().
		Str("room_id", room.RoomID).
		Str("reason", room.EndReason).
		Bool("aborted", room.Aborted).
		Dur("duration", room.Duration).
		Msg("room ended")
	h.enqueue(persistJob{room: room, records: true})
}

func (h *Hub) persistRoom(room models.Room) {
	h.enqueue(persistJob{room: room})
}

// enqueue hands a job to the persistence worker without blocking.
func (h *Hub) enqueue(job persistJob) {
	if h.Storage == nil {
		return
	}
	select {
	case h.jobs <- job:
	default:
		h.log.Error().Str("room_id", job.room.RoomID).Msg("persistence queue full, record dropped")
	}
}
