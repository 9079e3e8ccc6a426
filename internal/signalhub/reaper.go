package signalhub

import (
	"context"
	"time"

	"speakmatch/backend/internal/models"
)

// Start runs the sweep loop and the persistence worker in the background.
// Safe to call multiple times - only the first call starts them.
func (h *Hub) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		h.wg.Add(2)
		go h.runSweeper(ctx)
		go h.runPersister()
		h.log.Info().Dur("interval", h.opts.SweepInterval).Msg("hub started")
	})
}

// Stop shuts the background loops down after the pending records are written.
// Safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.log.Info().Msg("hub stopped")
	})
}

// Shutdown ends every open room so its participants get their completed
// session records, then stops the hub.
func (h *Hub) Shutdown() {
	for _, room := range h.Rooms.EndAll(EndReasonShutdown) {
		for _, p := range room.Participants {
			_ = h.Registry.Send(p.TransportID, models.Event{Type: models.EventCallEnded, RoomID: room.RoomID})
		}
		h.finalize(room)
	}
	h.Stop()
}

// Sweep evicts expired queue entries, aborts rooms whose handshake timed
// out and re-runs the matcher for every session type.
func (h *Hub) Sweep() {
	h.notifyExpired(h.Queue.Expire())

	for _, room := range h.Rooms.ExpireHandshakes() {
		for _, p := range room.Participants {
			_ = h.Registry.Send(p.TransportID, models.Event{Type: models.EventCallEnded, RoomID: room.RoomID})
		}
		h.finalize(room)
	}

	if pruned := h.Rooms.PruneEnded(h.opts.EndedRetention); pruned > 0 {
		h.log.Debug().Int("pruned", pruned).Msg("ended rooms pruned from memory")
	}

	for _, t := range h.Queue.SessionTypes() {
		h.Matcher.Match(t)
	}
}

func (h *Hub) runSweeper(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// runPersister writes audit rows and completed sessions in the order the
// transitions happened. Failures are logged, never retried.
func (h *Hub) runPersister() {
	defer h.wg.Done()

	for {
		select {
		case job := <-h.jobs:
			h.persist(job)
		case <-h.done:
			for {
				select {
				case job := <-h.jobs:
					h.persist(job)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) persist(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if job.records {
		for _, rec := range models.CompletedSessionsFor(job.room) {
			if err := h.Storage.RecordCompletedSession(ctx, &rec); err != nil {
				h.log.Error().
					Err(err).
					Str("room_id", rec.RoomID).
					Str("user_id", rec.UserID).
					Msg("failed to record completed session")
			}
		}
	}

	// Snapshots are taken under the room lock but enqueued after it is
	// released, so an older one can arrive after a newer one.
	room := job.room
	if mark, ok := h.persisted[room.RoomID]; ok && room.Version < mark.version {
		h.log.Debug().
			Str("room_id", room.RoomID).
			Str("status", string(room.Status)).
			Uint64("version", room.Version).
			Uint64("persisted_version", mark.version).
			Msg("stale room snapshot skipped")
		return
	}

	if err := h.Storage.SaveRoom(ctx, models.NewRoomRecord(room)); err != nil {
		h.log.Error().Err(err).Str("room_id", room.RoomID).Msg("failed to save room")
	}
	h.persisted[room.RoomID] = persistMark{version: room.Version, endedAt: room.EndedAt}
	if !room.Status.Open() {
		h.forgetPersisted()
	}
}

// forgetPersisted drops marks of rooms that ended longer ago than the
// in-memory retention. Snapshots that late are not expected.
func (h *Hub) forgetPersisted() {
	now := h.opts.Now()
	for id, mark := range h.persisted {
		if !mark.endedAt.IsZero() && now.Sub(mark.endedAt) > h.opts.EndedRetention {
			delete(h.persisted, id)
		}
	}
}
