package signalhub

import "speakmatch/backend/internal/models"

// Test hooks for the two-phase pairing steps and the persistence queue.

func (q *WaitingQueue) LockPair(sessionType string) (a, b *models.QueueEntry, expired []models.QueueEntry, ok bool) {
	return q.lockPair(sessionType)
}

func (q *WaitingQueue) CommitPair(a, b *models.QueueEntry) ([]models.QueueEntry, bool) {
	return q.commitPair(a, b)
}

func (q *WaitingQueue) Requeue(entry models.QueueEntry) (int, error) {
	return q.requeue(entry)
}

func (h *Hub) PersistRoom(room models.Room) {
	h.persistRoom(room)
}
