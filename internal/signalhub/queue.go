package signalhub

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speakmatch/backend/internal/metrics"
	"speakmatch/backend/internal/models"
)

// WaitingQueue holds admission requests per session type in FIFO order.
//
// Entries move waiting -> matching only inside lockPair, and leave the queue
// on commit, withdrawal, transport loss or expiry.
type WaitingQueue struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger

	// lines holds one slice per session type, sorted by JoinedAt.
	lines map[string][]*models.QueueEntry
	// byUser indexes entries by user, then session type.
	byUser map[string]map[string]*models.QueueEntry
}

// NewWaitingQueue creates a queue accepting the given session types.
func NewWaitingQueue(sessionTypes []string, ttl time.Duration, now func() time.Time, log zerolog.Logger) *WaitingQueue {
	if now == nil {
		now = time.Now
	}
	q := &WaitingQueue{
		ttl:    ttl,
		now:    now,
		log:    log.With().Str("component", "queue").Logger(),
		lines:  make(map[string][]*models.QueueEntry, len(sessionTypes)),
		byUser: make(map[string]map[string]*models.QueueEntry),
	}
	for _, t := range sessionTypes {
		q.lines[t] = nil
	}
	return q
}

// SessionTypes returns the accepted session types, sorted.
func (q *WaitingQueue) SessionTypes() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	types := make([]string, 0, len(q.lines))
	for t := range q.lines {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Admit inserts a waiting entry and returns its 1-based position among the
// waiting entries of the same session type.
func (q *WaitingQueue) Admit(userID, transportID, sessionType string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.lines[sessionType]; !ok {
		return 0, ErrInvalidSessionType
	}
	if _, ok := q.byUser[userID][sessionType]; ok {
		return 0, ErrAlreadyQueued
	}

	entry := &models.QueueEntry{
		UserID:      userID,
		TransportID: transportID,
		SessionType: sessionType,
		JoinedAt:    q.now(),
		Status:      models.QueueStatusWaiting,
	}
	q.insert(entry)

	position := 1
	for _, e := range q.lines[sessionType] {
		if e == entry {
			break
		}
		if e.Status == models.QueueStatusWaiting {
			position++
		}
	}
	q.updateDepth(sessionType)
	return position, nil
}

// Withdraw removes every entry of the user. It is idempotent and returns
// what was removed.
func (q *WaitingQueue) Withdraw(userID string) []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []models.QueueEntry
	for _, e := range q.byUser[userID] {
		removed = append(removed, *e)
		q.remove(e)
	}
	return removed
}

// WithdrawTransport removes every entry admitted through the transport.
func (q *WaitingQueue) WithdrawTransport(transportID string) []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var victims []*models.QueueEntry
	for _, line := range q.lines {
		for _, e := range line {
			if e.TransportID == transportID {
				victims = append(victims, e)
			}
		}
	}

	removed := make([]models.QueueEntry, 0, len(victims))
	for _, e := range victims {
		removed = append(removed, *e)
		q.remove(e)
	}
	return removed
}

// Position returns the 1-based position of the user's entry: one plus the
// number of entries of the same type that joined strictly earlier.
func (q *WaitingQueue) Position(userID, sessionType string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.byUser[userID][sessionType]
	if !ok {
		return 0, false
	}
	position := 1
	for _, e := range q.lines[sessionType] {
		if e.JoinedAt.Before(entry.JoinedAt) {
			position++
		}
	}
	return position, true
}

// Contains reports whether the user has an entry for the session type.
func (q *WaitingQueue) Contains(userID, sessionType string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byUser[userID][sessionType]
	return ok
}

// Len returns the number of entries of a session type.
func (q *WaitingQueue) Len(sessionType string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines[sessionType])
}

// Expire evicts every waiting entry older than the TTL.
func (q *WaitingQueue) Expire() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []models.QueueEntry
	for t := range q.lines {
		expired = append(expired, q.evictExpired(t)...)
	}
	return expired
}

// lockPair evicts expired entries of the session type, then moves the two
// oldest waiting entries to matching. Expired entries are returned so the
// caller can notify them.
func (q *WaitingQueue) lockPair(sessionType string) (a, b *models.QueueEntry, expired []models.QueueEntry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	expired = q.evictExpired(sessionType)

	var picked []*models.QueueEntry
	for _, e := range q.lines[sessionType] {
		if e.Status != models.QueueStatusWaiting || q.userLocked(e) {
			continue
		}
		picked = append(picked, e)
		if len(picked) == 2 {
			break
		}
	}
	if len(picked) < 2 {
		return nil, nil, expired, false
	}

	picked[0].Status = models.QueueStatusMatching
	picked[1].Status = models.QueueStatusMatching
	return picked[0], picked[1], expired, true
}

// commitPair removes both locked entries if both are still queued, together
// with every other entry of the two users, which it returns as siblings. If
// either was withdrawn in the meantime, the survivor goes back to waiting and
// the commit fails.
func (q *WaitingQueue) commitPair(a, b *models.QueueEntry) (siblings []models.QueueEntry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	aLive := q.byUser[a.UserID][a.SessionType] == a
	bLive := q.byUser[b.UserID][b.SessionType] == b
	if aLive && bLive {
		// A matched user leaves the queue entirely, other session types included.
		for _, e := range []*models.QueueEntry{a, b} {
			for _, other := range q.byUser[e.UserID] {
				if other != e {
					siblings = append(siblings, *other)
				}
				q.remove(other)
			}
		}
		return siblings, true
	}
	if aLive {
		a.Status = models.QueueStatusWaiting
	}
	if bLive {
		b.Status = models.QueueStatusWaiting
	}
	return nil, false
}

// requeue puts a previously matched entry back as waiting with its original
// JoinedAt, which sorts it ahead of everyone who joined later.
func (q *WaitingQueue) requeue(entry models.QueueEntry) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.lines[entry.SessionType]; !ok {
		return 0, ErrInvalidSessionType
	}
	if _, ok := q.byUser[entry.UserID][entry.SessionType]; ok {
		return 0, ErrAlreadyQueued
	}

	e := entry
	e.Status = models.QueueStatusWaiting
	q.insert(&e)

	position := 1
	for _, other := range q.lines[e.SessionType] {
		if other.JoinedAt.Before(e.JoinedAt) {
			position++
		}
	}
	q.updateDepth(e.SessionType)
	return position, nil
}

// userLocked reports whether another entry of the same user is being matched.
func (q *WaitingQueue) userLocked(e *models.QueueEntry) bool {
	for _, other := range q.byUser[e.UserID] {
		if other != e && other.Status == models.QueueStatusMatching {
			return true
		}
	}
	return false
}

func (q *WaitingQueue) evictExpired(sessionType string) []models.QueueEntry {
	now := q.now()
	var expired []*models.QueueEntry
	for _, e := range q.lines[sessionType] {
		if e.Status == models.QueueStatusWaiting && e.Expired(now, q.ttl) {
			expired = append(expired, e)
		}
	}

	out := make([]models.QueueEntry, 0, len(expired))
	for _, e := range expired {
		out = append(out, *e)
		q.remove(e)
		metrics.QueueExpired.Inc()
		q.log.Info().
			Str("user_id", e.UserID).
			Str("session_type", e.SessionType).
			Dur("waited", now.Sub(e.JoinedAt)).
			Msg("queue entry expired")
	}
	return out
}

// insert keeps the line sorted by JoinedAt; ties keep arrival order.
func (q *WaitingQueue) insert(e *models.QueueEntry) {
	line := q.lines[e.SessionType]
	i := sort.Search(len(line), func(i int) bool { return line[i].JoinedAt.After(e.JoinedAt) })
	line = append(line, nil)
	copy(line[i+1:], line[i:])
	line[i] = e
	q.lines[e.SessionType] = line

	if q.byUser[e.UserID] == nil {
		q.byUser[e.UserID] = make(map[string]*models.QueueEntry)
	}
	q.byUser[e.UserID][e.SessionType] = e
}

func (q *WaitingQueue) remove(e *models.QueueEntry) {
	line := q.lines[e.SessionType]
	for i, other := range line {
		if other == e {
			q.lines[e.SessionType] = append(line[:i], line[i+1:]...)
			break
		}
	}

	if byType := q.byUser[e.UserID]; byType[e.SessionType] == e {
		delete(byType, e.SessionType)
		if len(byType) == 0 {
			delete(q.byUser, e.UserID)
		}
	}
	q.updateDepth(e.SessionType)
}

func (q *WaitingQueue) updateDepth(sessionType string) {
	metrics.QueueDepth.WithLabelValues(sessionType).Set(float64(len(q.lines[sessionType])))
}
