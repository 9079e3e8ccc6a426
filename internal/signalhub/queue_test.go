package signalhub_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speakmatch/backend/internal/models"
	"speakmatch/backend/internal/signalhub"
)

func newTestQueue(clock *fakeClock) *signalhub.WaitingQueue {
	return signalhub.NewWaitingQueue([]string{publicSpeaking, "interview"}, 300*time.Second, clock.Now, zerolog.Nop())
}

func TestWaitingQueue_AdmitReturnsPositions(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	pos, err := q.Admit("alice", "t_alice", publicSpeaking)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	clock.Advance(time.Second)
	pos, err = q.Admit("bob", "t_bob", publicSpeaking)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	// Other session types have their own line.
	pos, err = q.Admit("carol", "t_carol", "interview")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	assert.Equal(t, 2, q.Len(publicSpeaking))
	assert.Equal(t, 1, q.Len("interview"))
}

func TestWaitingQueue_AdmitRejectsDuplicateAndUnknownType(t *testing.T) {
	q := newTestQueue(newFakeClock())

	_, err := q.Admit("alice", "t_alice", publicSpeaking)
	require.NoError(t, err)

	_, err = q.Admit("alice", "t_alice_2", publicSpeaking)
	assert.ErrorIs(t, err, signalhub.ErrAlreadyQueued)

	_, err = q.Admit("alice", "t_alice", "karaoke")
	assert.ErrorIs(t, err, signalhub.ErrInvalidSessionType)

	// The same user may wait for a different session type.
	_, err = q.Admit("alice", "t_alice", "interview")
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len(publicSpeaking))
}

func TestWaitingQueue_PositionCountsEarlierEntries(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	for _, u := range []string{"a", "b", "c"} {
		_, err := q.Admit(u, "t_"+u, publicSpeaking)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	pos, ok := q.Position("c", publicSpeaking)
	require.True(t, ok)
	assert.Equal(t, 3, pos)

	q.Withdraw("a")
	pos, _ = q.Position("c", publicSpeaking)
	assert.Equal(t, 2, pos)

	_, ok = q.Position("a", publicSpeaking)
	assert.False(t, ok)
}

func TestWaitingQueue_WithdrawIsIdempotent(t *testing.T) {
	q := newTestQueue(newFakeClock())
	_, _ = q.Admit("alice", "t_alice", publicSpeaking)
	_, _ = q.Admit("alice", "t_alice", "interview")

	removed := q.Withdraw("alice")
	assert.Len(t, removed, 2)
	assert.False(t, q.Contains("alice", publicSpeaking))
	assert.False(t, q.Contains("alice", "interview"))

	assert.Empty(t, q.Withdraw("alice"))
}

func TestWaitingQueue_WithdrawTransport(t *testing.T) {
	q := newTestQueue(newFakeClock())
	_, _ = q.Admit("alice", "t_alice", publicSpeaking)
	_, _ = q.Admit("bob", "t_bob", publicSpeaking)

	removed := q.WithdrawTransport("t_alice")
	require.Len(t, removed, 1)
	assert.Equal(t, "alice", removed[0].UserID)
	assert.True(t, q.Contains("bob", publicSpeaking))
}

func TestWaitingQueue_ExpireEvictsStaleEntries(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	_, _ = q.Admit("old", "t_old", publicSpeaking)
	clock.Advance(200 * time.Second)
	_, _ = q.Admit("young", "t_young", publicSpeaking)

	// Exactly at the TTL an entry is still valid.
	clock.Advance(100 * time.Second)
	assert.Empty(t, q.Expire())

	clock.Advance(time.Second)
	expired := q.Expire()
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].UserID)
	assert.True(t, q.Contains("young", publicSpeaking))
}

func TestWaitingQueue_LockPairSkipsExpired(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	_, _ = q.Admit("stale", "t_stale", publicSpeaking)
	clock.Advance(301 * time.Second)
	_, _ = q.Admit("b", "t_b", publicSpeaking)
	clock.Advance(time.Second)
	_, _ = q.Admit("c", "t_c", publicSpeaking)

	a, b, expired, ok := q.LockPair(publicSpeaking)
	require.True(t, ok)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].UserID)
	assert.Equal(t, "b", a.UserID)
	assert.Equal(t, "c", b.UserID)
	assert.Equal(t, models.QueueStatusMatching, a.Status)
}

func TestWaitingQueue_CommitPairRemovesSiblingEntries(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	_, _ = q.Admit("alice", "t_alice", publicSpeaking)
	_, _ = q.Admit("alice", "t_alice", "interview")
	clock.Advance(time.Second)
	_, _ = q.Admit("bob", "t_bob", publicSpeaking)

	a, b, _, ok := q.LockPair(publicSpeaking)
	require.True(t, ok)
	siblings, ok := q.CommitPair(a, b)
	require.True(t, ok)

	assert.Equal(t, 0, q.Len(publicSpeaking))
	assert.False(t, q.Contains("alice", "interview"))
	require.Len(t, siblings, 1)
	assert.Equal(t, "alice", siblings[0].UserID)
	assert.Equal(t, "interview", siblings[0].SessionType)
}

func TestWaitingQueue_LockedUserIsNotPairedTwice(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	for _, u := range []string{"alice", "bob"} {
		_, _ = q.Admit(u, "t_"+u, publicSpeaking)
		clock.Advance(time.Second)
	}
	_, _ = q.Admit("alice", "t_alice", "interview")
	clock.Advance(time.Second)
	_, _ = q.Admit("carol", "t_carol", "interview")

	_, _, _, ok := q.LockPair(publicSpeaking)
	require.True(t, ok)

	// alice is mid-match in public_speaking, so interview has only carol.
	_, _, _, ok = q.LockPair("interview")
	assert.False(t, ok)
}

func TestWaitingQueue_CommitPairFailsAfterWithdraw(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	_, _ = q.Admit("alice", "t_alice", publicSpeaking)
	clock.Advance(time.Second)
	_, _ = q.Admit("bob", "t_bob", publicSpeaking)

	a, b, _, ok := q.LockPair(publicSpeaking)
	require.True(t, ok)

	q.Withdraw("bob")
	_, ok = q.CommitPair(a, b)
	assert.False(t, ok)

	// alice is back to waiting and can be paired again.
	assert.Equal(t, models.QueueStatusWaiting, a.Status)
	pos, ok := q.Position("alice", publicSpeaking)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestWaitingQueue_RequeueKeepsOriginalPlace(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	_, _ = q.Admit("alice", "t_alice", publicSpeaking)
	clock.Advance(time.Second)
	_, _ = q.Admit("bob", "t_bob", publicSpeaking)
	a, b, _, _ := q.LockPair(publicSpeaking)
	_, ok := q.CommitPair(a, b)
	require.True(t, ok)

	clock.Advance(time.Second)
	_, _ = q.Admit("dave", "t_dave", publicSpeaking)

	pos, err := q.Requeue(*a)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, _ = q.Position("dave", publicSpeaking)
	assert.Equal(t, 2, pos)

	_, err = q.Requeue(*a)
	assert.ErrorIs(t, err, signalhub.ErrAlreadyQueued)
}

func TestWaitingQueue_ConcurrentAdmitSameUser(t *testing.T) {
	q := newTestQueue(newFakeClock())

	var wg sync.WaitGroup
	var admitted atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := q.Admit("alice", fmt.Sprintf("t_%d", i), publicSpeaking); err == nil {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, 1, q.Len(publicSpeaking))
}
