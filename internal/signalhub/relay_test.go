package signalhub_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speakmatch/backend/internal/models"
	"speakmatch/backend/internal/signalhub"
)

// matchPair admits two users and returns the room they were matched into.
func matchPair(t *testing.T, hub *signalhub.Hub, clock *fakeClock, a, b *MockClient) string {
	t.Helper()
	_, err := hub.JoinQueue(a.GetTransportID(), a.GetUserID(), publicSpeaking)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = hub.JoinQueue(b.GetTransportID(), b.GetUserID(), publicSpeaking)
	require.NoError(t, err)

	room, ok := hub.Rooms.RoomForTransport(a.GetTransportID())
	require.True(t, ok)
	a.drain()
	b.drain()
	return room.RoomID
}

func offer(target string, sdp string) models.Event {
	return models.Event{
		Type:              models.EventOffer,
		TargetTransportID: target,
		Blob:              map[string]json.RawMessage{"offer": json.RawMessage(sdp)},
	}
}

func TestRelay_ForwardsBlobVerbatim(t *testing.T) {
	clock := newFakeClock()
	hub := createTestHub(nil, clock)
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	matchPair(t, hub, clock, alice, bob)

	sdp := `{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1"}`
	hub.HandleEvent(alice, offer(bob.GetTransportID(), sdp))

	evt := bob.next(t)
	assert.Equal(t, models.EventOffer, evt.Type)
	assert.Equal(t, alice.GetTransportID(), evt.From)
	assert.JSONEq(t, sdp, string(evt.Blob["offer"]))
	assert.Empty(t, alice.drain())
}

func TestRelay_RoomIsolation(t *testing.T) {
	clock := newFakeClock()
	hub := createTestHub(nil, clock)
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	carol, dave := connect(hub, "carol"), connect(hub, "dave")
	matchPair(t, hub, clock, alice, bob)
	matchPair(t, hub, clock, carol, dave)

	// alice is not in carol's room.
	_, _, err := hub.Relay.Forward(alice.GetTransportID(), carol.GetTransportID(), offer(carol.GetTransportID(), `{}`))
	assert.ErrorIs(t, err, signalhub.ErrRelayRejected)
	assert.Empty(t, carol.drain())
	assert.Empty(t, dave.drain())
	assert.Empty(t, bob.drain())

	// A transport outside of any room cannot reach anyone.
	eve := connect(hub, "eve")
	_, _, err = hub.Relay.Forward(eve.GetTransportID(), alice.GetTransportID(), offer(alice.GetTransportID(), `{}`))
	assert.ErrorIs(t, err, signalhub.ErrRelayRejected)
	assert.Empty(t, alice.drain())
}

func TestRelay_TargetByUserID(t *testing.T) {
	clock := newFakeClock()
	hub := createTestHub(nil, clock)
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	matchPair(t, hub, clock, alice, bob)

	_, _, err := hub.Relay.Forward(alice.GetTransportID(), "bob", offer("bob", `{"sdp":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventOffer, bob.next(t).Type)
}

func TestRelay_HandshakeActivatesRoom(t *testing.T) {
	clock := newFakeClock()
	hub := createTestHub(nil, clock)
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	roomID := matchPair(t, hub, clock, alice, bob)

	_, activated, err := hub.Relay.Forward(alice.GetTransportID(), bob.GetTransportID(), offer(bob.GetTransportID(), `{}`))
	require.NoError(t, err)
	assert.False(t, activated)

	answer := models.Event{
		Type:              models.EventAnswer,
		TargetTransportID: alice.GetTransportID(),
		Blob:              map[string]json.RawMessage{"answer": json.RawMessage(`{"sdp":"y"}`)},
	}
	room, activated, err := hub.Relay.Forward(bob.GetTransportID(), alice.GetTransportID(), answer)
	require.NoError(t, err)
	assert.True(t, activated)
	assert.Equal(t, roomID, room.RoomID)
	assert.Equal(t, models.RoomStatusActive, room.Status)
	assert.Equal(t, clock.Now(), room.StartedAt)
}

func TestRelay_PeerGone(t *testing.T) {
	clock := newFakeClock()
	hub := createTestHub(nil, clock)
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	matchPair(t, hub, clock, alice, bob)

	hub.HandleDisconnect(bob.GetTransportID())
	alice.drain()

	_, _, err := hub.Relay.Forward(alice.GetTransportID(), bob.GetTransportID(), offer(bob.GetTransportID(), `{}`))
	assert.ErrorIs(t, err, signalhub.ErrRelayRejected)
}

func TestRelay_ForwardsKeysNamedLikeEventFields(t *testing.T) {
	clock := newFakeClock()
	hub := createTestHub(nil, clock)
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	matchPair(t, hub, clock, alice, bob)

	var in models.Event
	frame := `{"type":"offer","targetTransportId":"t_bob","roomId":"R1","message":"hi","position":"a","offer":{"sdp":"x"}}`
	require.NoError(t, json.Unmarshal([]byte(frame), &in))
	hub.HandleEvent(alice, in)

	out, err := json.Marshal(bob.next(t))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"offer","from":"t_alice","roomId":"R1","message":"hi","position":"a","offer":{"sdp":"x"}}`,
		string(out))
}
