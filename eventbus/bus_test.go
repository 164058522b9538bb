package eventbus

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	typing   []TypingPayload
	markRead []MarkReadPayload
}

func (f *fakeHandler) OnTyping(p TypingPayload)     { f.typing = append(f.typing, p) }
func (f *fakeHandler) OnMarkRead(p MarkReadPayload) { f.markRead = append(f.markRead, p) }

func dialBus(t *testing.T, bus *Bus) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(bus.Handler())
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func TestBroadcast_DeliversToConnectedSubscriber(t *testing.T) {
	bus := New()
	conn, cleanup := dialBus(t, bus)
	defer cleanup()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	bus.Broadcast(Event{Event: NewMessage, Data: map[string]string{"peer": "bob"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, NewMessage, got.Event)
}

func TestBroadcast_NoSubscribersIsNoop(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() {
		bus.Broadcast(Event{Event: FriendOnline, Data: nil})
	})
}

func TestClientEvent_TypingForwardedToHandler(t *testing.T) {
	bus := New()
	fh := &fakeHandler{}
	bus.SetHandler(fh)

	conn, cleanup := dialBus(t, bus)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "typing",
		"data":  map[string]any{"to": "bob", "typing": true},
	}))

	require.Eventually(t, func() bool { return len(fh.typing) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "bob", fh.typing[0].To)
	assert.True(t, fh.typing[0].Typing)
}

func TestClientEvent_MarkReadForwardedToHandler(t *testing.T) {
	bus := New()
	fh := &fakeHandler{}
	bus.SetHandler(fh)

	conn, cleanup := dialBus(t, bus)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "mark_read",
		"data":  map[string]any{"peer": "bob", "msg_id": "abc"},
	}))

	require.Eventually(t, func() bool { return len(fh.markRead) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "bob", fh.markRead[0].Peer)
	assert.Equal(t, "abc", fh.markRead[0].MsgID)
}

func TestDisconnectedSubscriberIsDropped(t *testing.T) {
	bus := New()
	conn, cleanup := dialBus(t, bus)

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	cleanup()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}
