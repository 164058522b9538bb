package eventbus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ReadTimeout bounds how long a subscriber connection may stay idle
// before the server assumes it's gone.
const ReadTimeout = 90 * time.Second

// ClientHandler receives client-originated events (typing, mark_read)
// forwarded from any subscriber connection.
type ClientHandler interface {
	OnTyping(TypingPayload)
	OnMarkRead(MarkReadPayload)
}

// subscriber wraps one open WebSocket connection. gorilla/websocket
// connections may not be written from more than one goroutine at a time,
// so writes are serialized behind writeMu.
type subscriber struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *subscriber) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Bus fans out server-to-client events to every open subscriber and
// accepts client-originated events on the same connection.
type Bus struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]bool

	handler ClientHandler
}

// New constructs an empty event bus. SetHandler must be called before
// client-originated events can be forwarded anywhere; until then they are
// silently dropped.
func New() *Bus {
	return &Bus{
		upgrader: websocket.Upgrader{
			// Loopback-only front-end; no cross-origin browser
			// client is expected to reach this port.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		subscribers: make(map[*subscriber]bool),
	}
}

// SetHandler wires the receiver for client-originated events.
func (b *Bus) SetHandler(h ClientHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Handler returns the http.Handler to mount at the /events path.
func (b *Bus) Handler() http.Handler {
	return http.HandlerFunc(b.accept)
}

func (b *Bus) accept(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "accept",
			"error":    err.Error(),
		}).Warn("websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn}
	b.addSubscriber(sub)
	defer b.removeSubscriber(sub)
	defer conn.Close()

	logrus.WithFields(logrus.Fields{
		"function": "accept",
	}).Info("event subscriber connected")

	b.readLoop(sub)
}

func (b *Bus) addSubscriber(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[s] = true
}

func (b *Bus) removeSubscriber(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, s)
}

func (b *Bus) readLoop(s *subscriber) {
	for {
		s.conn.SetReadDeadline(time.Now().Add(ReadTimeout))

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(logrus.Fields{
					"function": "readLoop",
					"error":    err.Error(),
				}).Debug("event subscriber connection closed")
			}
			return
		}

		var evt ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err.Error(),
			}).Warn("dropping malformed client event")
			continue
		}

		b.dispatchClientEvent(evt)
	}
}

func (b *Bus) dispatchClientEvent(evt ClientEvent) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()

	if h == nil {
		return
	}

	switch evt.Event {
	case "typing":
		typing := false
		if evt.Data.Typing != nil {
			typing = *evt.Data.Typing
		}
		h.OnTyping(TypingPayload{To: evt.Data.To, Typing: typing})
	case "mark_read":
		h.OnMarkRead(MarkReadPayload{Peer: evt.Data.Peer, MsgID: evt.Data.MsgID})
	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatchClientEvent",
			"event":    evt.Event,
		}).Warn("unrecognized client event")
	}
}

// Broadcast fans event out to every currently-open subscriber. A
// subscriber whose send fails is dropped; this never affects the others.
// The lock is held only for the snapshot; the writes then happen one
// subscriber at a time on the caller's goroutine, with no write deadline,
// and Broadcast returns once every snapshotted subscriber has been written
// to or dropped.
func (b *Bus) Broadcast(event Event) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		if err := s.send(event); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Broadcast",
				"event":    event.Event,
				"error":    err.Error(),
			}).Warn("dropping unresponsive subscriber")
			b.removeSubscriber(s)
			s.conn.Close()
		}
	}
}

// Notify is a convenience wrapper around Broadcast for callers that only
// have a name and a data payload in hand, such as the Delivery Pipeline.
func (b *Bus) Notify(name Name, data any) {
	b.Broadcast(Event{Event: name, Data: data})
}

// SubscriberCount reports how many subscribers are currently connected.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
