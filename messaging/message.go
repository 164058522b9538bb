package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Direction is which way a message traveled.
type Direction uint8

const (
	DirectionSent Direction = iota
	DirectionReceived
)

func (d Direction) String() string {
	if d == DirectionSent {
		return "sent"
	}
	return "received"
}

// DeliveryMethod records how a sent message actually reached (or failed to
// reach) its recipient. It is unset (DeliveryNone) for received messages.
type DeliveryMethod uint8

const (
	// DeliveryNone applies to received messages, which have no delivery
	// method of their own.
	DeliveryNone DeliveryMethod = iota
	// DeliveryDirect means the message was handed directly to the
	// recipient over Peer Transport.
	DeliveryDirect
	// DeliveryOffline means the message was accepted by the directory's
	// relay after a direct attempt failed.
	DeliveryOffline
	// DeliveryOfflinePending means both direct delivery and the relay
	// push failed; the message is held locally for the scheduler's
	// pending-retry task.
	DeliveryOfflinePending
)

func (d DeliveryMethod) String() string {
	switch d {
	case DeliveryDirect:
		return "direct"
	case DeliveryOffline:
		return "offline"
	case DeliveryOfflinePending:
		return "offline_pending"
	default:
		return ""
	}
}

// Message is a single chat message, keyed by MsgID. Per the at-most-once
// invariant, (Direction, Peer) is fixed once written and MsgID is unique
// across both directions.
type Message struct {
	MsgID          string
	Peer           string
	Direction      Direction
	Plaintext      string
	Timestamp      time.Time
	Delivered      bool
	DeliveryMethod DeliveryMethod
}

// NewMsgID generates a fresh 128-bit random message identifier, encoded as
// a UUID v4 string per the wire format's inner payload.
func NewMsgID() string {
	return uuid.New().String()
}

// NewSent constructs a not-yet-persisted sent message with a freshly
// generated msg_id. The caller attaches delivery outcome via MarkDelivered
// or MarkPending before persisting.
func NewSent(peer, plaintext string, timestamp time.Time) *Message {
	msgID := NewMsgID()

	logrus.WithFields(logrus.Fields{
		"function": "NewSent",
		"peer":     peer,
		"msg_id":   msgID,
	}).Debug("constructing sent message")

	return &Message{
		MsgID:     msgID,
		Peer:      peer,
		Direction: DirectionSent,
		Plaintext: plaintext,
		Timestamp: timestamp,
	}
}

// NewReceived constructs a received message that is already considered
// delivered (receipt itself is the delivery event) with the given
// delivery method reflecting its origin (direct connection or offline
// drain).
func NewReceived(msgID, peer, plaintext string, timestamp time.Time, method DeliveryMethod) *Message {
	return &Message{
		MsgID:          msgID,
		Peer:           peer,
		Direction:      DirectionReceived,
		Plaintext:      plaintext,
		Timestamp:      timestamp,
		Delivered:      true,
		DeliveryMethod: method,
	}
}

// MarkDelivered records a successful delivery outcome for a sent message.
func (m *Message) MarkDelivered(method DeliveryMethod) {
	m.Delivered = true
	m.DeliveryMethod = method
}

// MarkPending records that neither direct delivery nor the relay
// succeeded; the message stays undelivered and is retried by the
// scheduler's pending-retry task.
func (m *Message) MarkPending() {
	m.Delivered = false
	m.DeliveryMethod = DeliveryOfflinePending
}
