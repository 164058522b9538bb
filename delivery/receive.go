package delivery

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/eventbus"
	"github.com/opd-ai/peernode/messaging"
	"github.com/opd-ai/peernode/store"
)

// NewMessageEvent is the payload published on the Event Bus for a
// newly-persisted received message.
type NewMessageEvent struct {
	Peer      string    `json:"peer"`
	MsgID     string    `json:"msg_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Receive is the inbound path: structural check, resolve sender, verify,
// decrypt, parse, dedup, persist, notify. Every recoverable failure below
// a store error is dropped silently with a warning and reported back to
// the caller as nil; only a genuine store failure propagates, so a
// caller (the peer listener or the offline drain) can tell "drop, keep
// going" apart from "retry me later".
func (p *Pipeline) Receive(raw []byte, source Source) error {
	env, err := messaging.UnmarshalEnvelope(raw, p.identity.Username)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receive",
			"error":    err.Error(),
		}).Warn("dropping structurally invalid envelope")
		return nil
	}

	f, ferr := p.store.LookupFriend(env.From)
	if ferr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receive",
			"from":     env.From,
		}).Warn("dropping envelope from unknown sender")
		return nil
	}

	payload, oerr := messaging.OpenEnvelope(env, f.EncPublicKey, p.identity.EncKeyPair.Private, f.SignPublicKey)
	if oerr != nil {
		switch {
		case errors.Is(oerr, crypto.ErrBadSignature):
			logrus.WithFields(logrus.Fields{
				"function": "Receive",
				"from":     env.From,
			}).Warn("dropping envelope with bad signature")
		case errors.Is(oerr, crypto.ErrAuthFailure):
			logrus.WithFields(logrus.Fields{
				"function": "Receive",
				"from":     env.From,
			}).Warn("dropping envelope that failed authenticated decryption")
		default:
			logrus.WithFields(logrus.Fields{
				"function": "Receive",
				"from":     env.From,
				"error":    oerr.Error(),
			}).Warn("dropping malformed envelope payload")
		}
		return nil
	}

	receivedAt := p.time.Now()
	alreadySeen, serr := p.store.CheckAndMarkSeen(payload.MsgID, receivedAt)
	if serr != nil {
		return serr
	}
	if alreadySeen {
		logrus.WithFields(logrus.Fields{
			"function": "Receive",
			"msg_id":   payload.MsgID,
		}).Debug("dropping replayed message")
		return nil
	}

	ts, perr := time.Parse(messaging.TimestampLayout, env.Timestamp)
	if perr != nil {
		ts = receivedAt
	}

	method := messaging.DeliveryDirect
	if source == SourceOffline {
		method = messaging.DeliveryOffline
	}

	msg := messaging.NewReceived(payload.MsgID, env.From, payload.Text, ts, method)
	if rerr := p.store.RecordMessage(msg); rerr != nil {
		if errors.Is(rerr, store.ErrDuplicate) {
			return nil
		}
		return rerr
	}

	if p.notifier != nil {
		p.notifier.Notify(eventbus.NewMessage, NewMessageEvent{
			Peer:      env.From,
			MsgID:     payload.MsgID,
			Text:      payload.Text,
			Timestamp: ts,
		})
	}

	logrus.WithFields(logrus.Fields{
		"function": "Receive",
		"from":     env.From,
		"msg_id":   payload.MsgID,
		"method":   method.String(),
	}).Info("received message persisted")

	return nil
}
