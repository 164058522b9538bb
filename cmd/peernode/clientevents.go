package main

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/eventbus"
)

// clientEventLogger satisfies eventbus.ClientHandler. Typing indicators
// and read receipts are decorative front-end concerns the node's data
// model has no field for (a message carries no "read" state), so
// the node's only obligation is to accept these events without error;
// logging them at Debug is enough to see them flow during development.
type clientEventLogger struct{}

func (clientEventLogger) OnTyping(p eventbus.TypingPayload) {
	logrus.WithFields(logrus.Fields{
		"function": "OnTyping",
		"to":       p.To,
		"typing":   p.Typing,
	}).Debug("typing event received")
}

func (clientEventLogger) OnMarkRead(p eventbus.MarkReadPayload) {
	logrus.WithFields(logrus.Fields{
		"function": "OnMarkRead",
		"peer":     p.Peer,
		"msg_id":   p.MsgID,
	}).Debug("mark_read event received")
}
