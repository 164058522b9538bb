// Package messaging implements the chat message entity and the
// peer-to-peer wire envelope that carries it.
//
// # Message
//
// A Message is keyed by msg_id, a sender-generated 128-bit random
// identifier. It records the counterparty, direction, plaintext, and how
// (or whether) it was delivered:
//
//	msg := messaging.NewSent("bob", "hello", time.Now())
//	msg.MarkDelivered(messaging.DeliveryDirect)
//
// # Envelope
//
// Envelope is the exact JSON structure exchanged between peers and through
// the relay (see the peer-to-peer wire format). BuildEnvelope encrypts and
// signs a Payload into an Envelope ready for framing; OpenEnvelope reverses
// the process, verifying the signature before decryption so that a
// decryption failure can never be mistaken for a forged signature.
package messaging
