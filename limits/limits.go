// Package limits provides centralized size limits for the peer node core.
// This ensures consistent validation across messaging, delivery,
// transport, and the control plane.
package limits

import "errors"

const (
	// MaxMessageText is the maximum length, in bytes, of the plaintext
	// "text" field inside a message payload. Exceeding this fails the
	// send path with TooLarge.
	MaxMessageText = 10000

	// MaxFramePayload is the maximum payload length, in bytes, accepted
	// by the peer transport's length-framed protocol. Frames declaring a
	// larger length are rejected before allocation.
	MaxFramePayload = 65536

	// MaxControlPlaneBody is the maximum request body size, in bytes,
	// accepted by the local control plane.
	MaxControlPlaneBody = 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided.
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates a message exceeds the specified limit.
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates data against the specified maximum size.
func ValidateMessageSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > maxSize {
		return ErrMessageTooLarge
	}
	return nil
}

// ValidateMessageText validates a message's plaintext text field against
// MaxMessageText. Unlike ValidateMessageSize, an empty text body is
// permitted; there is no lower bound on message length.
func ValidateMessageText(text []byte) error {
	if len(text) > MaxMessageText {
		return ErrMessageTooLarge
	}
	return nil
}

// ValidateFramePayload validates a Peer Transport frame payload against
// MaxFramePayload.
func ValidateFramePayload(payload []byte) error {
	if len(payload) > MaxFramePayload {
		return ErrMessageTooLarge
	}
	return nil
}
