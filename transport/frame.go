package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/opd-ai/peernode/limits"
)

// ErrFramingError indicates a declared frame length exceeded the maximum
// payload size, or the connection closed mid-frame.
var ErrFramingError = errors.New("framing error")

const headerSize = 4

// writeFrame writes a 4-byte big-endian length header followed by
// payload, as a single buffered write so the header and body land on the
// wire contiguously.
func writeFrame(conn net.Conn, payload []byte) error {
	if err := limits.ValidateFramePayload(payload); err != nil {
		return errors.Join(ErrFramingError, err)
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)

	_, err := conn.Write(buf)
	return err
}

// readFrame reads one length-framed payload from conn, looping on short
// reads via io.ReadFull. A declared length over MaxFramePayload is
// rejected before any allocation for the body.
func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, errors.Join(ErrFramingError, err)
	}

	length := binary.BigEndian.Uint32(header)
	if length > limits.MaxFramePayload {
		return nil, errors.Join(ErrFramingError, errors.New("declared frame length exceeds maximum"))
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, errors.Join(ErrFramingError, err)
	}

	return payload, nil
}

// DialTimeout and WriteTimeout bound every outbound peer transport
// operation.
const (
	DialTimeout  = 5 * time.Second
	WriteTimeout = 5 * time.Second
)
