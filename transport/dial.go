package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// SendResult is the outcome of an outbound delivery attempt.
type SendResult uint8

const (
	Delivered SendResult = iota
	ConnectRefused
	Timeout
	FramingError
)

func (r SendResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case ConnectRefused:
		return "connect_refused"
	case Timeout:
		return "timeout"
	case FramingError:
		return "framing_error"
	default:
		return "unknown"
	}
}

// Send dials remoteIP:remotePort, writes a single framed envelope, and
// closes the connection. There are no retries at this layer; retries and
// fallback are the Delivery Pipeline's responsibility.
func Send(ctx context.Context, remoteIP string, remotePort int, envelope []byte) (SendResult, error) {
	addr := fmt.Sprintf("%s:%d", remoteIP, remotePort)

	dialer := net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"addr":     addr,
			"error":    err.Error(),
		}).Debug("direct delivery connect failed")

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Timeout, err
		}
		return ConnectRefused, err
	}
	defer conn.Close()

	deadline, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	if d, ok := deadline.Deadline(); ok {
		conn.SetWriteDeadline(d)
	}

	if err := writeFrame(conn, envelope); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Timeout, err
		}
		if errors.Is(err, ErrFramingError) {
			return FramingError, err
		}
		return ConnectRefused, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"addr":     addr,
	}).Debug("direct delivery succeeded")

	return Delivered, nil
}
