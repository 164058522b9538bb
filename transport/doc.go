// Package transport implements the peer-to-peer wire protocol: a plain
// TCP listener and dialer exchanging one length-framed JSON envelope per
// connection.
//
// Each frame is a 4-byte big-endian length header followed by exactly
// that many bytes of UTF-8 JSON. The protocol is one-shot: the dialer
// writes exactly one envelope and the listener reads it, with no reply,
// before the connection closes.
//
//	srv, err := transport.Listen(9100, func(raw []byte, remoteAddr string) {
//	    // handle one envelope's raw bytes
//	})
//	defer srv.Close()
//
//	result, err := transport.Send(ctx, "203.0.113.5", 9100, envelopeBytes)
package transport
