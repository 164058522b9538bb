package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler is invoked once per accepted connection with the raw envelope
// payload and the remote address it arrived from.
type Handler func(payload []byte, remoteAddr string)

// Server accepts inbound peer connections on a fixed port. Each accepted
// connection yields at most one envelope before the server closes it.
type Server struct {
	listener net.Listener
	handler  Handler

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Listen starts accepting TCP connections on port, dispatching each
// accepted connection's single envelope to handler. It returns once the
// listener is bound; accepting happens in a background goroutine.
func Listen(port int, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Listen",
		"port":     port,
	}).Info("peer transport listening")

	s := &Server{
		listener: ln,
		handler:  handler,
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptLoop",
				"error":    err.Error(),
			}).Warn("accept failed")
			continue
		}

		s.wg.Add(1)
		go s.handleOne(conn)
	}
}

func (s *Server) handleOne(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()

	payload, err := readFrame(conn)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "handleOne",
			"remote_addr": remoteAddr,
			"error":       err.Error(),
		}).Warn("dropping malformed frame")
		return
	}

	s.handler(payload, remoteAddr)
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new connections and waits for in-flight handlers
// to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	return err
}
