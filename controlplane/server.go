package controlplane

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/delivery"
	"github.com/opd-ai/peernode/directory"
	"github.com/opd-ai/peernode/limits"
	"github.com/opd-ai/peernode/store"
)

// Version is reported verbatim in GET /status.
const Version = "0.1.0"

// DirectoryLookup is the subset of directory.Client the control plane
// depends on, to keep handler tests free of real HTTP calls.
type DirectoryLookup interface {
	Lookup(ctx context.Context, username string) (*directory.Record, error)
}

// Server is the Local Control Plane: a thin translation layer between the
// HTTP wire format and the Delivery Pipeline / Identity & Friend Store.
type Server struct {
	identity  *crypto.Identity
	store     *store.Store
	pipeline  *delivery.Pipeline
	directory DirectoryLookup
	peerPort  int
	startedAt time.Time
	time      crypto.TimeProvider

	directoryConnected atomic.Bool
}

// NewServer builds a control plane bound to one node's identity, store,
// delivery pipeline, and directory client.
func NewServer(identity *crypto.Identity, st *store.Store, pipeline *delivery.Pipeline, dc DirectoryLookup, peerPort int) *Server {
	tp := crypto.GetDefaultTimeProvider()
	return &Server{
		identity:  identity,
		store:     st,
		pipeline:  pipeline,
		directory: dc,
		peerPort:  peerPort,
		startedAt: tp.Now(),
		time:      tp,
	}
}

// WithTimeProvider overrides the server's clock, for deterministic
// tests. startedAt is re-read from the new clock so uptime_seconds stays
// coherent with it.
func (s *Server) WithTimeProvider(tp crypto.TimeProvider) *Server {
	if tp != nil {
		s.time = tp
		s.startedAt = tp.Now()
	}
	return s
}

// SetDirectoryConnected records whether the most recent directory
// registration or heartbeat succeeded, surfaced at GET /status.
func (s *Server) SetDirectoryConnected(ok bool) {
	s.directoryConnected.Store(ok)
}

// Router builds the mux.Router exposing the control-plane API surface.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(s.bodyLimitMiddleware)

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/friends", s.handleListFriends).Methods(http.MethodGet)
	r.HandleFunc("/friends", s.handleAddFriend).Methods(http.MethodPost)
	r.HandleFunc("/friends/{username}", s.handleRemoveFriend).Methods(http.MethodDelete)
	r.HandleFunc("/friends/{username}/repin", s.handleRepinFriend).Methods(http.MethodPost)
	r.HandleFunc("/messages", s.handleListMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{msg_id}", s.handleDeleteMessage).Methods(http.MethodDelete)

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"function": "loggingMiddleware",
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("control plane request handled")
	})
}

// bodyLimitMiddleware enforces the 1 MiB request body cap on every
// request before a handler ever reads it.
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limits.MaxControlPlaneBody)
		next.ServeHTTP(w, r)
	})
}
