package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/directory"
	"github.com/opd-ai/peernode/eventbus"
	"github.com/opd-ai/peernode/store"
)

// errMalformedKey is returned by decodeRecordKeys when a directory record
// carries a key that doesn't decode to 32 raw bytes.
var errMalformedKey = errors.New("scheduler: malformed key in directory record")

// DirectoryClient is the subset of directory.Client the scheduler drives.
type DirectoryClient interface {
	Heartbeat(ctx context.Context, username, currentIP string) error
	Lookup(ctx context.Context, username string) (*directory.Record, error)
}

// Pipeline is the subset of delivery.Pipeline the scheduler drives.
type Pipeline interface {
	DrainOffline(ctx context.Context) error
	RetryPending(ctx context.Context)
}

// Notifier publishes a presence or key-conflict event to the Event Bus.
type Notifier interface {
	Notify(name eventbus.Name, data any)
}

// ConnectionObserver is told whether each heartbeat succeeds or fails,
// so the control plane's GET /status can surface directory_connected.
type ConnectionObserver interface {
	SetDirectoryConnected(ok bool)
}

// FriendOnlinePayload is the data field of a friend_online/friend_offline
// event.
type FriendOnlinePayload struct {
	Username string `json:"username"`
}

// FriendKeyConflictPayload is the data field of a friend_key_conflict
// event.
type FriendKeyConflictPayload struct {
	Username string `json:"username"`
}

// Scheduler owns the node's periodic tasks and their shared lifecycle,
// mirroring dht.Maintainer's shape: one ticker goroutine per concern, all
// cancelled together by a shared context and joined on Stop.
type Scheduler struct {
	identity  *crypto.Identity
	store     *store.Store
	directory DirectoryClient
	pipeline  Pipeline
	notifier  Notifier
	observer  ConnectionObserver
	selfAddr  string
	intervals Intervals
	time      crypto.TimeProvider

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	onlineSince map[string]bool
}

// New builds a Scheduler. selfAddr is this node's own advertised
// host[:port], published to the directory via Heartbeat.
func New(identity *crypto.Identity, st *store.Store, dc DirectoryClient, pipeline Pipeline, notifier Notifier, observer ConnectionObserver, selfAddr string) *Scheduler {
	return &Scheduler{
		identity:    identity,
		store:       st,
		directory:   dc,
		pipeline:    pipeline,
		notifier:    notifier,
		observer:    observer,
		selfAddr:    selfAddr,
		intervals:   DefaultIntervals(),
		time:        crypto.GetDefaultTimeProvider(),
		onlineSince: make(map[string]bool),
	}
}

// WithIntervals overrides the default periods, for tests that don't want
// to wait on real tickers.
func (s *Scheduler) WithIntervals(iv Intervals) *Scheduler {
	s.intervals = iv
	return s
}

// WithTimeProvider overrides the clock used for online/offline edge
// detection.
func (s *Scheduler) WithTimeProvider(tp crypto.TimeProvider) *Scheduler {
	s.time = tp
	return s
}

// Start launches every periodic task as its own goroutine and runs one
// immediate offline drain so messages queued while the node was down are
// picked up right after registration.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.isRunning = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(5)
	go s.heartbeatRoutine()
	go s.presenceRefreshRoutine()
	go s.offlineDrainRoutine()
	go s.pendingRetryRoutine()
	go s.seenIDGCRoutine()

	go func() {
		if err := s.pipeline.DrainOffline(s.ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Start",
				"error":    err.Error(),
			}).Warn("initial offline drain failed")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
	}).Info("scheduler started")
}

// Stop cancels every task and waits up to GracePeriod for them to exit,
// then flushes the store and wipes the identity's secret key material.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(GracePeriod):
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
		}).Warn("grace period elapsed before all scheduler tasks exited")
	}

	if err := s.store.Flush(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
			"error":    err.Error(),
		}).Warn("final store flush failed")
	}
	s.identity.Wipe()

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
	}).Info("scheduler stopped")
}

func (s *Scheduler) heartbeatRoutine() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.intervals.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runHeartbeat()
		}
	}
}

func (s *Scheduler) runHeartbeat() {
	ctx, cancel := context.WithTimeout(s.ctx, directory.RequestTimeout)
	defer cancel()

	err := s.directory.Heartbeat(ctx, s.identity.Username, s.selfAddr)
	if s.observer != nil {
		s.observer.SetDirectoryConnected(err == nil)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runHeartbeat",
			"error":    err.Error(),
		}).Warn("heartbeat failed")
	}
}

func (s *Scheduler) presenceRefreshRoutine() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.intervals.PresenceRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runPresenceRefresh()
		}
	}
}

func (s *Scheduler) runPresenceRefresh() {
	now := s.time.Now()
	for _, f := range s.store.ListFriends() {
		ctx, cancel := context.WithTimeout(s.ctx, directory.RequestTimeout)
		rec, err := s.directory.Lookup(ctx, f.Username)
		cancel()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "runPresenceRefresh",
				"username": f.Username,
				"error":    err.Error(),
			}).Warn("directory lookup failed")
			continue
		}

		encPK, signPK, err := decodeRecordKeys(rec)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "runPresenceRefresh",
				"username": f.Username,
				"error":    err.Error(),
			}).Warn("directory returned malformed keys")
			continue
		}

		changed, err := s.store.DetectFriendKeyChange(f.Username, encPK, signPK)
		if err != nil {
			continue
		}
		if changed {
			s.notifier.Notify(eventbus.FriendKeyConflict, FriendKeyConflictPayload{Username: f.Username})
			continue
		}

		// Keys match but the directory has newer presence than local
		// state: pass through Pinned-stale-presence before the refresh
		// below transitions the friend back to Pinned-current.
		if !rec.LastSeen.IsZero() && (!f.HasLastSeen() || rec.LastSeen.After(f.LastSeen)) {
			if err := s.store.MarkFriendStalePresence(f.Username); err != nil {
				continue
			}
		}

		if err := s.store.UpdatePresence(f.Username, rec.LastIP, rec.LastSeen); err != nil {
			continue
		}

		wasOnline := s.onlineSince[f.Username]
		isOnline := now.Sub(rec.LastSeen) <= OnlineWindow
		if isOnline && !wasOnline {
			s.notifier.Notify(eventbus.FriendOnline, FriendOnlinePayload{Username: f.Username})
		} else if !isOnline && wasOnline {
			s.notifier.Notify(eventbus.FriendOffline, FriendOnlinePayload{Username: f.Username})
		}
		s.onlineSince[f.Username] = isOnline
	}
}

func decodeRecordKeys(rec *directory.Record) (encPK, signPK [32]byte, err error) {
	encBytes, err := crypto.DecodeB64(rec.EncryptionPublicKey)
	if err != nil || len(encBytes) != 32 {
		return encPK, signPK, errMalformedKey
	}
	signBytes, err := crypto.DecodeB64(rec.SigningPublicKey)
	if err != nil || len(signBytes) != 32 {
		return encPK, signPK, errMalformedKey
	}
	copy(encPK[:], encBytes)
	copy(signPK[:], signBytes)
	return encPK, signPK, nil
}

func (s *Scheduler) offlineDrainRoutine() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.intervals.OfflineDrain)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.pipeline.DrainOffline(s.ctx); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "offlineDrainRoutine",
					"error":    err.Error(),
				}).Warn("offline drain failed")
			}
		}
	}
}

func (s *Scheduler) pendingRetryRoutine() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.intervals.PendingRetry)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pipeline.RetryPending(s.ctx)
		}
	}
}

func (s *Scheduler) seenIDGCRoutine() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.intervals.SeenIDGC)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pruned, err := s.store.GCSeenIDs(s.time.Now(), SeenIDMaxAge)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "seenIDGCRoutine",
					"error":    err.Error(),
				}).Warn("seen-id gc failed")
				continue
			}
			logrus.WithFields(logrus.Fields{
				"function": "seenIDGCRoutine",
				"pruned":   pruned,
			}).Debug("seen-id gc completed")
		}
	}
}
