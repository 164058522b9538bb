package store

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/friend"
	"github.com/opd-ai/peernode/messaging"
)

// Store is the authoritative local persistence layer for friends,
// messages and the seen-id dedup table. A single mutex serializes every
// mutating operation; reads also take the lock since they walk the same
// in-memory maps.
type Store struct {
	mu   sync.Mutex
	path string

	friends  map[string]*friend.Friend
	messages []*messaging.Message
	msgIndex map[string]int
	seen     map[string]time.Time
}

// Open loads path if it exists, or starts an empty store that persists to
// path on first mutation. Unlike identity loading, a missing store file
// is not an error; a brand new node has no friends or messages yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		friends:  make(map[string]*friend.Friend),
		msgIndex: make(map[string]int),
		seen:     make(map[string]time.Time),
	}

	ff, err := loadFile(path)
	if os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"function": "Open",
			"path":     path,
		}).Info("no existing store file, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	for _, fr := range ff.Friends {
		f, err := recordToFriend(fr)
		if err != nil {
			return nil, err
		}
		s.friends[f.Username] = f
	}
	for _, mr := range ff.Messages {
		m := recordToMessage(mr)
		s.msgIndex[m.MsgID] = len(s.messages)
		s.messages = append(s.messages, m)
	}
	for _, sr := range ff.SeenIDs {
		s.seen[sr.MsgID] = sr.ReceivedAt
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"path":     path,
		"friends":  len(s.friends),
		"messages": len(s.messages),
	}).Info("loaded store file")

	return s, nil
}

// flush persists the full in-memory state to disk. Callers must hold mu.
func (s *Store) flush() error {
	ff := &fileFormat{}
	for _, f := range s.friends {
		ff.Friends = append(ff.Friends, friendToRecord(f))
	}
	for _, m := range s.messages {
		ff.Messages = append(ff.Messages, messageToRecord(m))
	}
	for msgID, at := range s.seen {
		ff.SeenIDs = append(ff.SeenIDs, seenRecord{MsgID: msgID, ReceivedAt: at})
	}
	return saveFile(s.path, ff)
}

// Flush persists the current in-memory state to disk, for use at
// shutdown after the last mutation of a session.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// AddFriend pins a new friend's keys. Returns ErrAlreadyExists if the
// username is already present; the existing pinned keys are never
// touched.
func (s *Store) AddFriend(username string, encPK, signPK [32]byte, lastIP string, lastSeen time.Time) (*friend.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.friends[username]; exists {
		return nil, ErrAlreadyExists
	}

	f := friend.New(username, encPK, signPK)
	if !lastSeen.IsZero() {
		f.UpdatePresence(lastIP, lastSeen)
	}
	s.friends[username] = f

	if err := s.flush(); err != nil {
		return nil, err
	}
	return f, nil
}

// LookupFriend returns the friend record for username, or ErrNotFound.
func (s *Store) LookupFriend(username string) (*friend.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friends[username]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

// ListFriends returns every friend record, in no particular order.
func (s *Store) ListFriends() []*friend.Friend {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*friend.Friend, 0, len(s.friends))
	for _, f := range s.friends {
		out = append(out, f)
	}
	return out
}

// UpdatePresence refreshes last_ip/last_seen for an existing friend.
// Never touches pinned keys.
func (s *Store) UpdatePresence(username, lastIP string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friends[username]
	if !ok {
		return ErrNotFound
	}
	f.UpdatePresence(lastIP, lastSeen)

	return s.flush()
}

// RemoveFriend deletes a friend record. Messages with that peer are
// retained.
func (s *Store) RemoveFriend(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.friends[username]; !ok {
		return ErrNotFound
	}
	delete(s.friends, username)

	return s.flush()
}

// RepinFriend performs the explicit, user-confirmed key re-pin: it
// replaces a friend's pinned keys and returns it to pinned-current.
func (s *Store) RepinFriend(username string, encPK, signPK [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friends[username]
	if !ok {
		return ErrNotFound
	}
	f.Repin(encPK, signPK)

	return s.flush()
}

// DetectFriendKeyChange compares a freshly observed key pair against a
// friend's pinned keys and transitions it to Key-changed if they differ,
// returning whether a change was detected.
func (s *Store) DetectFriendKeyChange(username string, observedEncPK, observedSignPK [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friends[username]
	if !ok {
		return false, ErrNotFound
	}
	changed := f.DetectKeyChange(observedEncPK, observedSignPK)
	if err := s.flush(); err != nil {
		return changed, err
	}
	return changed, nil
}

// MarkFriendStalePresence transitions a friend with fresher directory
// presence than local state from Pinned-current to Pinned-stale-presence.
func (s *Store) MarkFriendStalePresence(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friends[username]
	if !ok {
		return ErrNotFound
	}
	f.MarkStalePresence()
	return s.flush()
}

// RecordMessage inserts a message, insert-or-ignore by MsgID. Returns
// ErrDuplicate if MsgID is already present, regardless of direction.
func (s *Store) RecordMessage(m *messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.msgIndex[m.MsgID]; exists {
		return ErrDuplicate
	}

	s.msgIndex[m.MsgID] = len(s.messages)
	s.messages = append(s.messages, m)

	return s.flush()
}

// MarkDelivered transitions a recorded message's Delivered field to true.
func (s *Store) MarkDelivered(msgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.msgIndex[msgID]
	if !ok {
		return ErrNotFound
	}
	s.messages[idx].Delivered = true

	return s.flush()
}

// UpdateDeliveryOutcome sets both Delivered and DeliveryMethod on a
// recorded message, for use by the scheduler's pending-retry task once a
// held offline_pending message is either relayed or handed directly to
// its recipient.
func (s *Store) UpdateDeliveryOutcome(msgID string, delivered bool, method messaging.DeliveryMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.msgIndex[msgID]
	if !ok {
		return ErrNotFound
	}
	s.messages[idx].Delivered = delivered
	s.messages[idx].DeliveryMethod = method

	return s.flush()
}

// ListPending returns every sent message still in the offline_pending
// state, for the scheduler's pending-retry task.
func (s *Store) ListPending() []*messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*messaging.Message
	for _, m := range s.messages {
		if m.Direction == messaging.DirectionSent && m.DeliveryMethod == messaging.DeliveryOfflinePending {
			out = append(out, m)
		}
	}
	return out
}

// DeleteMessage removes a single recorded message by msg_id.
func (s *Store) DeleteMessage(msgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.msgIndex[msgID]
	if !ok {
		return ErrNotFound
	}

	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	delete(s.msgIndex, msgID)
	for id, i := range s.msgIndex {
		if i > idx {
			s.msgIndex[id] = i - 1
		}
	}

	return s.flush()
}

// ListMessages returns messages exchanged with peer, chronological
// oldest-first, paginated by offset/limit. total is the absolute count
// for that peer; hasMore reports whether offset+limit stops short of it.
func (s *Store) ListMessages(peer string, offset, limit int) (msgs []*messaging.Message, total int, hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*messaging.Message
	for _, m := range s.messages {
		if m.Peer == peer {
			all = append(all, m)
		}
	}
	total = len(all)

	if offset >= total {
		return nil, total, false
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	return all[offset:end], total, end < total
}

// HasSeen reports whether msgID has already been accepted on the receive
// path.
func (s *Store) HasSeen(msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[msgID]
	return ok
}

// MarkSeen records msgID as accepted at receivedAt. Callers that need the
// dedup check and the mark to be atomic together should use
// CheckAndMarkSeen instead.
func (s *Store) MarkSeen(msgID string, receivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[msgID] = receivedAt
	return s.flush()
}

// CheckAndMarkSeen performs the dedup check and the mark atomically; the
// two must never interleave across goroutines. It returns true if msgID
// was already seen (the caller should drop the message), and marks it
// seen otherwise.
func (s *Store) CheckAndMarkSeen(msgID string, receivedAt time.Time) (alreadySeen bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[msgID]; ok {
		return true, nil
	}
	s.seen[msgID] = receivedAt

	if err := s.flush(); err != nil {
		return false, err
	}
	return false, nil
}

// GCSeenIDs prunes seen-id entries older than maxAge relative to now,
// returning the number pruned. Intended for the scheduler's hourly
// seen-id GC task.
func (s *Store) GCSeenIDs(now time.Time, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for msgID, at := range s.seen {
		if now.Sub(at) > maxAge {
			delete(s.seen, msgID)
			pruned++
		}
	}

	if pruned == 0 {
		return 0, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "GCSeenIDs",
		"pruned":   pruned,
	}).Debug("pruned seen-id records")

	return pruned, s.flush()
}
