// Package friend implements the friend entity and its key-pinning state
// machine for the peer node core.
//
// A Friend is keyed by username and pins the peer's encryption and signing
// public keys at creation. Presence fields (last_ip, last_seen) are
// refreshed freely from the directory; the pinned keys are never silently
// overwritten; a directory record with changed keys moves the friend into
// the Key-changed state instead.
//
// Example:
//
//	f := friend.New("bob", encPK, signPK)
//	f.UpdatePresence("203.0.113.5", time.Now())
//	if f.DetectKeyChange(newEncPK, newSignPK) {
//	    // surface a friend_key_conflict event; sends to f are rejected
//	    // until an explicit Repin.
//	}
package friend

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
)

// KeyStatus is a friend's position in the key-pinning state machine.
type KeyStatus uint8

const (
	// StatusPinnedCurrent is the initial and post-resolution terminal
	// state: the directory's published keys equal the pinned keys.
	StatusPinnedCurrent KeyStatus = iota
	// StatusPinnedStalePresence means the keys still match but the
	// directory has newer presence data than what's stored locally.
	StatusPinnedStalePresence
	// StatusKeyChanged means the directory's keys differ from the
	// pinned keys. Outbound delivery is suspended until an explicit
	// re-pin.
	StatusKeyChanged
)

func (s KeyStatus) String() string {
	switch s {
	case StatusPinnedCurrent:
		return "pinned-current"
	case StatusPinnedStalePresence:
		return "pinned-stale-presence"
	case StatusKeyChanged:
		return "key-changed"
	default:
		return "unknown"
	}
}

// Friend represents a pinned peer relationship.
type Friend struct {
	Username        string
	EncPublicKey    [32]byte
	SignPublicKey   [32]byte
	LastIP          string
	LastSeen        time.Time
	AddedAt         time.Time
	KeyStatus       KeyStatus
	hasLastSeen     bool
	timeProvider    crypto.TimeProvider
}

// New creates a Friend with its keys pinned at the current time.
func New(username string, encPK, signPK [32]byte) *Friend {
	return NewWithTimeProvider(username, encPK, signPK, crypto.GetDefaultTimeProvider())
}

// NewWithTimeProvider creates a Friend using a custom time provider, for
// deterministic tests.
func NewWithTimeProvider(username string, encPK, signPK [32]byte, tp crypto.TimeProvider) *Friend {
	if tp == nil {
		tp = crypto.GetDefaultTimeProvider()
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"username": username,
	}).Info("pinning new friend")

	return &Friend{
		Username:      username,
		EncPublicKey:  encPK,
		SignPublicKey: signPK,
		AddedAt:       tp.Now(),
		KeyStatus:     StatusPinnedCurrent,
		timeProvider:  tp,
	}
}

// Restore reconstructs a Friend from persisted fields, for store loading.
// Unlike New, it does not re-pin anything: keyStatus, addedAt and presence
// are taken verbatim from the record.
func Restore(username string, encPK, signPK [32]byte, lastIP string, lastSeen time.Time, hasLastSeen bool, addedAt time.Time, keyStatus KeyStatus) *Friend {
	return &Friend{
		Username:      username,
		EncPublicKey:  encPK,
		SignPublicKey: signPK,
		LastIP:        lastIP,
		LastSeen:      lastSeen,
		hasLastSeen:   hasLastSeen,
		AddedAt:       addedAt,
		KeyStatus:     keyStatus,
		timeProvider:  crypto.GetDefaultTimeProvider(),
	}
}

// UpdatePresence refreshes last_ip and last_seen. It never touches the
// pinned keys.
func (f *Friend) UpdatePresence(lastIP string, lastSeen time.Time) {
	logrus.WithFields(logrus.Fields{
		"function": "UpdatePresence",
		"username": f.Username,
		"last_ip":  lastIP,
	}).Debug("refreshing friend presence")

	f.LastIP = lastIP
	f.LastSeen = lastSeen
	f.hasLastSeen = true

	if f.KeyStatus == StatusPinnedStalePresence {
		f.KeyStatus = StatusPinnedCurrent
	}
}

// HasLastSeen reports whether presence has ever been recorded for this
// friend.
func (f *Friend) HasLastSeen() bool {
	return f.hasLastSeen
}

// IsOnline reports whether the friend's last known presence is within
// onlineWindow of now.
func (f *Friend) IsOnline(now time.Time, onlineWindow time.Duration) bool {
	if !f.hasLastSeen {
		return false
	}
	return now.Sub(f.LastSeen) <= onlineWindow
}

// DetectKeyChange compares a freshly observed key pair (typically from a
// directory lookup) against the pinned keys. If either key differs, the
// friend transitions to StatusKeyChanged and the method returns true; the
// pinned keys are left untouched: keys are never silently overwritten.
func (f *Friend) DetectKeyChange(observedEncPK, observedSignPK [32]byte) bool {
	if observedEncPK == f.EncPublicKey && observedSignPK == f.SignPublicKey {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"function": "DetectKeyChange",
		"username": f.Username,
	}).Warn("directory keys differ from pinned keys")

	f.KeyStatus = StatusKeyChanged
	return true
}

// MarkStalePresence transitions a Pinned-current friend to
// Pinned-stale-presence when the directory has newer presence data than
// what's stored locally and the keys still match. No-op outside that
// state.
func (f *Friend) MarkStalePresence() {
	if f.KeyStatus == StatusPinnedCurrent {
		f.KeyStatus = StatusPinnedStalePresence
	}
}

// Repin is the explicit, user-confirmed acceptance of a key change. It
// replaces the pinned keys and returns the friend to StatusPinnedCurrent.
func (f *Friend) Repin(newEncPK, newSignPK [32]byte) {
	logrus.WithFields(logrus.Fields{
		"function": "Repin",
		"username": f.Username,
	}).Info("friend keys re-pinned")

	f.EncPublicKey = newEncPK
	f.SignPublicKey = newSignPK
	f.KeyStatus = StatusPinnedCurrent
}

// CanSendTo reports whether outbound delivery to this friend is currently
// permitted. Delivery is suspended while the friend is in the Key-changed
// state.
func (f *Friend) CanSendTo() bool {
	return f.KeyStatus != StatusKeyChanged
}
