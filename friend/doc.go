// Package friend implements the Friend entity and its key-pinning state
// machine.
//
// # Overview
//
// A Friend is created once via New, which pins the peer's encryption and
// signing public keys for the lifetime of the relationship. Presence
// fields (last_ip, last_seen) are refreshed independently of the keys:
//
//	f := friend.New("bob", encPK, signPK)
//	f.UpdatePresence("203.0.113.5", time.Now())
//
// # Key pinning
//
// DetectKeyChange compares an observed key pair (typically read back from
// the directory during a presence refresh) against the pinned keys. A
// mismatch moves the friend into StatusKeyChanged and suspends outbound
// delivery until an explicit Repin:
//
//	if f.DetectKeyChange(observedEncPK, observedSignPK) {
//	    // surface friend_key_conflict; reject sends until re-pinned
//	}
//	// ... later, after the user confirms the new keys:
//	f.Repin(observedEncPK, observedSignPK)
//
// # Deterministic testing
//
// NewWithTimeProvider accepts a crypto.TimeProvider so AddedAt can be
// pinned to a fixed instant in tests.
package friend
