// Package delivery implements the node's send and receive paths:
// encrypt-sign-try-direct-fallback-relay-persist on the way out, and
// verify-decrypt-dedup-persist-notify on the way in, plus the startup and
// periodic offline drain that feeds received envelopes from the relay
// through the same receive path.
//
// The pipeline composes the crypto, friend, messaging, store, transport
// and directory packages without owning any of their state itself; it is
// the one place all of those components meet.
package delivery
