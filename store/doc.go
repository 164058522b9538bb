// Package store implements the local relational store: pinned friends,
// chat message history, and the seen-id dedup table. It is the single
// writer over one JSON file on disk, serialized through an internal mutex
// so mutating operations never interleave.
//
// Node identity (the keys file) is persisted separately by the crypto
// package; store only owns the three entities added after identity
// creation.
//
//	s, err := store.Open("./store.json")
//	f, err := s.AddFriend("bob", encPK, signPK, "", time.Time{})
//	err = s.RecordMessage(messaging.NewSent("bob", "hi", time.Now()))
package store
