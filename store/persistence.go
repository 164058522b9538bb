package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/friend"
	"github.com/opd-ai/peernode/messaging"
)

// fileFormat is the on-disk shape of the local-store file: one JSON
// document holding the friend, message and seen-id entities.
type fileFormat struct {
	Friends  []friendRecord  `json:"friends"`
	Messages []messageRecord `json:"messages"`
	SeenIDs  []seenRecord    `json:"seen_ids"`
}

type friendRecord struct {
	Username      string    `json:"username"`
	EncPublicKey  string    `json:"encryption_public_key"`
	SignPublicKey string    `json:"signing_public_key"`
	LastIP        string    `json:"last_ip"`
	LastSeen      time.Time `json:"last_seen"`
	HasLastSeen   bool      `json:"has_last_seen"`
	AddedAt       time.Time `json:"added_at"`
	KeyStatus     uint8     `json:"key_status"`
}

type messageRecord struct {
	MsgID          string    `json:"msg_id"`
	Peer           string    `json:"peer"`
	Direction      uint8     `json:"direction"`
	Plaintext      string    `json:"plaintext"`
	Timestamp      time.Time `json:"timestamp"`
	Delivered      bool      `json:"delivered"`
	DeliveryMethod uint8     `json:"delivery_method"`
}

type seenRecord struct {
	MsgID      string    `json:"msg_id"`
	ReceivedAt time.Time `json:"received_at"`
}

func friendToRecord(f *friend.Friend) friendRecord {
	return friendRecord{
		Username:      f.Username,
		EncPublicKey:  crypto.EncodeB64(f.EncPublicKey[:]),
		SignPublicKey: crypto.EncodeB64(f.SignPublicKey[:]),
		LastIP:        f.LastIP,
		LastSeen:      f.LastSeen,
		HasLastSeen:   f.HasLastSeen(),
		AddedAt:       f.AddedAt,
		KeyStatus:     uint8(f.KeyStatus),
	}
}

func recordToFriend(r friendRecord) (*friend.Friend, error) {
	encPK, err := decodeFixed32(r.EncPublicKey)
	if err != nil {
		return nil, fmt.Errorf("friend %q: encryption key: %w", r.Username, err)
	}
	signPK, err := decodeFixed32(r.SignPublicKey)
	if err != nil {
		return nil, fmt.Errorf("friend %q: signing key: %w", r.Username, err)
	}

	var enc, sign [32]byte
	copy(enc[:], encPK)
	copy(sign[:], signPK)

	return friend.Restore(r.Username, enc, sign, r.LastIP, r.LastSeen, r.HasLastSeen, r.AddedAt, friend.KeyStatus(r.KeyStatus)), nil
}

func decodeFixed32(s string) ([]byte, error) {
	b, err := crypto.DecodeB64(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return b, nil
}

func messageToRecord(m *messaging.Message) messageRecord {
	return messageRecord{
		MsgID:          m.MsgID,
		Peer:           m.Peer,
		Direction:      uint8(m.Direction),
		Plaintext:      m.Plaintext,
		Timestamp:      m.Timestamp,
		Delivered:      m.Delivered,
		DeliveryMethod: uint8(m.DeliveryMethod),
	}
}

func recordToMessage(r messageRecord) *messaging.Message {
	return &messaging.Message{
		MsgID:          r.MsgID,
		Peer:           r.Peer,
		Direction:      messaging.Direction(r.Direction),
		Plaintext:      r.Plaintext,
		Timestamp:      r.Timestamp,
		Delivered:      r.Delivered,
		DeliveryMethod: messaging.DeliveryMethod(r.DeliveryMethod),
	}
}

// atomicWriteFile writes data to path via a temp file plus rename, so a
// crash mid-write never leaves a partially-written store file behind.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp store file: %w", err)
	}
	return nil
}

func loadFile(path string) (*fileFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse store file: %w", err)
	}
	return &ff, nil
}

func saveFile(path string, ff *fileFormat) error {
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store file: %w", err)
	}
	return atomicWriteFile(path, data, 0o600)
}
