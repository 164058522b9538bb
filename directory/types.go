package directory

import "time"

// Record is a `users` collection row: a node's published identity and
// presence, as the directory sees it. Both public keys are published so a
// looking-up node can pin (or detect a change in) the full key pair a
// Friend carries, not just the encryption half.
type Record struct {
	Username            string    `json:"username"`
	NodeID              string    `json:"node_id"`
	EncryptionPublicKey string    `json:"encryption_public_key"`
	SigningPublicKey    string    `json:"signing_public_key"`
	LastIP              string    `json:"last_ip"`
	LastSeen            time.Time `json:"last_seen"`
}

// OfflineMessage is an `offline_messages` collection row: a relayed
// envelope awaiting pickup.
type OfflineMessage struct {
	ID         string    `json:"id"`
	ToUser     string    `json:"to_user"`
	FromUser   string    `json:"from_user"`
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}
