package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ErrIdentityCorrupt indicates the identity file exists but could not be
// parsed as a valid identity, a sign of a crash mid-write. The node must
// fail startup rather than silently regenerate a new identity, which would
// orphan every pinned friend relationship tied to the old keys.
var ErrIdentityCorrupt = errors.New("identity file is corrupt")

// Identity is a node's cryptographic identity: a stable node ID plus an
// encryption key pair and a signing key pair. Exactly one exists per node.
type Identity struct {
	Username    string
	NodeID      string
	EncKeyPair  *KeyPair
	SignKeyPair *SigningKeyPair
}

// identityFile is the on-disk encoding: four base64 key fields plus the
// identity metadata, matching the "encoded keys file" described for peer
// node persistence.
type identityFile struct {
	Username          string `json:"username"`
	NodeID            string `json:"node_id"`
	EncryptionPublic  string `json:"encryption_public_key"`
	EncryptionSecret  string `json:"encryption_secret_key"`
	SigningPublic     string `json:"signing_public_key"`
	SigningSecret     string `json:"signing_secret_key"`
}

// LoadOrCreateIdentity loads the identity at path, or generates and persists
// a new one if the file does not exist. A file that exists but fails to
// parse returns ErrIdentityCorrupt rather than regenerating; the operation
// is atomic in the sense that a half-written file is never mistaken for a
// fresh start.
func LoadOrCreateIdentity(path, username string) (*Identity, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "LoadOrCreateIdentity",
		"component": "crypto",
		"path":      path,
	})

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		logger.Debug("loading existing identity file")
		id, parseErr := parseIdentityFile(data)
		if parseErr != nil {
			logger.WithFields(logrus.Fields{"error": parseErr.Error()}).Error("identity file failed to parse")
			return nil, fmt.Errorf("%w: %v", ErrIdentityCorrupt, parseErr)
		}
		return id, nil
	case os.IsNotExist(err):
		logger.Info("no identity file found, generating new identity")
		return createIdentity(path, username)
	default:
		return nil, fmt.Errorf("read identity file: %w", err)
	}
}

func createIdentity(path, username string) (*Identity, error) {
	encKP, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	signKP, err := GenerateSigningKeyPair()
	if err != nil {
		return nil, err
	}

	nodeID, err := generateNodeID()
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Username:    username,
		NodeID:      nodeID,
		EncKeyPair:  encKP,
		SignKeyPair: signKP,
	}

	if err := saveIdentity(path, id); err != nil {
		return nil, err
	}

	return id, nil
}

// generateNodeID produces a stable random identifier independent of key
// rotation: 16 random bytes, hex-encoded.
func generateNodeID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate node id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func saveIdentity(path string, id *Identity) error {
	file := identityFile{
		Username:         id.Username,
		NodeID:           id.NodeID,
		EncryptionPublic: EncodeB64(id.EncKeyPair.Public[:]),
		EncryptionSecret: EncodeB64(id.EncKeyPair.Private[:]),
		SigningPublic:    EncodeB64(id.SignKeyPair.Public[:]),
		SigningSecret:    EncodeB64(id.SignKeyPair.Private[:]),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	return atomicWriteFile(path, data, 0o600)
}

// atomicWriteFile writes data to a temp file in the same directory as path
// and renames it into place (write-then-rename), so a crash never leaves a
// half-written identity file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create identity directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp identity file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename identity file: %w", err)
	}
	return nil
}

func parseIdentityFile(data []byte) (*Identity, error) {
	var file identityFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	encPub, err := decodeFixed32(file.EncryptionPublic)
	if err != nil {
		return nil, fmt.Errorf("encryption public key: %w", err)
	}
	encSec, err := decodeFixed32(file.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("encryption secret key: %w", err)
	}
	signPub, err := DecodeB64(file.SigningPublic)
	if err != nil || len(signPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("signing public key: invalid encoding")
	}
	signSec, err := DecodeB64(file.SigningSecret)
	if err != nil || len(signSec) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing secret key: invalid encoding")
	}

	id := &Identity{
		Username:    file.Username,
		NodeID:      file.NodeID,
		EncKeyPair:  &KeyPair{},
		SignKeyPair: &SigningKeyPair{},
	}
	copy(id.EncKeyPair.Public[:], encPub)
	copy(id.EncKeyPair.Private[:], encSec)
	copy(id.SignKeyPair.Public[:], signPub)
	copy(id.SignKeyPair.Private[:], signSec)

	return id, nil
}

func decodeFixed32(s string) ([]byte, error) {
	b, err := DecodeB64(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return b, nil
}

// Wipe zeroes both secret key buffers. Call on shutdown.
func (id *Identity) Wipe() {
	if id.EncKeyPair != nil {
		ZeroBytes(id.EncKeyPair.Private[:])
	}
	if id.SignKeyPair != nil {
		ZeroBytes(id.SignKeyPair.Private[:])
	}
}
