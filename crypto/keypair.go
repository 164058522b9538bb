package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair is a NaCl box (Curve25519) key pair used for authenticated
// public-key encryption between peers.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random encryption key pair.
func GenerateKeyPair() (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "GenerateKeyPair",
		"component": "crypto",
	})
	logger.Debug("generating encryption key pair")

	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("failed to generate encryption key pair")
		return nil, fmt.Errorf("generate encryption key pair: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"public_key_preview": fmt.Sprintf("%x", publicKey[:8]),
	}).Info("encryption key pair generated")

	return &KeyPair{Public: *publicKey, Private: *privateKey}, nil
}

// SigningKeyPair is an Ed25519 key pair used for detached signatures.
type SigningKeyPair struct {
	Public  [ed25519.PublicKeySize]byte
	Private [ed25519.PrivateKeySize]byte
}

// GenerateSigningKeyPair creates a new random signing key pair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "GenerateSigningKeyPair",
		"component": "crypto",
	})
	logger.Debug("generating signing key pair")

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("failed to generate signing key pair")
		return nil, fmt.Errorf("generate signing key pair: %w", err)
	}

	kp := &SigningKeyPair{}
	copy(kp.Public[:], public)
	copy(kp.Private[:], private)

	logger.WithFields(logrus.Fields{
		"public_key_preview": fmt.Sprintf("%x", kp.Public[:8]),
	}).Info("signing key pair generated")

	return kp, nil
}
