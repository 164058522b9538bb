package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/box"
)

// Nonce is the 24-byte value NaCl box requires for each encryption.
type Nonce [24]byte

// generateNonce draws a fresh cryptographically secure random nonce.
// Unexported: callers of EncryptTo never choose their own nonce.
func generateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// EncryptTo encrypts plaintext for recipientPK using senderSK, drawing a
// fresh nonce internally and returning it alongside the ciphertext. The
// ciphertext is exactly len(plaintext)+16 bytes (NaCl box's Poly1305 tag
// overhead). The only failure mode is RNG exhaustion, which is fatal to the
// calling process per the crypto primitives contract.
func EncryptTo(recipientPK, senderSK [32]byte, plaintext []byte) (ciphertext []byte, nonce Nonce, err error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":      "EncryptTo",
		"component":     "crypto",
		"plaintext_len": len(plaintext),
	})

	nonce, err = generateNonce()
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Error("nonce generation failed")
		return nil, Nonce{}, err
	}

	ciphertext = box.Seal(nil, plaintext, (*[24]byte)(&nonce), &recipientPK, &senderSK)

	logger.WithFields(logrus.Fields{
		"ciphertext_len": len(ciphertext),
	}).Debug("encrypted payload for recipient")

	return ciphertext, nonce, nil
}
