package crypto

import (
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/box"
)

// ErrAuthFailure indicates the ciphertext's authentication tag did not
// verify against the given keys and nonce. No partial plaintext is ever
// returned on this path.
var ErrAuthFailure = errors.New("authentication failure: message was tampered with or keys are wrong")

// DecryptFrom decrypts ciphertext sent by senderPK to recipientSK using
// nonce, returning ErrAuthFailure if the embedded tag does not verify.
func DecryptFrom(senderPK, recipientSK [32]byte, ciphertext []byte, nonce Nonce) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":       "DecryptFrom",
		"component":      "crypto",
		"ciphertext_len": len(ciphertext),
	})

	plaintext, ok := box.Open(nil, ciphertext, (*[24]byte)(&nonce), &senderPK, &recipientSK)
	if !ok {
		logger.Warn("authentication failure decrypting message")
		return nil, ErrAuthFailure
	}

	logger.WithFields(logrus.Fields{"plaintext_len": len(plaintext)}).Debug("decrypted message")
	return plaintext, nil
}
