package crypto

import (
	"crypto/ed25519"
	"errors"

	"github.com/sirupsen/logrus"
)

// SignatureSize is the size of a detached Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature is a detached Ed25519 signature.
type Signature [SignatureSize]byte

// ErrBadSignature indicates a signature did not verify against the given
// public key and data.
var ErrBadSignature = errors.New("signature verification failed")

// Sign produces a detached signature over data using the full 64-byte
// Ed25519 private key.
func Sign(privateKey [ed25519.PrivateKeySize]byte, data []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(privateKey[:]), data))
	return sig
}

// Verify checks signature over data against publicKey. The verification
// itself runs on ed25519's constant-time success path; a mismatch returns
// ErrBadSignature rather than false so callers can't accidentally ignore it.
func Verify(publicKey [ed25519.PublicKeySize]byte, data []byte, signature Signature) error {
	if !ed25519.Verify(ed25519.PublicKey(publicKey[:]), data, signature[:]) {
		logrus.WithFields(logrus.Fields{
			"function":  "Verify",
			"component": "crypto",
		}).Warn("signature verification failed")
		return ErrBadSignature
	}
	return nil
}
