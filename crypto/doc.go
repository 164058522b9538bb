// Package crypto implements the cryptographic primitives used by a peer
// node: authenticated public-key encryption, detached signatures, secure
// memory handling, and base64 encoding for wire transport.
//
// # Encryption
//
// EncryptTo draws a fresh nonce internally and returns it alongside the
// ciphertext; callers can never supply their own nonce, which rules out
// nonce reuse:
//
//	ciphertext, nonce, err := crypto.EncryptTo(recipientPK, senderSK, plaintext)
//	plaintext, err := crypto.DecryptFrom(senderPK, recipientSK, ciphertext, nonce)
//
// # Signatures
//
// Sign/Verify operate on Ed25519 keys distinct from the encryption key
// pair. The encrypt-then-sign convention means the signature always covers
// ciphertext bytes, never plaintext, so verification can happen before
// decryption is attempted.
//
//	sig := crypto.Sign(signSK, ciphertext)
//	err := crypto.Verify(signPK, ciphertext, sig)
//
// # Secure memory
//
// SecureWipe/ZeroBytes erase sensitive buffers using a compiler-resistant
// constant-time XOR, matching the pattern the rest of this package uses
// whenever a secret key leaves scope.
package crypto
