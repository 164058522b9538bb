package messaging

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/limits"
)

// EnvelopeType distinguishes the three kinds of peer-to-peer wire messages.
type EnvelopeType string

const (
	EnvelopeMessage EnvelopeType = "message"
	EnvelopeAck     EnvelopeType = "ack"
	EnvelopePing    EnvelopeType = "ping"
)

// TimestampLayout is the ISO-8601 UTC, seconds-precision layout used for
// the envelope's timestamp field.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Envelope is the exact JSON object exchanged between peers and through
// the relay.
type Envelope struct {
	Type       EnvelopeType `json:"type"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Timestamp  string       `json:"timestamp"`
	Nonce      string       `json:"nonce"`
	Ciphertext string       `json:"ciphertext"`
	Signature  string       `json:"signature"`
}

// Payload is the inner plaintext, itself UTF-8 JSON, carried inside an
// envelope's ciphertext.
type Payload struct {
	Text  string `json:"text"`
	MsgID string `json:"msg_id"`
}

// ErrStructuralInvalid indicates an envelope failed the structural check
// in the receive path: a required field is missing, malformed, or the
// type/recipient doesn't match expectations.
var ErrStructuralInvalid = errors.New("envelope failed structural validation")

// Marshal serializes e to the canonical UTF-8 JSON bytes framed on the
// wire.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope parses raw framed payload bytes into an Envelope,
// applying the structural checks from the receive path's first step.
func UnmarshalEnvelope(raw []byte, selfUsername string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Join(ErrStructuralInvalid, err)
	}

	if env.From == "" || env.To == "" || env.Timestamp == "" {
		return nil, errors.Join(ErrStructuralInvalid, errors.New("missing required field"))
	}
	if env.Type != EnvelopeMessage {
		return nil, errors.Join(ErrStructuralInvalid, errors.New("unsupported envelope type"))
	}
	if env.To != selfUsername {
		return nil, errors.Join(ErrStructuralInvalid, errors.New("envelope not addressed to this node"))
	}

	return &env, nil
}

// BuildEnvelope constructs a type="message" envelope: it marshals payload,
// encrypts it to the recipient, and signs the resulting ciphertext. The
// signature covers ciphertext, never plaintext, so a receiver can verify
// before attempting decryption.
func BuildEnvelope(
	from, to string,
	payload Payload,
	recipientEncPK [32]byte,
	senderEncSK [32]byte,
	senderSignSK [ed25519.PrivateKeySize]byte,
	now time.Time,
) (*Envelope, error) {
	if err := limits.ValidateMessageText([]byte(payload.Text)); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := crypto.EncryptTo(recipientEncPK, senderEncSK, plaintext)
	if err != nil {
		return nil, err
	}

	signature := crypto.Sign(senderSignSK, ciphertext)

	logrus.WithFields(logrus.Fields{
		"function": "BuildEnvelope",
		"from":     from,
		"to":       to,
		"msg_id":   payload.MsgID,
	}).Debug("built outbound envelope")

	return &Envelope{
		Type:       EnvelopeMessage,
		From:       from,
		To:         to,
		Timestamp:  now.UTC().Format(TimestampLayout),
		Nonce:      crypto.EncodeB64(nonce[:]),
		Ciphertext: crypto.EncodeB64(ciphertext),
		Signature:  crypto.EncodeB64(signature[:]),
	}, nil
}

// OpenEnvelope verifies and decrypts an envelope's ciphertext against the
// sender's keys, returning the inner Payload. Verification happens before
// decryption: a forged signature is reported as ErrBadSignature and never
// reaches decrypt_from.
func OpenEnvelope(env *Envelope, senderEncPK, recipientEncSK [32]byte, senderSignPK [32]byte) (*Payload, error) {
	nonceBytes, err := crypto.DecodeB64(env.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, errors.Join(ErrStructuralInvalid, errors.New("invalid nonce encoding"))
	}
	ciphertext, err := crypto.DecodeB64(env.Ciphertext)
	if err != nil {
		return nil, errors.Join(ErrStructuralInvalid, errors.New("invalid ciphertext encoding"))
	}
	sigBytes, err := crypto.DecodeB64(env.Signature)
	if err != nil || len(sigBytes) != crypto.SignatureSize {
		return nil, errors.Join(ErrStructuralInvalid, errors.New("invalid signature encoding"))
	}

	var nonce crypto.Nonce
	copy(nonce[:], nonceBytes)
	var signature crypto.Signature
	copy(signature[:], sigBytes)

	if err := crypto.Verify(senderSignPK, ciphertext, signature); err != nil {
		return nil, err
	}

	plaintext, err := crypto.DecryptFrom(senderEncPK, recipientEncSK, ciphertext, nonce)
	if err != nil {
		return nil, err
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, errors.Join(ErrStructuralInvalid, err)
	}

	return &payload, nil
}
