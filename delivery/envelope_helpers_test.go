package delivery

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/messaging"
)

func buildEnvelopeBytes(t *testing.T, from, to *crypto.Identity, text, msgID string) []byte {
	t.Helper()
	if msgID == "" {
		msgID = messaging.NewMsgID()
	}
	env, err := messaging.BuildEnvelope(
		from.Username, to.Username,
		messaging.Payload{Text: text, MsgID: msgID},
		to.EncKeyPair.Public, from.EncKeyPair.Private, from.SignKeyPair.Private,
		time.Now(),
	)
	require.NoError(t, err)

	raw, err := env.Marshal()
	require.NoError(t, err)
	return raw
}

func tamperEnvelopeCiphertext(t *testing.T, raw []byte) []byte {
	t.Helper()
	var env messaging.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	decoded, err := crypto.DecodeB64(env.Ciphertext)
	require.NoError(t, err)
	decoded[0] ^= 0xFF
	env.Ciphertext = crypto.EncodeB64(decoded)

	out, err := env.Marshal()
	require.NoError(t, err)
	return out
}
