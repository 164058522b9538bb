package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/peernode/crypto"
	"github.com/opd-ai/peernode/delivery"
	"github.com/opd-ai/peernode/directory"
	"github.com/opd-ai/peernode/eventbus"
	"github.com/opd-ai/peernode/store"
	"github.com/opd-ai/peernode/transport"
)

type stubDirectory struct {
	records map[string]*directory.Record
}

func (d *stubDirectory) Lookup(ctx context.Context, username string) (*directory.Record, error) {
	rec, ok := d.records[username]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return rec, nil
}

func (d *stubDirectory) PushOffline(ctx context.Context, recipient, sender string, envelopeBytes []byte) error {
	return nil
}

func (d *stubDirectory) FetchOffline(ctx context.Context, recipient string) ([]directory.OfflineMessage, error) {
	return nil, nil
}

func (d *stubDirectory) DeleteOffline(ctx context.Context, ids []string) error { return nil }

func makeTestIdentity(t *testing.T, username string) *crypto.Identity {
	t.Helper()
	enc, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	sign, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	return &crypto.Identity{Username: username, NodeID: "node-" + username, EncKeyPair: enc, SignKeyPair: sign}
}

func newTestServer(t *testing.T) (*Server, *store.Store, *stubDirectory) {
	t.Helper()
	alice := makeTestIdentity(t, "alice")
	bob := makeTestIdentity(t, "bob")

	st, err := store.Open(t.TempDir() + "/store.json")
	require.NoError(t, err)

	sd := &stubDirectory{records: map[string]*directory.Record{
		"bob": {
			Username:            "bob",
			EncryptionPublicKey: crypto.EncodeB64(bob.EncKeyPair.Public[:]),
			SigningPublicKey:    crypto.EncodeB64(bob.SignKeyPair.Public[:]),
			LastIP:              "203.0.113.5:9100",
			LastSeen:            time.Now(),
		},
	}}

	dial := func(ctx context.Context, ip string, port int, env []byte) (transport.SendResult, error) {
		return transport.ConnectRefused, assert.AnError
	}
	pipeline := delivery.New(alice, st, sd, noopNotifier{}, dial, 9100)

	srv := NewServer(alice, st, pipeline, sd, 9100)
	return srv, st, sd
}

type noopNotifier struct{}

func (noopNotifier) Notify(name eventbus.Name, data any) {}

func TestHandleStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, 9100, resp.PeerPort)
}

func TestHandleAddFriend_Success(t *testing.T) {
	srv, st, _ := newTestServer(t)

	body, _ := json.Marshal(addFriendRequest{Username: "bob"})
	req := httptest.NewRequest(http.MethodPost, "/friends", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	_, err := st.LookupFriend("bob")
	require.NoError(t, err)
}

func TestHandleAddFriend_UnknownInDirectory(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, _ := json.Marshal(addFriendRequest{Username: "carol"})
	req := httptest.NewRequest(http.MethodPost, "/friends", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAddFriend_MissingField(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/friends", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAddFriend_Conflict(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, _ := json.Marshal(addFriendRequest{Username: "bob"})
	req := httptest.NewRequest(http.MethodPost, "/friends", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/friends", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestHandleSendMessage_UnknownFriend(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, _ := json.Marshal(sendMessageRequest{To: "carol", Text: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSendMessage_OfflineFallback(t *testing.T) {
	srv, _, _ := newTestServer(t)

	addBody, _ := json.Marshal(addFriendRequest{Username: "bob"})
	addReq := httptest.NewRequest(http.MethodPost, "/friends", bytes.NewReader(addBody))
	addW := httptest.NewRecorder()
	srv.Router().ServeHTTP(addW, addReq)
	require.Equal(t, http.StatusCreated, addW.Code)

	body, _ := json.Marshal(sendMessageRequest{To: "bob", Text: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp sendMessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Delivered)
}

func TestHandleListMessages_MissingPeer(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRemoveFriend(t *testing.T) {
	srv, _, _ := newTestServer(t)

	addBody, _ := json.Marshal(addFriendRequest{Username: "bob"})
	addReq := httptest.NewRequest(http.MethodPost, "/friends", bytes.NewReader(addBody))
	srv.Router().ServeHTTP(httptest.NewRecorder(), addReq)

	req := httptest.NewRequest(http.MethodDelete, "/friends/bob", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req2 := httptest.NewRequest(http.MethodDelete, "/friends/bob", nil)
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusNotFound, w2.Code)
}
