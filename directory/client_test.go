package directory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/peernode/crypto"
)

// recordingHandler captures the last request the client made so tests can
// assert on method, path, headers and body without a real directory.
type recordingHandler struct {
	method string
	path   string
	auth   string
	body   []byte

	status   int
	response any
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	if r.URL.RawQuery != "" {
		h.path += "?" + r.URL.RawQuery
	}
	h.auth = r.Header.Get("Authorization")
	h.body, _ = io.ReadAll(r.Body)

	if h.status != 0 {
		w.WriteHeader(h.status)
	}
	if h.response != nil {
		json.NewEncoder(w).Encode(h.response)
	}
}

func newTestClient(t *testing.T, h *recordingHandler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-api-key")
}

func TestRegisterUpsertsOwnRecord(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(t, h)

	rec := Record{
		Username:            "alice",
		NodeID:              "node-1",
		EncryptionPublicKey: "ZW5jLWtleQ==",
		SigningPublicKey:    "c2lnbi1rZXk=",
		LastIP:              "192.0.2.10",
		LastSeen:            time.Now().UTC(),
	}

	require.NoError(t, c.Register(context.Background(), rec))

	assert.Equal(t, http.MethodPut, h.method)
	assert.Equal(t, "/users/alice", h.path)
	assert.Equal(t, "Bearer test-api-key", h.auth)

	var sent Record
	require.NoError(t, json.Unmarshal(h.body, &sent))
	assert.Equal(t, rec.Username, sent.Username)
	assert.Equal(t, rec.EncryptionPublicKey, sent.EncryptionPublicKey)
	assert.Equal(t, rec.SigningPublicKey, sent.SigningPublicKey)
}

func TestRegisterSurfacesServerError(t *testing.T) {
	h := &recordingHandler{status: http.StatusInternalServerError}
	c := newTestClient(t, h)

	err := c.Register(context.Background(), Record{Username: "alice"})
	assert.Error(t, err)
}

func TestHeartbeatRefreshesPresence(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(t, h)

	require.NoError(t, c.Heartbeat(context.Background(), "alice", "192.0.2.10"))

	assert.Equal(t, http.MethodPost, h.method)
	assert.Equal(t, "/users/alice/heartbeat", h.path)

	var sent struct {
		LastIP string `json:"last_ip"`
	}
	require.NoError(t, json.Unmarshal(h.body, &sent))
	assert.Equal(t, "192.0.2.10", sent.LastIP)
}

func TestLookupReturnsRecord(t *testing.T) {
	h := &recordingHandler{
		response: Record{
			Username:            "bob",
			NodeID:              "node-2",
			EncryptionPublicKey: "Ym9iLWVuYw==",
			SigningPublicKey:    "Ym9iLXNpZ24=",
			LastIP:              "192.0.2.20",
		},
	}
	c := newTestClient(t, h)

	rec, err := c.Lookup(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, h.method)
	assert.Equal(t, "/users/bob", h.path)
	assert.Equal(t, "bob", rec.Username)
	assert.Equal(t, "192.0.2.20", rec.LastIP)
}

func TestLookupUnknownUserIsNotFound(t *testing.T) {
	h := &recordingHandler{status: http.StatusNotFound}
	c := newTestClient(t, h)

	rec, err := c.Lookup(context.Background(), "carol")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPushOfflineEncodesEnvelope(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(t, h)

	envelope := []byte(`{"type":"message","from":"alice","to":"bob"}`)
	require.NoError(t, c.PushOffline(context.Background(), "bob", "alice", envelope))

	assert.Equal(t, http.MethodPost, h.method)
	assert.Equal(t, "/offline_messages", h.path)

	var sent struct {
		ToUser     string `json:"to_user"`
		FromUser   string `json:"from_user"`
		Ciphertext string `json:"ciphertext"`
	}
	require.NoError(t, json.Unmarshal(h.body, &sent))
	assert.Equal(t, "bob", sent.ToUser)
	assert.Equal(t, "alice", sent.FromUser)

	decoded, err := crypto.DecodeB64(sent.Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, envelope, decoded)
}

func TestFetchOfflineReturnsQueuedMessages(t *testing.T) {
	h := &recordingHandler{
		response: []OfflineMessage{
			{ID: "1", ToUser: "alice", FromUser: "bob", Ciphertext: "YQ=="},
			{ID: "2", ToUser: "alice", FromUser: "carol", Ciphertext: "Yg=="},
		},
	}
	c := newTestClient(t, h)

	msgs, err := c.FetchOffline(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "/offline_messages?to_user=alice", h.path)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "bob", msgs[0].FromUser)
	assert.Equal(t, "2", msgs[1].ID)
}

func TestFetchOfflineEmptyQueue(t *testing.T) {
	h := &recordingHandler{response: []OfflineMessage{}}
	c := newTestClient(t, h)

	msgs, err := c.FetchOffline(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteOfflineSendsIDList(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(t, h)

	require.NoError(t, c.DeleteOffline(context.Background(), []string{"1", "3"}))

	assert.Equal(t, http.MethodPost, h.method)
	assert.Equal(t, "/offline_messages/delete", h.path)

	var sent struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(h.body, &sent))
	assert.Equal(t, []string{"1", "3"}, sent.IDs)
}

func TestRequestContextCancellation(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Lookup(ctx, "bob")
	assert.Error(t, err)
}
