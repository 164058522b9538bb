package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/peernode/friend"
	"github.com/opd-ai/peernode/messaging"
)

func testKeys() (enc, sign [32]byte) {
	enc[0] = 1
	sign[0] = 2
	return
}

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, s.ListFriends())
}

func TestAddFriend_PinsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	enc, sign := testKeys()
	f, err := s.AddFriend("bob", enc, sign, "203.0.113.5", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "bob", f.Username)
	assert.Equal(t, friend.StatusPinnedCurrent, f.KeyStatus)

	_, err = s.AddFriend("bob", enc, sign, "", time.Time{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAddFriend_ReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	enc, sign := testKeys()
	_, err = s.AddFriend("bob", enc, sign, "203.0.113.5", time.Now())
	require.NoError(t, err)

	reloaded, err := Open(path)
	require.NoError(t, err)

	f, err := reloaded.LookupFriend("bob")
	require.NoError(t, err)
	assert.Equal(t, enc, f.EncPublicKey)
	assert.Equal(t, sign, f.SignPublicKey)
	assert.True(t, f.HasLastSeen())
}

func TestLookupFriend_NotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.LookupFriend("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePresence_NeverTouchesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	enc, sign := testKeys()
	_, err = s.AddFriend("bob", enc, sign, "", time.Time{})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.UpdatePresence("bob", "198.51.100.1", now))

	f, err := s.LookupFriend("bob")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1", f.LastIP)
	assert.Equal(t, enc, f.EncPublicKey)
	assert.Equal(t, sign, f.SignPublicKey)

	assert.ErrorIs(t, s.UpdatePresence("ghost", "1.1.1.1", now), ErrNotFound)
}

func TestMarkFriendStalePresence_ResolvedByPresenceUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	enc, sign := testKeys()
	_, err = s.AddFriend("bob", enc, sign, "", time.Time{})
	require.NoError(t, err)

	require.NoError(t, s.MarkFriendStalePresence("bob"))
	f, err := s.LookupFriend("bob")
	require.NoError(t, err)
	assert.Equal(t, friend.StatusPinnedStalePresence, f.KeyStatus)

	require.NoError(t, s.UpdatePresence("bob", "198.51.100.1", time.Now()))
	f, err = s.LookupFriend("bob")
	require.NoError(t, err)
	assert.Equal(t, friend.StatusPinnedCurrent, f.KeyStatus)

	assert.ErrorIs(t, s.MarkFriendStalePresence("ghost"), ErrNotFound)
}

func TestRemoveFriend_RetainsMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	enc, sign := testKeys()
	_, err = s.AddFriend("bob", enc, sign, "", time.Time{})
	require.NoError(t, err)

	msg := messaging.NewSent("bob", "hello", time.Now())
	require.NoError(t, s.RecordMessage(msg))

	require.NoError(t, s.RemoveFriend("bob"))
	_, err = s.LookupFriend("bob")
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, total, _ := s.ListMessages("bob", 0, 10)
	assert.Equal(t, 1, total)
	assert.Len(t, msgs, 1)

	assert.ErrorIs(t, s.RemoveFriend("bob"), ErrNotFound)
}

func TestRecordMessage_DuplicateRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	msg := messaging.NewSent("bob", "hi", time.Now())
	require.NoError(t, s.RecordMessage(msg))
	assert.ErrorIs(t, s.RecordMessage(msg), ErrDuplicate)
}

func TestMarkDelivered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	msg := messaging.NewSent("bob", "hi", time.Now())
	require.NoError(t, s.RecordMessage(msg))
	require.NoError(t, s.MarkDelivered(msg.MsgID))

	msgs, _, _ := s.ListMessages("bob", 0, 10)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Delivered)

	assert.ErrorIs(t, s.MarkDelivered("nope"), ErrNotFound)
}

func TestListMessages_ChronologicalAndPaginated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := messaging.NewSent("bob", "msg", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.RecordMessage(msg))
	}

	page, total, hasMore := s.ListMessages("bob", 0, 2)
	assert.Equal(t, 5, total)
	assert.True(t, hasMore)
	assert.Len(t, page, 2)

	page, total, hasMore = s.ListMessages("bob", 4, 2)
	assert.Equal(t, 5, total)
	assert.False(t, hasMore)
	assert.Len(t, page, 1)

	page, _, _ = s.ListMessages("bob", 100, 2)
	assert.Empty(t, page)
}

func TestCheckAndMarkSeen_AtomicDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	already, err := s.CheckAndMarkSeen("abc", time.Now())
	require.NoError(t, err)
	assert.False(t, already)

	already, err = s.CheckAndMarkSeen("abc", time.Now())
	require.NoError(t, err)
	assert.True(t, already)

	assert.True(t, s.HasSeen("abc"))
}

func TestGCSeenIDs_PrunesOldEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.MarkSeen("old", old))
	require.NoError(t, s.MarkSeen("new", time.Now()))

	pruned, err := s.GCSeenIDs(time.Now(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.False(t, s.HasSeen("old"))
	assert.True(t, s.HasSeen("new"))
}
