package friend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTimeProvider is a test double implementing crypto.TimeProvider.
type mockTimeProvider struct {
	fixedTime time.Time
}

func (m *mockTimeProvider) Now() time.Time { return m.fixedTime }
func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.fixedTime.Sub(t)
}

func testKeys(t *testing.T) (enc, sign [32]byte) {
	t.Helper()
	for i := range enc {
		enc[i] = byte(i + 1)
	}
	for i := range sign {
		sign[i] = byte(255 - i)
	}
	return enc, sign
}

func TestNew_PinsKeysAndDefaultsToCurrent(t *testing.T) {
	encPK, signPK := testKeys(t)

	f := New("alice", encPK, signPK)

	assert.Equal(t, "alice", f.Username)
	assert.Equal(t, encPK, f.EncPublicKey)
	assert.Equal(t, signPK, f.SignPublicKey)
	assert.Equal(t, StatusPinnedCurrent, f.KeyStatus)
	assert.False(t, f.AddedAt.IsZero())
	assert.False(t, f.HasLastSeen())
}

func TestNewWithTimeProvider_UsesProvidedTime(t *testing.T) {
	encPK, signPK := testKeys(t)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock := &mockTimeProvider{fixedTime: fixed}

	f := NewWithTimeProvider("alice", encPK, signPK, mock)

	require.Equal(t, fixed, f.AddedAt)
}

func TestUpdatePresence(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)

	seen := time.Now()
	f.UpdatePresence("203.0.113.5", seen)

	assert.Equal(t, "203.0.113.5", f.LastIP)
	assert.Equal(t, seen, f.LastSeen)
	assert.True(t, f.HasLastSeen())
}

func TestUpdatePresence_ResolvesStalePresence(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)
	f.MarkStalePresence()
	require.Equal(t, StatusPinnedStalePresence, f.KeyStatus)

	f.UpdatePresence("203.0.113.5", time.Now())

	assert.Equal(t, StatusPinnedCurrent, f.KeyStatus)
}

func TestIsOnline(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)

	now := time.Now()
	assert.False(t, f.IsOnline(now, 5*time.Minute), "no presence recorded yet")

	f.UpdatePresence("203.0.113.5", now.Add(-1*time.Minute))
	assert.True(t, f.IsOnline(now, 5*time.Minute))

	f.UpdatePresence("203.0.113.5", now.Add(-10*time.Minute))
	assert.False(t, f.IsOnline(now, 5*time.Minute))
}

func TestDetectKeyChange_NoChange(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)

	changed := f.DetectKeyChange(encPK, signPK)

	assert.False(t, changed)
	assert.Equal(t, StatusPinnedCurrent, f.KeyStatus)
}

func TestDetectKeyChange_EncKeyDiffers(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)

	var otherEncPK [32]byte
	otherEncPK[0] = 0xFF

	changed := f.DetectKeyChange(otherEncPK, signPK)

	assert.True(t, changed)
	assert.Equal(t, StatusKeyChanged, f.KeyStatus)
	// Pinned keys themselves are not overwritten by detection alone.
	assert.Equal(t, encPK, f.EncPublicKey)
}

func TestDetectKeyChange_SignKeyDiffers(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)

	var otherSignPK [32]byte
	otherSignPK[0] = 0xAA

	changed := f.DetectKeyChange(encPK, otherSignPK)

	assert.True(t, changed)
	assert.Equal(t, StatusKeyChanged, f.KeyStatus)
}

func TestRepin_RestoresCurrentStatusWithNewKeys(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)

	var newEncPK, newSignPK [32]byte
	newEncPK[0] = 0x01
	newSignPK[0] = 0x02
	f.DetectKeyChange(newEncPK, newSignPK)
	require.Equal(t, StatusKeyChanged, f.KeyStatus)

	f.Repin(newEncPK, newSignPK)

	assert.Equal(t, StatusPinnedCurrent, f.KeyStatus)
	assert.Equal(t, newEncPK, f.EncPublicKey)
	assert.Equal(t, newSignPK, f.SignPublicKey)
}

func TestCanSendTo(t *testing.T) {
	encPK, signPK := testKeys(t)
	f := New("alice", encPK, signPK)
	assert.True(t, f.CanSendTo())

	var otherEncPK [32]byte
	otherEncPK[0] = 0xFF
	f.DetectKeyChange(otherEncPK, signPK)

	assert.False(t, f.CanSendTo())
}
