package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/core/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadGeneratesAndPersistsOnFirstBoot(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	id1, err := Load(s)
	require.NoError(t, err)
	require.NotZero(t, id1.NodeID())

	id2, err := Load(s)
	require.NoError(t, err)
	assert.Equal(t, id1.NodeID(), id2.NodeID())
	assert.Equal(t, id1.VerifyingKey(), id2.VerifyingKey())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	id, err := Load(s)
	require.NoError(t, err)

	msg := []byte("gossip payload")
	sig := id.Sign(msg)
	assert.True(t, Verify(id.NodeID(), msg, sig))
	assert.False(t, Verify(id.NodeID(), []byte("tampered"), sig))
}

func TestSigningKeyMatchesVerifyingKey(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	id, err := Load(s)
	require.NoError(t, err)

	pub := id.SigningKey().Public()
	assert.Equal(t, id.VerifyingKey(), pub)
}
