package keyexchange

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

	kx1, err := Load(s)
	require.NoError(t, err)
	kx2, err := Load(s)
	require.NoError(t, err)
	assert.Equal(t, kx1.PublicKey(), kx2.PublicKey())
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	recipient, err := Load(s)
	require.NoError(t, err)

	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}

	wk, err := WrapKeyFor(recipient.PublicKey(), secret)
	require.NoError(t, err)

	recovered, err := recipient.UnwrapKey(wk)
	require.NoError(t, err)
	assert.Equal(t, secret, recovered)
}

func TestUnwrapFailsForWrongRecipient(t *testing.T) {
	t.Parallel()
	s1 := openStore(t)
	s2 := openStore(t)
	recipient, err := Load(s1)
	require.NoError(t, err)
	other, err := Load(s2)
	require.NoError(t, err)

	secret := make([]byte, 32)
	wk, err := WrapKeyFor(recipient.PublicKey(), secret)
	require.NoError(t, err)

	_, err = other.UnwrapKey(wk)
	assert.Error(t, err)
}

func TestWrapKeyForRejectsWrongSecretLength(t *testing.T) {
	t.Parallel()
	var pk [32]byte
	_, err := WrapKeyFor(pk, []byte("too short"))
	assert.Error(t, err)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	recipient, err := Load(s)
	require.NoError(t, err)

	secret := make([]byte, 32)
	wk, err := WrapKeyFor(recipient.PublicKey(), secret)
	require.NoError(t, err)

	wire := wk.Serialize()
	back, err := DeserializeWrappedKey(wire)
	require.NoError(t, err)
	assert.Equal(t, wk.EphemeralPublic, back.EphemeralPublic)
	assert.Equal(t, wk.Nonce, back.Nonce)
	assert.Equal(t, wk.Ciphertext, back.Ciphertext)
}

func TestDeserializeRejectsTooShort(t *testing.T) {
	t.Parallel()
	_, err := DeserializeWrappedKey(make([]byte, 10))
	assert.Error(t, err)
}
