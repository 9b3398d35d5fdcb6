package keyvault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/core/internal/keyexchange"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateForOwnerThenUnwrapReturnsSameKey(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	kx, err := keyexchange.Load(s)
	require.NoError(t, err)
	v := New(s, kx)

	var drive model.DriveID
	drive[0] = 7

	master, err := v.GenerateForOwner(drive, kx.PublicKey())
	require.NoError(t, err)

	has, err := v.HasKey(drive)
	require.NoError(t, err)
	assert.True(t, has)

	unwrapped, err := v.Unwrap(drive)
	require.NoError(t, err)
	assert.Equal(t, master, unwrapped)
}

func TestUnwrapUsesCacheOnSecondCall(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	kx, err := keyexchange.Load(s)
	require.NoError(t, err)
	v := New(s, kx)

	var drive model.DriveID
	_, err = v.GenerateForOwner(drive, kx.PublicKey())
	require.NoError(t, err)

	m1, err := v.Unwrap(drive)
	require.NoError(t, err)
	m2, err := v.Unwrap(drive)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestUnwrapUnknownDriveReturnsNotFound(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	kx, err := keyexchange.Load(s)
	require.NoError(t, err)
	v := New(s, kx)

	var drive model.DriveID
	drive[0] = 99
	_, err = v.Unwrap(drive)
	assert.Error(t, err)
}

func TestRewrapForAllowsNewMemberToUnwrap(t *testing.T) {
	t.Parallel()
	sOwner := openStore(t)
	sMember := openStore(t)

	ownerKX, err := keyexchange.Load(sOwner)
	require.NoError(t, err)
	memberKX, err := keyexchange.Load(sMember)
	require.NoError(t, err)

	ownerVault := New(sOwner, ownerKX)
	var drive model.DriveID
	master, err := ownerVault.GenerateForOwner(drive, ownerKX.PublicKey())
	require.NoError(t, err)

	wk, err := ownerVault.RewrapFor(drive, memberKX.PublicKey())
	require.NoError(t, err)

	memberVault := New(sMember, memberKX)
	require.NoError(t, memberVault.Import(drive, wk))

	recovered, err := memberVault.Unwrap(drive)
	require.NoError(t, err)
	assert.Equal(t, master, recovered)
}

func TestClearCacheForcesReUnwrapFromStorage(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	kx, err := keyexchange.Load(s)
	require.NoError(t, err)
	v := New(s, kx)

	var drive model.DriveID
	master, err := v.GenerateForOwner(drive, kx.PublicKey())
	require.NoError(t, err)

	v.ClearCache()

	unwrapped, err := v.Unwrap(drive)
	require.NoError(t, err)
	assert.Equal(t, master, unwrapped)
}
