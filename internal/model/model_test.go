package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeIDHexRoundTrip(t *testing.T) {
	t.Parallel()
	var n NodeID
	n[0], n[31] = 0xAB, 0xCD
	back, err := NodeIDFromHex(n.Hex())
	require := assert.New(t)
	require.NoError(err)
	require.Equal(n, back)
}

func TestNodeIDFromHexRejectsBadInput(t *testing.T) {
	t.Parallel()
	_, err := NodeIDFromHex("not-hex")
	assert.Error(t, err)

	_, err = NodeIDFromHex("abcd")
	assert.Error(t, err)
}

func TestNodeIDShortTruncatesTo8(t *testing.T) {
	t.Parallel()
	var n NodeID
	n[0] = 0xFF
	assert.Len(t, n.Short(), 8)
	assert.Equal(t, n.Hex()[:8], n.Short())
}

func TestDriveIDHexRoundTrip(t *testing.T) {
	t.Parallel()
	var d DriveID
	d[5] = 0x42
	back, err := DriveIDFromHex(d.Hex())
	assert.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestDriveIDFromHexRejectsWrongLength(t *testing.T) {
	t.Parallel()
	_, err := DriveIDFromHex("aa")
	assert.Error(t, err)
}

func TestPermissionSatisfies(t *testing.T) {
	t.Parallel()
	assert.True(t, PermissionAdmin.Satisfies(PermissionRead))
	assert.True(t, PermissionWrite.Satisfies(PermissionWrite))
	assert.False(t, PermissionRead.Satisfies(PermissionWrite))
	assert.True(t, PermissionManage.Satisfies(PermissionWrite))
}

func TestPermissionString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Read", PermissionRead.String())
	assert.Equal(t, "Admin", PermissionAdmin.String())
	assert.Equal(t, "Unknown", Permission(99).String())
}

func TestParsePermission(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"Read", "Write", "Manage", "Admin"} {
		p, ok := ParsePermission(s)
		assert.True(t, ok)
		assert.Equal(t, s, p.String())
	}
	_, ok := ParsePermission("bogus")
	assert.False(t, ok)
}
