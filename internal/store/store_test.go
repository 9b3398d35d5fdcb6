package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesAllBuckets(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	for _, b := range allBuckets {
		v, err := s.Get(b, []byte("missing"))
		assert.NoError(t, err)
		assert.Nil(t, v)
	}
}

func TestPutGetDelete(t *testing.T) {
	t.Parallel()
	s := openTest(t)

	require.NoError(t, s.Put(BucketIdentity, []byte("k"), []byte("v")))
	v, err := s.Get(BucketIdentity, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete(BucketIdentity, []byte("k")))
	v, err = s.Get(BucketIdentity, []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestForEachIteratesAllEntries(t *testing.T) {
	t.Parallel()
	s := openTest(t)

	require.NoError(t, s.Put(BucketDrives, []byte("a"), []byte("1")))
	require.NoError(t, s.Put(BucketDrives, []byte("b"), []byte("2")))

	seen := map[string]string{}
	err := s.ForEach(BucketDrives, func(k, v []byte) error {
		seen[string(k)] = string(v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, seen)
}

func TestNextSequenceIsMonotonic(t *testing.T) {
	t.Parallel()
	s := openTest(t)

	first, err := s.NextSequence(BucketAuditLog)
	require.NoError(t, err)
	second, err := s.NextSequence(BucketAuditLog)
	require.NoError(t, err)

	assert.Equal(t, first+1, second)
}

func TestGetReturnsACopyNotTheInternalSlice(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	require.NoError(t, s.Put(BucketIdentity, []byte("k"), []byte("original")))

	v, err := s.Get(BucketIdentity, []byte("k"))
	require.NoError(t, err)
	v[0] = 'X'

	v2, err := s.Get(BucketIdentity, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), v2)
}
