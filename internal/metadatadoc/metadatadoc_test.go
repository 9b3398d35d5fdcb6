package metadatadoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/core/internal/model"
)

func TestSetStampsMonotonicVersion(t *testing.T) {
	t.Parallel()
	d := New()
	m1 := d.Set(model.FileMetadata{RelativePath: "a.txt"})
	m2 := d.Set(model.FileMetadata{RelativePath: "b.txt"})
	assert.Less(t, m1.Version, m2.Version)
	assert.Equal(t, m2.Version, d.Version())
}

func TestGetReturnsStoredEntry(t *testing.T) {
	t.Parallel()
	d := New()
	d.Set(model.FileMetadata{RelativePath: "a.txt", Size: 10})

	m, ok := d.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(10), m.Size)

	_, ok = d.Get("missing.txt")
	assert.False(t, ok)
}

func TestDeleteRemovesEntryAndBumpsVersion(t *testing.T) {
	t.Parallel()
	d := New()
	d.Set(model.FileMetadata{RelativePath: "a.txt"})
	before := d.Version()

	d.Delete("a.txt")
	_, ok := d.Get("a.txt")
	assert.False(t, ok)
	assert.Greater(t, d.Version(), before)
}

func TestAllReturnsEveryEntry(t *testing.T) {
	t.Parallel()
	d := New()
	d.Set(model.FileMetadata{RelativePath: "a.txt"})
	d.Set(model.FileMetadata{RelativePath: "b.txt"})
	assert.Len(t, d.All(), 2)
}

func TestRegistryForIsIdempotentPerDrive(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	var drive model.DriveID
	drive[0] = 1

	d1 := r.For(drive)
	d1.Set(model.FileMetadata{RelativePath: "a.txt"})
	d2 := r.For(drive)
	assert.Same(t, d1, d2)
	_, ok := d2.Get("a.txt")
	assert.True(t, ok)
}

func TestRegistryDropRemovesDoc(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	var drive model.DriveID
	orig := r.For(drive)
	orig.Set(model.FileMetadata{RelativePath: "a.txt"})

	r.Drop(drive)
	fresh := r.For(drive)
	assert.NotSame(t, orig, fresh)
	assert.Empty(t, fresh.All())
}
