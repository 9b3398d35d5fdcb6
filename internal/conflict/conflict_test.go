package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/foldsync/core/internal/model"
)

func TestDetectIsNilWhenHashesMatch(t *testing.T) {
	t.Parallel()
	m := NewManager()
	v := Version{Hash: "same"}
	assert.Nil(t, m.Detect("plan.txt", v, v, ""))
}

func TestDetectResolvesCleanlyAgainstBase(t *testing.T) {
	t.Parallel()
	m := NewManager()

	// Local unchanged from base: remote wins without recording a conflict.
	local := Version{Hash: "base"}
	remote := Version{Hash: "R"}
	assert.Nil(t, m.Detect("a.txt", local, remote, "base"))

	// Remote unchanged from base: local wins without recording a conflict.
	local = Version{Hash: "L"}
	remote = Version{Hash: "base"}
	assert.Nil(t, m.Detect("a.txt", local, remote, "base"))
}

func TestDetectRecordsConflictWhenBothSidesDiverge(t *testing.T) {
	t.Parallel()
	m := NewManager()
	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()

	local := Version{Hash: "L", Size: 10, ModifiedAt: t1}
	remote := Version{Hash: "R", Size: 12, ModifiedAt: t2}
	fc := m.Detect("plan.txt", local, remote, "B")
	if assert.NotNil(t, fc) {
		assert.Equal(t, model.ResolutionKeepRemote, fc.SuggestedResolution)
		assert.Len(t, m.Unresolved(), 1)
	}
}

func TestDetectSuggestsKeepBothOnTie(t *testing.T) {
	t.Parallel()
	m := NewManager()
	now := time.Now()
	local := Version{Hash: "L", ModifiedAt: now}
	remote := Version{Hash: "R", ModifiedAt: now}
	fc := m.Detect("a.txt", local, remote, "")
	if assert.NotNil(t, fc) {
		assert.Equal(t, model.ResolutionKeepBoth, fc.SuggestedResolution)
	}
}

func TestConflictIDIsDeterministic(t *testing.T) {
	t.Parallel()
	id1 := ID("plan.txt", "L", "R")
	id2 := ID("plan.txt", "L", "R")
	assert.Equal(t, id1, id2)

	id3 := ID("plan.txt", "L", "X")
	assert.NotEqual(t, id1, id3)
}

func TestResolveMovesToResolvedHistory(t *testing.T) {
	t.Parallel()
	m := NewManager()
	local := Version{Hash: "L", ModifiedAt: time.Now()}
	remote := Version{Hash: "R", ModifiedAt: time.Now().Add(time.Minute)}
	fc := m.Detect("plan.txt", local, remote, "")

	resolved, ok := m.Resolve(fc.ID, model.ResolutionKeepLocal)
	assert.True(t, ok)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, model.ResolutionKeepLocal, resolved.Resolution)
	assert.Empty(t, m.Unresolved())
	assert.Len(t, m.Resolved(), 1)
}

func TestResolveUnknownIDFails(t *testing.T) {
	t.Parallel()
	m := NewManager()
	var id [16]byte
	_, ok := m.Resolve(id, model.ResolutionKeepLocal)
	assert.False(t, ok)
}

func TestCleanupResolvedDropsOldEntries(t *testing.T) {
	t.Parallel()
	m := NewManager()
	old := m.Detect("old.txt", Version{Hash: "L", ModifiedAt: time.Now().Add(-48 * time.Hour)}, Version{Hash: "R", ModifiedAt: time.Now().Add(-47 * time.Hour)}, "")
	recent := m.Detect("new.txt", Version{Hash: "L"}, Version{Hash: "R"}, "")
	// CleanupResolved goes by detection time, which Detect stamps as now.
	old.DetectedAt = time.Now().Add(-48 * time.Hour)
	m.Resolve(old.ID, model.ResolutionKeepLocal)
	m.Resolve(recent.ID, model.ResolutionKeepRemote)

	n := m.CleanupResolved(time.Now().Add(-24 * time.Hour))
	assert.Equal(t, 1, n)
	assert.Len(t, m.Resolved(), 1)
}

func TestIsTextFileAllowlist(t *testing.T) {
	t.Parallel()
	assert.True(t, IsTextFile("notes/plan.TXT"))
	assert.True(t, IsTextFile("src/main.go"))
	assert.False(t, IsTextFile("image.png"))
	assert.False(t, IsTextFile("noext"))
}

func TestRegistryIsolatesDrives(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	var d1, d2 model.DriveID
	d1[0], d2[0] = 1, 2

	r.For(d1).Detect("a.txt", Version{Hash: "L"}, Version{Hash: "R"}, "")
	assert.Len(t, r.For(d1).Unresolved(), 1)
	assert.Empty(t, r.For(d2).Unresolved())
}
