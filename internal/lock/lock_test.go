package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/foldsync/core/internal/model"
)

func nodeID(b byte) model.NodeID {
	var n model.NodeID
	n[0] = b
	return n
}

func TestAcquireFreshPathSucceeds(t *testing.T) {
	t.Parallel()
	m := NewManager()
	res := m.Acquire("report.docx", nodeID(1), model.LockExclusive, 0)
	assert.Equal(t, Acquired, res.Outcome)
}

func TestExclusiveDeniesOtherHolders(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("report.docx", nodeID(1), model.LockExclusive, 0)

	res := m.Acquire("report.docx", nodeID(2), model.LockAdvisory, 0)
	assert.Equal(t, Denied, res.Outcome)
	assert.NotNil(t, res.Denied)
	assert.Equal(t, nodeID(1), res.Denied.Holder)

	res = m.Acquire("report.docx", nodeID(2), model.LockExclusive, 0)
	assert.Equal(t, Denied, res.Outcome)
}

func TestAdvisoryDeniesExclusiveButCoexistsWithAdvisory(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("notes.txt", nodeID(1), model.LockAdvisory, 0)

	res := m.Acquire("notes.txt", nodeID(2), model.LockExclusive, 0)
	assert.Equal(t, Denied, res.Outcome)

	res = m.Acquire("notes.txt", nodeID(2), model.LockAdvisory, 0)
	assert.Equal(t, AcquiredWithWarning, res.Outcome)
	assert.Contains(t, res.Warning, nodeID(1).Short())

	// The existing advisory lock is not replaced by the warned acquire.
	got, ok := m.Get("notes.txt")
	assert.True(t, ok)
	assert.Equal(t, nodeID(1), got.Holder)
}

func TestSameHolderRefreshesOrUpgrades(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("a.txt", nodeID(1), model.LockAdvisory, 0)
	res := m.Acquire("a.txt", nodeID(1), model.LockExclusive, 0)
	assert.Equal(t, Acquired, res.Outcome)
	got, _ := m.Get("a.txt")
	assert.Equal(t, model.LockExclusive, got.Type)
}

func TestExpiredLockAllowsNewAcquire(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("report.docx", nodeID(1), model.LockExclusive, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	res := m.Acquire("report.docx", nodeID(2), model.LockExclusive, 0)
	assert.Equal(t, Acquired, res.Outcome)
}

func TestReleaseOnlyByHolder(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("a.txt", nodeID(1), model.LockExclusive, 0)
	assert.False(t, m.Release("a.txt", nodeID(2)))
	assert.True(t, m.Release("a.txt", nodeID(1)))
	_, ok := m.Get("a.txt")
	assert.False(t, ok)
}

func TestForceReleaseRemovesUnconditionally(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("a.txt", nodeID(1), model.LockExclusive, 0)
	assert.True(t, m.ForceRelease("a.txt"))
	assert.False(t, m.ForceRelease("a.txt"))
}

func TestExtendRejectsOutOfRangeMinutes(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("a.txt", nodeID(1), model.LockExclusive, 0)
	assert.False(t, m.Extend("a.txt", nodeID(1), 0))
	assert.False(t, m.Extend("a.txt", nodeID(1), 1441))
	assert.True(t, m.Extend("a.txt", nodeID(1), 60))
}

func TestExtendRequiresMatchingUnexpiredHolder(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("a.txt", nodeID(1), model.LockExclusive, 0)
	assert.False(t, m.Extend("a.txt", nodeID(2), 5))

	m.Acquire("b.txt", nodeID(1), model.LockExclusive, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, m.Extend("b.txt", nodeID(1), 5))
}

func TestRemoteApplyNewerLockWins(t *testing.T) {
	t.Parallel()
	m := NewManager()
	now := time.Now()
	older := FileLock{Path: "p", Holder: nodeID(1), AcquiredAt: now, ExpiresAt: now.Add(time.Hour)}
	newer := FileLock{Path: "p", Holder: nodeID(2), AcquiredAt: now.Add(time.Second), ExpiresAt: now.Add(time.Hour)}

	m.RemoteApply(older)
	m.RemoteApply(newer)
	got, ok := m.Get("p")
	assert.True(t, ok)
	assert.Equal(t, nodeID(2), got.Holder)

	// An older remote lock arriving after a newer one is already installed
	// must not replace it.
	m.RemoteApply(older)
	got, _ = m.Get("p")
	assert.Equal(t, nodeID(2), got.Holder)
}

func TestRemoteApplyReplacesExpiredLocal(t *testing.T) {
	t.Parallel()
	m := NewManager()
	now := time.Now()
	expired := FileLock{Path: "p", Holder: nodeID(1), AcquiredAt: now, ExpiresAt: now.Add(-time.Minute)}
	m.locks["p"] = expired

	incoming := FileLock{Path: "p", Holder: nodeID(2), AcquiredAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)}
	m.RemoteApply(incoming)
	got, ok := m.Get("p")
	assert.True(t, ok)
	assert.Equal(t, nodeID(2), got.Holder)
}

func TestCleanupExpiredCountsOnlyExpired(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("live.txt", nodeID(1), model.LockExclusive, time.Hour)
	m.Acquire("dead.txt", nodeID(1), model.LockExclusive, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	n := m.CleanupExpired()
	assert.Equal(t, 1, n)
	_, liveOK := m.Get("live.txt")
	assert.True(t, liveOK)
}

func TestSummaryCountsByType(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Acquire("a.txt", nodeID(1), model.LockAdvisory, 0)
	m.Acquire("b.txt", nodeID(2), model.LockExclusive, 0)

	s := m.Summary()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Advisory)
	assert.Equal(t, 1, s.Exclusive)
	assert.NotNil(t, s.SoonestExpiringAt)
}

func TestRegistryIsolatesDrives(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	var d1, d2 model.DriveID
	d1[0], d2[0] = 1, 2

	r.For(d1).Acquire("a.txt", nodeID(1), model.LockExclusive, time.Millisecond)
	r.For(d2).Acquire("a.txt", nodeID(2), model.LockExclusive, time.Hour)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, r.CleanupExpired())
	_, ok := r.For(d2).Get("a.txt")
	assert.True(t, ok)
}
