// Package lock is C12: the per-drive path→lock map with advisory/exclusive
// semantics, TTL expiry, and remote-apply ordering. Grounded on
// original_source/src-tauri/src/core/locking.rs.
package lock

import (
	"sync"
	"time"

	"github.com/foldsync/core/internal/model"
)

// DefaultTTL is the lock lifetime applied when Acquire is called without an
// explicit duration.
const DefaultTTL = 30 * time.Minute

// FileLock is one path's current lock state.
type FileLock struct {
	Path       string
	Holder     model.NodeID
	Type       model.LockType
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Reason     string
}

func (l FileLock) expired(now time.Time) bool { return now.After(l.ExpiresAt) }

// Outcome is the result of an Acquire call.
type Outcome int

const (
	Acquired Outcome = iota
	AcquiredWithWarning
	Denied
)

// AcquireResult carries the outcome plus context for the caller/UI.
type AcquireResult struct {
	Outcome Outcome
	Lock    FileLock
	Warning string
	Denied  *FileLock // the conflicting lock, when Outcome == Denied
}

// Manager is one drive's lock table.
type Manager struct {
	mu    sync.RWMutex
	locks map[string]FileLock
}

func NewManager() *Manager {
	return &Manager{locks: make(map[string]FileLock)}
}

func (m *Manager) sweepLocked(now time.Time) {
	for path, l := range m.locks {
		if l.expired(now) {
			delete(m.locks, path)
		}
	}
}

// Acquire implements the acquire decision table from spec.md §4.11.
func (m *Manager) Acquire(path string, holder model.NodeID, lockType model.LockType, ttl time.Duration) AcquireResult {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)

	current, exists := m.locks[path]
	newLock := FileLock{Path: path, Holder: holder, Type: lockType, AcquiredAt: now, ExpiresAt: now.Add(ttl)}

	if !exists {
		m.locks[path] = newLock
		return AcquireResult{Outcome: Acquired, Lock: newLock}
	}
	if current.Holder == holder {
		m.locks[path] = newLock
		return AcquireResult{Outcome: Acquired, Lock: newLock}
	}

	switch {
	case current.Type == model.LockExclusive:
		c := current
		return AcquireResult{Outcome: Denied, Denied: &c}
	case current.Type == model.LockAdvisory && lockType == model.LockExclusive:
		c := current
		return AcquireResult{Outcome: Denied, Denied: &c}
	default: // Advisory, Advisory
		return AcquireResult{
			Outcome: AcquiredWithWarning,
			Lock:    current,
			Warning: "file already has an advisory lock held by " + current.Holder.Short(),
		}
	}
}

// Release removes the lock at path iff holder currently owns it.
func (m *Manager) Release(path string, holder model.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.locks[path]
	if !exists || current.Holder != holder {
		return false
	}
	delete(m.locks, path)
	return true
}

// ForceRelease removes the lock at path unconditionally. Per the design's
// §9 note, this takes the write lock for its whole duration so it always
// wins a race against a concurrent Extend.
func (m *Manager) ForceRelease(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.locks[path]; !exists {
		return false
	}
	delete(m.locks, path)
	return true
}

// Extend moves the lock's expiry to now + minutes iff holder matches and
// the lock has not already expired. minutes must be in [1, 1440].
func (m *Manager) Extend(path string, holder model.NodeID, minutes int) bool {
	if minutes < 1 || minutes > 1440 {
		return false
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.locks[path]
	if !exists || current.Holder != holder || current.expired(now) {
		return false
	}
	current.ExpiresAt = now.Add(time.Duration(minutes) * time.Minute)
	m.locks[path] = current
	return true
}

// RemoteApply installs an incoming lock from a gossip message: if there is
// no live local lock, or the incoming one is newer (later AcquiredAt), it
// replaces the local state; otherwise the local lock is kept.
func (m *Manager) RemoteApply(incoming FileLock) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.locks[incoming.Path]
	if !exists || current.expired(now) || incoming.AcquiredAt.After(current.AcquiredAt) {
		m.locks[incoming.Path] = incoming
	}
}

// RemoteRelease removes the local lock for path if it matches the holder
// being released remotely.
func (m *Manager) RemoteRelease(path string, holder model.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, exists := m.locks[path]; exists && current.Holder == holder {
		delete(m.locks, path)
	}
}

// Get returns the current lock at path, if any and unexpired.
func (m *Manager) Get(path string) (FileLock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locks[path]
	if ok && l.expired(time.Now()) {
		return FileLock{}, false
	}
	return l, ok
}

// CleanupExpired sweeps expired locks, returning the count removed. Invoked
// by the Janitor (C17) every 5 minutes by default.
func (m *Manager) CleanupExpired() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for path, l := range m.locks {
		if l.expired(now) {
			delete(m.locks, path)
			n++
		}
	}
	return n
}

// Summary is the read model consumed by the (out-of-scope) UI, supplemented
// from original_source's locking.rs LockSummary.
type Summary struct {
	Total             int
	Advisory          int
	Exclusive         int
	SoonestExpiringAt *time.Time
}

// Summary computes aggregate counts over the current lock table.
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Summary
	now := time.Now()
	for _, l := range m.locks {
		if l.expired(now) {
			continue
		}
		s.Total++
		if l.Type == model.LockAdvisory {
			s.Advisory++
		} else {
			s.Exclusive++
		}
		if s.SoonestExpiringAt == nil || l.ExpiresAt.Before(*s.SoonestExpiringAt) {
			exp := l.ExpiresAt
			s.SoonestExpiringAt = &exp
		}
	}
	return s
}

// Registry owns one Manager per drive.
type Registry struct {
	mu       sync.RWMutex
	managers map[model.DriveID]*Manager
}

func NewRegistry() *Registry { return &Registry{managers: make(map[model.DriveID]*Manager)} }

func (r *Registry) For(drive model.DriveID) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[drive]
	if !ok {
		m = NewManager()
		r.managers[drive] = m
	}
	return m
}

// CleanupExpired sweeps every drive's lock table, returning the total
// removed across all drives.
func (r *Registry) CleanupExpired() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, m := range r.managers {
		total += m.CleanupExpired()
	}
	return total
}
