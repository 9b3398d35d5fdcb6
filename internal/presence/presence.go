// Package presence is C14: per-drive online users and a bounded activity
// feed. Grounded on original_source/src-tauri/src/core/presence.rs.
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foldsync/core/internal/model"
)

const activityLimit = 200

// IdleThreshold is the default duration of inactivity after which a user's
// status moves from Online to Away.
const IdleThreshold = 5 * time.Minute

// UserPresence is one user's online/activity state.
type UserPresence struct {
	NodeID          model.NodeID
	Status          model.PresenceStatus
	JoinedAt        time.Time
	LastSeen        time.Time
	CurrentActivity string
}

// ActivityKind names the kind of recorded activity.
type ActivityKind string

const (
	ActivityFileModified ActivityKind = "FileModified"
	ActivityFileDeleted  ActivityKind = "FileDeleted"
	ActivityUserJoined   ActivityKind = "UserJoined"
	ActivityUserLeft     ActivityKind = "UserLeft"
	ActivityLockAcquired ActivityKind = "LockAcquired"
	ActivityConflict     ActivityKind = "ConflictDetected"
)

// ActivityEntry is one entry of a drive's bounded activity feed.
type ActivityEntry struct {
	ID        string
	Kind      ActivityKind
	User      model.NodeID
	Path      string
	Timestamp time.Time
	Details   string
}

// Manager is one drive's presence state.
type Manager struct {
	mu         sync.Mutex
	users      map[model.NodeID]*UserPresence
	activities []ActivityEntry // newest first, bounded
}

func NewManager() *Manager {
	return &Manager{users: make(map[model.NodeID]*UserPresence)}
}

// Heartbeat refreshes a user's last-seen time and marks them Online,
// creating their presence record on first contact.
func (m *Manager) Heartbeat(user model.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	u, ok := m.users[user]
	if !ok {
		u = &UserPresence{NodeID: user, JoinedAt: now}
		m.users[user] = u
	}
	u.LastSeen = now
	u.Status = model.StatusOnline
}

// SetActivity updates a user's current activity string (e.g. "editing
// notes.md").
func (m *Manager) SetActivity(user model.NodeID, activity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[user]; ok {
		u.CurrentActivity = activity
	}
}

// SetOffline marks a user explicitly offline (e.g. on clean disconnect).
func (m *Manager) SetOffline(user model.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[user]; ok {
		u.Status = model.StatusOffline
	}
}

// Online returns every user currently tracked, online or not.
func (m *Manager) Online() []UserPresence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UserPresence, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out
}

// UpdateIdle moves any user whose last heartbeat is older than threshold
// from Online to Away, returning the count changed. Invoked by the Janitor
// (C17).
func (m *Manager) UpdateIdle(threshold time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := 0
	for _, u := range m.users {
		if u.Status == model.StatusOnline && now.Sub(u.LastSeen) > threshold {
			u.Status = model.StatusAway
			n++
		}
	}
	return n
}

// RecordActivity pushes a new activity entry to the front of the bounded
// feed, dropping the oldest entry past activityLimit.
func (m *Manager) RecordActivity(kind ActivityKind, user model.NodeID, path, details string) ActivityEntry {
	entry := ActivityEntry{
		ID: uuid.NewString(), Kind: kind, User: user, Path: path,
		Timestamp: time.Now(), Details: details,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append([]ActivityEntry{entry}, m.activities...)
	if len(m.activities) > activityLimit {
		m.activities = m.activities[:activityLimit]
	}
	return entry
}

// Activities returns the feed, optionally filtered by user and/or path
// (either may be the zero value to skip that filter).
func (m *Manager) Activities(user *model.NodeID, path string) []ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActivityEntry, 0, len(m.activities))
	for _, a := range m.activities {
		if user != nil && a.User != *user {
			continue
		}
		if path != "" && a.Path != path {
			continue
		}
		out = append(out, a)
	}
	return out
}

// CleanupActivities drops activity entries older than cutoff, returning the
// count removed. Invoked by the Janitor (C17).
func (m *Manager) CleanupActivities(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.activities[:0:0]
	removed := 0
	for _, a := range m.activities {
		if a.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.activities = kept
	return removed
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

// CleanupActivities sweeps every drive's activity feed.
func (r *Registry) CleanupActivities(cutoff time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, m := range r.managers {
		total += m.CleanupActivities(cutoff)
	}
	return total
}

// UpdateIdle updates idle status across every drive's presence manager.
func (r *Registry) UpdateIdle(threshold time.Duration) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, m := range r.managers {
		total += m.UpdateIdle(threshold)
	}
	return total
}
