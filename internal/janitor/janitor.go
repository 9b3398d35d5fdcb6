// Package janitor is C17: a periodic sweeper that runs the cleanup
// routines exposed by the lock, presence, conflict and access components.
// Grounded on fs/delta.go's DeltaLoop ticker pattern (poll interval,
// stoppable goroutine) generalized from "poll upstream for changes" to
// "periodically sweep expired state".
package janitor

import (
	"context"
	"time"

	"github.com/foldsync/core/internal/conflict"
	"github.com/foldsync/core/internal/lock"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/presence"
)

var log = logging.For("janitor")

// DefaultInterval is how often the Janitor sweeps by default.
const DefaultInterval = 5 * time.Minute

// ResolvedConflictRetention is how long resolved conflicts are kept before
// being swept away.
const ResolvedConflictRetention = 30 * 24 * time.Hour

// ActivityRetention is how long presence activity entries are kept.
const ActivityRetention = 168 * time.Hour

// IdleThreshold is how long a user's presence may go without a heartbeat
// before the Janitor demotes them to Away. Distinct from
// presence.IdleThreshold, which governs live status display rather than the
// periodic sweep.
const IdleThreshold = 15 * time.Minute

// ACLProvider is the subset of the access registry the Janitor needs; kept
// as an interface so callers can wire a per-drive ACL source of their
// choosing.
type ACLProvider interface {
	CleanupExpired() int
}

// Janitor periodically sweeps expired locks, stale presence activity,
// old resolved conflicts and expired access rules.
type Janitor struct {
	interval time.Duration
	locks    *lock.Registry
	presence *presence.Registry
	conflict *conflict.Registry
	acls     []ACLProvider

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Janitor. acls may be empty if no per-drive ACL registries
// need sweeping.
func New(locks *lock.Registry, pr *presence.Registry, cf *conflict.Registry, acls []ACLProvider) *Janitor {
	return &Janitor{
		interval: DefaultInterval,
		locks:    locks,
		presence: pr,
		conflict: cf,
		acls:     acls,
		done:     make(chan struct{}),
	}
}

// WithInterval overrides the default sweep interval.
func (j *Janitor) WithInterval(d time.Duration) *Janitor {
	j.interval = d
	return j
}

// AddACL registers an additional ACL provider to sweep (e.g. when a drive
// is joined after the Janitor has started).
func (j *Janitor) AddACL(p ACLProvider) {
	j.acls = append(j.acls, p)
}

// Start runs the sweep loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	go j.loop(ctx)
}

// Stop halts the sweep loop and waits for it to exit. It returns at once if
// Start was never called.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep runs one cleanup pass immediately; idempotent and safe to call
// concurrently with the background loop.
func (j *Janitor) Sweep() {
	now := time.Now()

	expiredLocks := j.locks.CleanupExpired()
	idled := j.presence.UpdateIdle(IdleThreshold)
	droppedActivity := j.presence.CleanupActivities(now.Add(-ActivityRetention))
	droppedConflicts := j.conflict.CleanupResolved(now.Add(-ResolvedConflictRetention))

	expiredRules := 0
	for _, a := range j.acls {
		expiredRules += a.CleanupExpired()
	}

	log.Debug().
		Int("expired_locks", expiredLocks).
		Int("idled_users", idled).
		Int("dropped_activity", droppedActivity).
		Int("dropped_conflicts", droppedConflicts).
		Int("expired_rules", expiredRules).
		Msg("janitor sweep complete")
}
