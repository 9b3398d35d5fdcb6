// Package access is C5: ACL evaluation over users × paths with deny and
// expiry semantics. Grounded on
// original_source/src-tauri/src/crypto/access.rs for the exact decision
// procedure (last-path-rule-match wins, owner bypasses everything).
package access

import (
	"strings"
	"sync"
	"time"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/model"
)

// AccessRule is one user's grant on a drive.
type AccessRule struct {
	Permission    model.Permission
	GrantedAt     time.Time
	GrantedByNode model.NodeID
	ExpiresAt     *time.Time
	Note          string
}

func (r AccessRule) expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// PathRule is one ordered pattern applied on top of a user's base rule.
type PathRule struct {
	GlobPattern string
	Permission  model.Permission
	Deny        bool
}

// ACL is one drive's access control list.
type ACL struct {
	mu         sync.RWMutex
	Owner      model.NodeID
	UserRules  map[model.NodeID]AccessRule
	PathRules  []PathRule
}

// New creates an empty ACL owned by owner.
func New(owner model.NodeID) *ACL {
	return &ACL{Owner: owner, UserRules: make(map[model.NodeID]AccessRule)}
}

// Grant installs or replaces a user's base access rule.
func (a *ACL) Grant(user model.NodeID, rule AccessRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.UserRules[user] = rule
}

// Revoke removes a user's base access rule entirely.
func (a *ACL) Revoke(user model.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.UserRules, user)
}

// AddPathRule appends a path rule to the ordered list. Declaration order
// matters: the last matching rule on a given path wins.
func (a *ACL) AddPathRule(rule PathRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PathRules = append(a.PathRules, rule)
}

// Check evaluates whether user may perform an operation requiring
// "required" on path, per the decision procedure:
//  1. owner always allowed.
//  2. missing/expired base rule -> deny.
//  3. fold path rules in order, last match wins (deny sticky until a later
//     allow-match resets it).
//  4. allow iff not denied and effective permission satisfies required.
func (a *ACL) Check(user model.NodeID, path string, required model.Permission) bool {
	if user == a.Owner {
		return true
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	base, ok := a.UserRules[user]
	if !ok || base.expired(time.Now()) {
		return false
	}

	effective := base.Permission
	denied := false
	for _, rule := range a.PathRules {
		if !matchGlob(rule.GlobPattern, path) {
			continue
		}
		if rule.Deny {
			denied = true
		} else {
			denied = false
			if rule.Permission < effective {
				effective = rule.Permission
			}
		}
	}
	return !denied && effective.Satisfies(required)
}

// CleanupExpired drops expired user rules, returning the count removed.
// Invoked by the Janitor (C17).
func (a *ACL) CleanupExpired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	n := 0
	for user, rule := range a.UserRules {
		if rule.expired(now) {
			delete(a.UserRules, user)
			n++
		}
	}
	return n
}

// matchGlob matches a segment-wise glob pattern against path. "**" matches
// any suffix of segments (including zero); "*" matches any run of
// characters within a single segment; anything else must match exactly.
func matchGlob(pattern, path string) bool {
	pSegs := splitPath(pattern)
	tSegs := splitPath(path)
	return matchSegments(pSegs, tSegs)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, target []string) bool {
	if len(pattern) == 0 {
		return len(target) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(pattern[1:], target) {
			return true
		}
		if len(target) == 0 {
			return false
		}
		return matchSegments(pattern, target[1:])
	}
	if len(target) == 0 {
		return false
	}
	if !matchSegment(pattern[0], target[0]) {
		return false
	}
	return matchSegments(pattern[1:], target[1:])
}

// matchSegment matches a single path segment against a pattern segment that
// may contain "*" wildcards (fixed prefix/suffix around each star).
func matchSegment(pattern, segment string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == segment
	}
	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(segment[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(segment, last) {
		return false
	}
	return true
}

// Require is Check for callers that need an ACCESS_DENIED apperr on failure.
func (a *ACL) Require(user model.NodeID, path string, required model.Permission) error {
	if a.Check(user, path, required) {
		return nil
	}
	return apperr.AccessDenied("user lacks %s on %s", required, path)
}
