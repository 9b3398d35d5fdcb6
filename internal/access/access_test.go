package access

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

func TestOwnerBypassesEverything(t *testing.T) {
	t.Parallel()
	owner := nodeID(1)
	acl := New(owner)
	assert.True(t, acl.Check(owner, "any/path.txt", model.PermissionAdmin))
}

func TestMissingRuleDenies(t *testing.T) {
	t.Parallel()
	acl := New(nodeID(1))
	assert.False(t, acl.Check(nodeID(2), "a.txt", model.PermissionRead))
}

func TestExpiredRuleDenies(t *testing.T) {
	t.Parallel()
	acl := New(nodeID(1))
	past := time.Now().Add(-time.Hour)
	acl.Grant(nodeID(2), AccessRule{Permission: model.PermissionAdmin, ExpiresAt: &past})
	assert.False(t, acl.Check(nodeID(2), "a.txt", model.PermissionRead))
}

func TestBaseRuleGrantsUpToItsLevel(t *testing.T) {
	t.Parallel()
	acl := New(nodeID(1))
	acl.Grant(nodeID(2), AccessRule{Permission: model.PermissionWrite})
	assert.True(t, acl.Check(nodeID(2), "a.txt", model.PermissionRead))
	assert.True(t, acl.Check(nodeID(2), "a.txt", model.PermissionWrite))
	assert.False(t, acl.Check(nodeID(2), "a.txt", model.PermissionManage))
}

func TestPathRuleLastMatchWins(t *testing.T) {
	t.Parallel()
	acl := New(nodeID(1))
	user := nodeID(2)
	acl.Grant(user, AccessRule{Permission: model.PermissionWrite})
	acl.AddPathRule(PathRule{GlobPattern: "secrets/**", Deny: true})
	assert.False(t, acl.Check(user, "secrets/passwords.txt", model.PermissionRead))

	acl.AddPathRule(PathRule{GlobPattern: "secrets/public/*", Permission: model.PermissionRead})
	assert.True(t, acl.Check(user, "secrets/public/readme.txt", model.PermissionRead))
	assert.False(t, acl.Check(user, "secrets/private/key.pem", model.PermissionRead))
}

func TestPathRulePermissionCanOnlyLowerEffective(t *testing.T) {
	t.Parallel()
	acl := New(nodeID(1))
	user := nodeID(2)
	acl.Grant(user, AccessRule{Permission: model.PermissionWrite})
	acl.AddPathRule(PathRule{GlobPattern: "docs/*", Permission: model.PermissionAdmin})
	assert.True(t, acl.Check(user, "docs/a.txt", model.PermissionWrite))
	assert.False(t, acl.Check(user, "docs/a.txt", model.PermissionAdmin))
}

func TestDoubleStarGlobMatchesAnyDepth(t *testing.T) {
	t.Parallel()
	assert.True(t, matchGlob("a/**", "a/b/c/d.txt"))
	assert.True(t, matchGlob("a/**", "a"))
	assert.False(t, matchGlob("a/**", "b/c.txt"))
}

func TestSingleStarGlobMatchesWithinSegment(t *testing.T) {
	t.Parallel()
	assert.True(t, matchGlob("docs/*.txt", "docs/readme.txt"))
	assert.False(t, matchGlob("docs/*.txt", "docs/sub/readme.txt"))
}

func TestCleanupExpiredRemovesOnlyExpiredRules(t *testing.T) {
	t.Parallel()
	acl := New(nodeID(1))
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	acl.Grant(nodeID(2), AccessRule{Permission: model.PermissionRead, ExpiresAt: &past})
	acl.Grant(nodeID(3), AccessRule{Permission: model.PermissionRead, ExpiresAt: &future})
	acl.Grant(nodeID(4), AccessRule{Permission: model.PermissionRead})

	n := acl.CleanupExpired()
	assert.Equal(t, 1, n)
	assert.False(t, acl.Check(nodeID(2), "a.txt", model.PermissionRead))
	assert.True(t, acl.Check(nodeID(3), "a.txt", model.PermissionRead))
	assert.True(t, acl.Check(nodeID(4), "a.txt", model.PermissionRead))
}

func TestRequireReturnsAccessDeniedError(t *testing.T) {
	t.Parallel()
	acl := New(nodeID(1))
	err := acl.Require(nodeID(2), "a.txt", model.PermissionRead)
	assert.Error(t, err)
}
