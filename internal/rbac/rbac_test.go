package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/rbac"
)

func TestIntersectApiTokenScope_NilTokenPassesThrough(t *testing.T) {
	userPerms := map[string]bool{"perm-1": true, "perm-2": true}
	out := rbac.IntersectApiTokenScope(userPerms, nil, "ws-1", rbac.Resource{ID: "res-1"})
	assert.Equal(t, userPerms, out)
}

func TestIntersectApiTokenScope_IncludeRequiresResourceInSet(t *testing.T) {
	token := &cache.ApiTokenData{
		Permissions: map[string]cache.TokenScopeSnapshot{
			"ws-1:perm-1": {Type: "include", Resources: []string{"res-1"}},
		},
	}
	userPerms := map[string]bool{"perm-1": true}

	inScope := rbac.IntersectApiTokenScope(userPerms, token, "ws-1", rbac.Resource{ID: "res-1"})
	assert.True(t, inScope["perm-1"])

	outOfScope := rbac.IntersectApiTokenScope(userPerms, token, "ws-1", rbac.Resource{ID: "res-2"})
	assert.False(t, outOfScope["perm-1"])
}

func TestIntersectApiTokenScope_ExcludeBlocksResourceInSet(t *testing.T) {
	token := &cache.ApiTokenData{
		Permissions: map[string]cache.TokenScopeSnapshot{
			"ws-1:perm-1": {Type: "exclude", Resources: []string{"res-1"}},
		},
	}
	userPerms := map[string]bool{"perm-1": true}

	blocked := rbac.IntersectApiTokenScope(userPerms, token, "ws-1", rbac.Resource{ID: "res-1"})
	assert.False(t, blocked["perm-1"])

	allowed := rbac.IntersectApiTokenScope(userPerms, token, "ws-1", rbac.Resource{ID: "res-2"})
	assert.True(t, allowed["perm-1"])
}

func TestIntersectApiTokenScope_PermissionNotInTokenSnapshotIsDropped(t *testing.T) {
	token := &cache.ApiTokenData{Permissions: map[string]cache.TokenScopeSnapshot{}}
	userPerms := map[string]bool{"perm-1": true}

	out := rbac.IntersectApiTokenScope(userPerms, token, "ws-1", rbac.Resource{ID: "res-1"})
	assert.Empty(t, out)
}
