// Package rbac implements the RBAC engine (C5): resolving a principal's
// effective permission set for a (subject, workspace, resource) triple
// from role assignments, and intersecting it with an API token's scope
// when the caller authenticated with one (spec section 4.3).
package rbac

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/db"
)

// Resource is the minimal shape the engine needs about the object an
// endpoint is acting on.
type Resource struct {
	ID             string
	ResourceTypeID string
	WorkspaceID    string
}

// Engine resolves permissions against a live transaction; it holds no
// state of its own so it is safe to share across requests.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// IsSuperAdmin reports whether user is the workspace's super-admin or
// holds a role carrying the super-admin permission in that workspace.
func (e *Engine) IsSuperAdmin(ctx context.Context, tx *gorm.DB, userID, workspaceID string) (bool, error) {
	var ws db.Workspace
	if err := tx.WithContext(ctx).Where("id = ?", workspaceID).First(&ws).Error; err != nil {
		return false, apierror.Server(err)
	}
	if ws.SuperAdminUserID == userID {
		return true, nil
	}

	var count int64
	err := tx.WithContext(ctx).
		Table("role_allow_permission_resource_types rt").
		Joins("JOIN permissions p ON p.id = rt.permission_id").
		Joins("JOIN workspace_users wu ON wu.role_id = rt.role_id").
		Where("wu.user_id = ? AND wu.workspace_id = ? AND p.name = ?", userID, workspaceID, "SuperAdmin").
		Count(&count).Error
	if err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

// UserPermissions returns the set of permission IDs granted to user in
// workspace for the given resource, via every role the user holds there.
// A permission granted on the resource's whole type and a permission
// granted on this specific resource ID are both included.
func (e *Engine) UserPermissions(ctx context.Context, tx *gorm.DB, userID string, resource Resource) (map[string]bool, error) {
	granted := make(map[string]bool)

	var byType []db.RoleAllowPermissionResourceType
	err := tx.WithContext(ctx).
		Table("role_allow_permission_resource_types rt").
		Joins("JOIN workspace_users wu ON wu.role_id = rt.role_id").
		Where("wu.user_id = ? AND wu.workspace_id = ? AND rt.resource_type_id = ?", userID, resource.WorkspaceID, resource.ResourceTypeID).
		Find(&byType).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	for _, r := range byType {
		granted[r.PermissionID] = true
	}

	var byResource []db.RoleAllowPermissionResource
	err = tx.WithContext(ctx).
		Table("role_allow_permission_resources rr").
		Joins("JOIN workspace_users wu ON wu.role_id = rr.role_id").
		Where("wu.user_id = ? AND wu.workspace_id = ? AND rr.resource_id = ?", userID, resource.WorkspaceID, resource.ID).
		Find(&byResource).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	for _, r := range byResource {
		granted[r.PermissionID] = true
	}

	return granted, nil
}

// IntersectApiTokenScope narrows a user-derived permission set down to
// what an API token additionally allows, per spec section 4.3: a
// permission survives only if the token's snapshot for
// "{workspace}:{permission}" is an Include set containing resource.ID, or
// an Exclude set that does NOT contain it.
func IntersectApiTokenScope(userPerms map[string]bool, token *cache.ApiTokenData, workspaceID string, resource Resource) map[string]bool {
	if token == nil {
		return userPerms
	}

	out := make(map[string]bool, len(userPerms))
	for permID := range userPerms {
		key := fmt.Sprintf("%s:%s", workspaceID, permID)
		scope, ok := token.Permissions[key]
		if !ok {
			continue
		}
		switch scope.Type {
		case "include":
			if contains(scope.Resources, resource.ID) {
				out[permID] = true
			}
		case "exclude":
			if !contains(scope.Resources, resource.ID) {
				out[permID] = true
			}
		}
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Authorize is the check an endpoint with a ResourcePermissionAuthenticator
// tag runs: it must find permissionName present in the effective set, or
// the caller must be super-admin.
func (e *Engine) Authorize(ctx context.Context, tx *gorm.DB, userID string, isApiTokenSuperAdmin bool, apiToken *cache.ApiTokenData, resource Resource, permissionName string) error {
	superAdmin, err := e.IsSuperAdmin(ctx, tx, userID, resource.WorkspaceID)
	if err != nil {
		return err
	}
	if superAdmin && (apiToken == nil || isApiTokenSuperAdmin) {
		return nil
	}

	var perm db.Permission
	if err := tx.WithContext(ctx).Where("name = ?", permissionName).First(&perm).Error; err != nil {
		return apierror.Server(fmt.Errorf("unknown permission %q: %w", permissionName, err))
	}

	granted, err := e.UserPermissions(ctx, tx, userID, resource)
	if err != nil {
		return err
	}
	granted = IntersectApiTokenScope(granted, apiToken, resource.WorkspaceID, resource)

	if !granted[perm.ID] {
		return apierror.New(apierror.CodeUnauthorized, fmt.Sprintf("missing permission %q", permissionName))
	}
	return nil
}
