// Package apitoken is the gorm-backed repository for the user-scoped
// API-token CRUD surface (spec section 4.2, token structure
// patrv1.{secret}.{login_id}): the UserLogin/ApiToken row pair and their
// scope side tables.
package apitoken

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

// Create inserts the UserLogin/ApiToken row pair and every scope side
// table in one go, mirroring the deployment repository's Create shape.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, login *db.UserLogin, token *db.ApiToken, superAdminWorkspaces []string, scopeTypes []db.ApiTokenResourcePermissionsType, includes []db.ApiTokenResourcePermissionsInclude, excludes []db.ApiTokenResourcePermissionsExclude) error {
	txc := tx.WithContext(ctx)

	if err := txc.Create(login).Error; err != nil {
		return apierror.Server(err)
	}
	if err := txc.Create(token).Error; err != nil {
		return apierror.Server(err)
	}
	if len(superAdminWorkspaces) > 0 {
		rows := make([]db.ApiTokenWorkspaceSuperAdmin, len(superAdminWorkspaces))
		for i, wsID := range superAdminWorkspaces {
			rows[i] = db.ApiTokenWorkspaceSuperAdmin{TokenID: token.TokenID, WorkspaceID: wsID}
		}
		if err := txc.Create(&rows).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(scopeTypes) > 0 {
		if err := txc.Create(&scopeTypes).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(includes) > 0 {
		if err := txc.Create(&includes).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(excludes) > 0 {
		if err := txc.Create(&excludes).Error; err != nil {
			return apierror.Server(err)
		}
	}
	return nil
}

// List returns every non-revoked-or-revoked token a user owns; the
// caller (handler) decides whether to filter revoked ones out.
func (r *Repository) List(ctx context.Context, tx *gorm.DB, userID string) ([]db.ApiToken, error) {
	var tokens []db.ApiToken
	err := tx.WithContext(ctx).Where("user_id = ?", userID).Find(&tokens).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return tokens, nil
}

// GetByID fetches a token scoped to its owning user.
func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, userID, tokenID string) (*db.ApiToken, error) {
	var token db.ApiToken
	err := tx.WithContext(ctx).Where("token_id = ? AND user_id = ?", tokenID, userID).First(&token).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "api token not found")
		}
		return nil, apierror.Server(err)
	}
	return &token, nil
}

// UpdateScalars applies name/nbf/exp/allowed_ips updates directly.
func (r *Repository) UpdateScalars(ctx context.Context, tx *gorm.DB, token *db.ApiToken) error {
	if err := tx.WithContext(ctx).Model(&db.ApiToken{}).Where("token_id = ?", token.TokenID).Updates(token).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// ReplacePermissions deletes and reinserts a token's entire permission
// scope, the same replace-set pattern the deployment repository uses for
// its side tables.
func (r *Repository) ReplacePermissions(ctx context.Context, tx *gorm.DB, tokenID string, superAdminWorkspaces []string, scopeTypes []db.ApiTokenResourcePermissionsType, includes []db.ApiTokenResourcePermissionsInclude, excludes []db.ApiTokenResourcePermissionsExclude) error {
	txc := tx.WithContext(ctx)
	if err := txc.Where("token_id = ?", tokenID).Delete(&db.ApiTokenWorkspaceSuperAdmin{}).Error; err != nil {
		return apierror.Server(err)
	}
	if err := txc.Where("token_id = ?", tokenID).Delete(&db.ApiTokenResourcePermissionsType{}).Error; err != nil {
		return apierror.Server(err)
	}
	if err := txc.Where("token_id = ?", tokenID).Delete(&db.ApiTokenResourcePermissionsInclude{}).Error; err != nil {
		return apierror.Server(err)
	}
	if err := txc.Where("token_id = ?", tokenID).Delete(&db.ApiTokenResourcePermissionsExclude{}).Error; err != nil {
		return apierror.Server(err)
	}
	if len(superAdminWorkspaces) > 0 {
		rows := make([]db.ApiTokenWorkspaceSuperAdmin, len(superAdminWorkspaces))
		for i, wsID := range superAdminWorkspaces {
			rows[i] = db.ApiTokenWorkspaceSuperAdmin{TokenID: tokenID, WorkspaceID: wsID}
		}
		if err := txc.Create(&rows).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(scopeTypes) > 0 {
		if err := txc.Create(&scopeTypes).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(includes) > 0 {
		if err := txc.Create(&includes).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(excludes) > 0 {
		if err := txc.Create(&excludes).Error; err != nil {
			return apierror.Server(err)
		}
	}
	return nil
}

// Revoke stamps revoked_at; it never deletes the row, matching
// ApiToken's audit-trail shape (RevokedAt, not DeletedAt).
func (r *Repository) Revoke(ctx context.Context, tx *gorm.DB, tokenID string, revokedAt *time.Time) error {
	err := tx.WithContext(ctx).Model(&db.ApiToken{}).Where("token_id = ?", tokenID).
		Update("revoked_at", revokedAt).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// ScopeWorkspaceIDs returns the distinct workspace IDs a caller's
// existing token is scoped to (union of super-admin grants and
// permission-type rows), used by the update-token superset check.
func (r *Repository) ScopeWorkspaceIDs(ctx context.Context, tx *gorm.DB, tokenID string) ([]string, error) {
	set := map[string]bool{}

	var superAdmins []db.ApiTokenWorkspaceSuperAdmin
	if err := tx.WithContext(ctx).Where("token_id = ?", tokenID).Find(&superAdmins).Error; err != nil {
		return nil, apierror.Server(err)
	}
	for _, s := range superAdmins {
		set[s.WorkspaceID] = true
	}

	var scopeTypes []db.ApiTokenResourcePermissionsType
	if err := tx.WithContext(ctx).Where("token_id = ?", tokenID).Find(&scopeTypes).Error; err != nil {
		return nil, apierror.Server(err)
	}
	for _, s := range scopeTypes {
		set[s.WorkspaceID] = true
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}
