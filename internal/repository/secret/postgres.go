// Package secret is the gorm-backed repository for the Secret row (spec
// section 4.4.4). The secret's value never lives in Postgres — only its
// metadata row does; the value lives in the external KV vault keyed by
// "{workspace}/{secret_id}" (internal/vault).
package secret

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

func (r *Repository) NameTaken(ctx context.Context, tx *gorm.DB, workspaceID, name string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.Secret{}).
		Where("workspace_id = ? AND name = ? AND deleted_at IS NULL", workspaceID, name).
		Count(&count).Error
	if err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

func (r *Repository) CountSecrets(ctx context.Context, tx *gorm.DB, workspaceID string) (int, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.Secret{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Count(&count).Error
	if err != nil {
		return 0, apierror.Server(err)
	}
	return int(count), nil
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, s *db.Secret) error {
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.Secret, error) {
	var s db.Secret
	err := tx.WithContext(ctx).
		Where("id = ? AND workspace_id = ? AND deleted_at IS NULL", id, workspaceID).
		First(&s).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "secret not found")
		}
		return nil, apierror.Server(err)
	}
	return &s, nil
}

func (r *Repository) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.Secret, error) {
	var secrets []db.Secret
	err := tx.WithContext(ctx).Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).Find(&secrets).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return secrets, nil
}

// SoftDeleteAndTombstone writes s.Name (the caller's
// "patr-deleted:{id}@{name}" tombstone) in the same statement as the
// soft-delete, per spec section 4.4.4's delete step — this frees the
// (workspace, name) slot for reuse while keeping the row for audit.
func (r *Repository) SoftDeleteAndTombstone(ctx context.Context, tx *gorm.DB, s *db.Secret, deletedAt *time.Time) error {
	updates := map[string]interface{}{
		"name":       s.Name,
		"deleted_at": deletedAt,
	}
	if err := tx.WithContext(ctx).Model(&db.Secret{}).Where("id = ?", s.ID).Updates(updates).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}
