// Package manageddatabase is the gorm-backed repository for the
// managed-database resource (spec section 4.8): the Resource/
// ManagedDatabase row pair. Provisioning and teardown themselves run in
// internal/reconciler's periodic sweep, not here — this package only
// ever writes the row.
package manageddatabase

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

func (r *Repository) CountDatabases(ctx context.Context, tx *gorm.DB, workspaceID string) (int, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.ManagedDatabase{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Count(&count).Error
	if err != nil {
		return 0, apierror.Server(err)
	}
	return int(count), nil
}

func (r *Repository) NameTaken(ctx context.Context, tx *gorm.DB, workspaceID, name string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.ManagedDatabase{}).
		Where("workspace_id = ? AND name = ? AND deleted_at IS NULL", workspaceID, name).
		Count(&count).Error
	if err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

// Create inserts the Resource row and the ManagedDatabase row, left in
// "creating" status for the reconciler's periodic sweep to pick up.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, resource *db.Resource, mdb *db.ManagedDatabase) error {
	txc := tx.WithContext(ctx)
	if err := txc.Create(resource).Error; err != nil {
		return apierror.Server(err)
	}
	if err := txc.Create(mdb).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.ManagedDatabase, error) {
	var mdb db.ManagedDatabase
	err := tx.WithContext(ctx).
		Where("id = ? AND workspace_id = ? AND deleted_at IS NULL", id, workspaceID).
		First(&mdb).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "managed database not found")
		}
		return nil, apierror.Server(err)
	}
	return &mdb, nil
}

func (r *Repository) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.ManagedDatabase, error) {
	var dbs []db.ManagedDatabase
	err := tx.WithContext(ctx).Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).Find(&dbs).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return dbs, nil
}

// MarkForDeletion soft-deletes the row and flips status to "deleted" so
// the reconciler's sweep tears down the underlying chart release
// (internal/reconciler's provisionPendingDatabases also selects this
// status, per its doc comment).
func (r *Repository) MarkForDeletion(ctx context.Context, tx *gorm.DB, id string, deletedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     db.ManagedDatabaseStatusDeleted,
		"deleted_at": deletedAt,
	}
	err := tx.WithContext(ctx).Model(&db.ManagedDatabase{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}
