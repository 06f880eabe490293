// Package staticsite is the gorm-backed repository for the StaticSite
// and StaticSiteUpload rows (spec section 4.5). Upload bytes themselves
// are out of scope here — see internal/service/staticsite's doc comment.
package staticsite

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
	err := tx.WithContext(ctx).Model(&db.StaticSite{}).
		Where("workspace_id = ? AND name = ? AND deleted_at IS NULL", workspaceID, name).
		Count(&count).Error
	if err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

func (r *Repository) CountSites(ctx context.Context, tx *gorm.DB, workspaceID string) (int, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.StaticSite{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Count(&count).Error
	if err != nil {
		return 0, apierror.Server(err)
	}
	return int(count), nil
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, site *db.StaticSite) error {
	if err := tx.WithContext(ctx).Create(site).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.StaticSite, error) {
	var site db.StaticSite
	err := tx.WithContext(ctx).
		Where("id = ? AND workspace_id = ? AND deleted_at IS NULL", id, workspaceID).
		First(&site).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "static site not found")
		}
		return nil, apierror.Server(err)
	}
	return &site, nil
}

func (r *Repository) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.StaticSite, error) {
	var sites []db.StaticSite
	err := tx.WithContext(ctx).Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).Find(&sites).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return sites, nil
}

// CreateUpload inserts a new upload history row.
func (r *Repository) CreateUpload(ctx context.Context, tx *gorm.DB, upload *db.StaticSiteUpload) error {
	if err := tx.WithContext(ctx).Create(upload).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// SetLiveUpload points a site's current_live_upload at uploadID, the
// step that makes an uploaded bundle actually served.
func (r *Repository) SetLiveUpload(ctx context.Context, tx *gorm.DB, siteID, uploadID string) error {
	err := tx.WithContext(ctx).Model(&db.StaticSite{}).
		Where("id = ?", siteID).
		Updates(map[string]interface{}{"current_live_upload": uploadID, "status": db.StaticSiteStatusActive}).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

func (r *Repository) ListUploads(ctx context.Context, tx *gorm.DB, siteID string) ([]db.StaticSiteUpload, error) {
	var uploads []db.StaticSiteUpload
	err := tx.WithContext(ctx).Where("static_site_id = ?", siteID).Order("created_at DESC").Find(&uploads).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return uploads, nil
}

func (r *Repository) SoftDelete(ctx context.Context, tx *gorm.DB, id string) error {
	now := time.Now()
	err := tx.WithContext(ctx).Model(&db.StaticSite{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": db.StaticSiteStatusDeleted, "deleted_at": &now}).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}
