// Package region is the gorm-backed repository for C8's region
// controller: BYOC region lookups and the status transitions its four
// scheduled jobs drive (spec section 4.6).
package region

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

// ActiveBYOC returns every active, non-deleted BYOC region (workspace_id
// set) for the daily connection probe.
func (r *Repository) ActiveBYOC(ctx context.Context, tx *gorm.DB) ([]db.DeploymentRegion, error) {
	var regions []db.DeploymentRegion
	err := tx.WithContext(ctx).
		Where("status = ? AND workspace_id IS NOT NULL AND deleted_at IS NULL", db.RegionStatusActive).
		Find(&regions).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return regions, nil
}

// Disconnected returns every disconnected, non-deleted BYOC region for
// the disconnected-region handler.
func (r *Repository) Disconnected(ctx context.Context, tx *gorm.DB) ([]db.DeploymentRegion, error) {
	var regions []db.DeploymentRegion
	err := tx.WithContext(ctx).
		Where("status = ? AND deleted_at IS NULL", db.RegionStatusDisconnected).
		Find(&regions).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return regions, nil
}

// RevocationCandidates returns every errored or deleted region still
// carrying an un-revoked Cloudflare certificate, for the revocation
// sweep.
func (r *Repository) RevocationCandidates(ctx context.Context, tx *gorm.DB) ([]db.DeploymentRegion, error) {
	var regions []db.DeploymentRegion
	err := tx.WithContext(ctx).
		Where("status IN ? AND cloudflare_certificate_id != '' AND certificate_revoked = false", []db.RegionStatus{db.RegionStatusErrored, db.RegionStatusDeleted}).
		Find(&regions).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return regions, nil
}

// MarkDisconnected flips a region to disconnected, stamping
// disconnected_at once, on the first probe failure.
func (r *Repository) MarkDisconnected(ctx context.Context, tx *gorm.DB, regionID string) error {
	now := time.Now().UTC()
	err := tx.WithContext(ctx).Model(&db.DeploymentRegion{}).
		Where("id = ?", regionID).
		Updates(map[string]interface{}{"status": db.RegionStatusDisconnected, "disconnected_at": now}).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// MarkActive flips a region back to active and clears disconnected_at,
// on a successful re-probe.
func (r *Repository) MarkActive(ctx context.Context, tx *gorm.DB, regionID string) error {
	err := tx.WithContext(ctx).Model(&db.DeploymentRegion{}).
		Where("id = ?", regionID).
		Updates(map[string]interface{}{"status": db.RegionStatusActive, "disconnected_at": nil}).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// MarkDeleted soft-deletes a region after its deployments have been
// cascade-deleted.
func (r *Repository) MarkDeleted(ctx context.Context, tx *gorm.DB, regionID string) error {
	now := time.Now().UTC()
	err := tx.WithContext(ctx).Model(&db.DeploymentRegion{}).
		Where("id = ?", regionID).
		Updates(map[string]interface{}{"status": db.RegionStatusDeleted, "deleted_at": now}).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// MarkCertificateRevoked records that the region's Cloudflare
// certificate has been revoked at the CA.
func (r *Repository) MarkCertificateRevoked(ctx context.Context, tx *gorm.DB, regionID string) error {
	err := tx.WithContext(ctx).Model(&db.DeploymentRegion{}).
		Where("id = ?", regionID).
		Update("certificate_revoked", true).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// DeploymentsInRegion returns every non-deleted deployment's ID and
// workspace for the cascade-delete step.
func (r *Repository) DeploymentsInRegion(ctx context.Context, tx *gorm.DB, regionID string) ([]db.Deployment, error) {
	var deployments []db.Deployment
	err := tx.WithContext(ctx).
		Where("region_id = ? AND deleted_at IS NULL", regionID).
		Find(&deployments).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return deployments, nil
}

// SoftDeleteDeployment marks one deployment deleted so the reconciler
// tears its cluster objects down on the next pass.
func (r *Repository) SoftDeleteDeployment(ctx context.Context, tx *gorm.DB, deploymentID string) error {
	now := time.Now().UTC()
	err := tx.WithContext(ctx).Model(&db.Deployment{}).
		Where("id = ?", deploymentID).
		Updates(map[string]interface{}{"status": db.DeploymentStatusDeleted, "deleted_at": now}).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// Create inserts a new BYOC region row in RegionStatusCreated, awaiting
// the controller's connection probe to flip it active.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, region *db.DeploymentRegion) error {
	if err := tx.WithContext(ctx).Create(region).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// GetByID returns a single non-deleted region scoped to workspaceID; a
// nil workspaceID matches first-party Patr regions instead of BYOC ones.
func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, regionID string) (*db.DeploymentRegion, error) {
	var region db.DeploymentRegion
	err := tx.WithContext(ctx).
		Where("id = ? AND (workspace_id = ? OR workspace_id IS NULL) AND deleted_at IS NULL", regionID, workspaceID).
		First(&region).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "region not found")
		}
		return nil, apierror.Server(err)
	}
	return &region, nil
}

// List returns every non-deleted region visible to workspaceID: its own
// BYOC regions plus every first-party Patr region.
func (r *Repository) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.DeploymentRegion, error) {
	var regions []db.DeploymentRegion
	err := tx.WithContext(ctx).
		Where("(workspace_id = ? OR workspace_id IS NULL) AND deleted_at IS NULL", workspaceID).
		Find(&regions).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	return regions, nil
}

// SoftDelete marks a BYOC region deleted; the caller is responsible for
// cascade-deleting its deployments first (see MarkDeleted, used by the
// controller's own disconnect-timeout path for the same transition).
func (r *Repository) SoftDelete(ctx context.Context, tx *gorm.DB, regionID string) error {
	return r.MarkDeleted(ctx, tx, regionID)
}

// WorkspaceAlertEmails returns the notification recipients for a BYOC
// region's owning workspace.
func (r *Repository) WorkspaceAlertEmails(ctx context.Context, tx *gorm.DB, workspaceID string) ([]string, error) {
	var ws db.Workspace
	if err := tx.WithContext(ctx).Where("id = ?", workspaceID).First(&ws).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apierror.Server(err)
	}
	return []string(ws.AlertEmails), nil
}
