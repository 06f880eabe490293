// Package managedurl is the gorm-backed repository for the managed-URL
// ingress routing rule (spec section 4.9). ManagedURL has no workspace_id
// column of its own — a route's workspace is reached by joining through
// its domain to workspace_domains, so every query here joins that table
// rather than filtering a local column.
package managedurl

import (
	"context"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

// workspaceScoped returns a query joining managed_urls to
// workspace_domains on domain_id, filtered to workspaceID.
func (r *Repository) workspaceScoped(ctx context.Context, tx *gorm.DB, workspaceID string) *gorm.DB {
	return tx.WithContext(ctx).Model(&db.ManagedURL{}).
		Joins("JOIN workspace_domains ON workspace_domains.domain_id = managed_urls.domain_id").
		Where("workspace_domains.workspace_id = ?", workspaceID)
}

// RouteTaken reports whether (sub_domain, domain, path) is already
// claimed, the application-level mirror of the UNIQUE(sub_domain,
// domain, path) index.
func (r *Repository) RouteTaken(ctx context.Context, tx *gorm.DB, subDomain, domainID, path string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.ManagedURL{}).
		Where("sub_domain = ? AND domain_id = ? AND path = ?", subDomain, domainID, path).
		Count(&count).Error
	if err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

// DomainOwnedByWorkspace confirms domainID is claimed by workspaceID
// before a managed URL is allowed to reference it.
func (r *Repository) DomainOwnedByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID, domainID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.WorkspaceDomain{}).
		Where("domain_id = ? AND workspace_id = ?", domainID, workspaceID).
		Count(&count).Error
	if err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, url *db.ManagedURL) error {
	if err := tx.WithContext(ctx).Create(url).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.ManagedURL, error) {
	var url db.ManagedURL
	err := r.workspaceScoped(ctx, tx, workspaceID).Where("managed_urls.id = ?", id).First(&url).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "managed url not found")
		}
		return nil, apierror.Server(err)
	}
	return &url, nil
}

func (r *Repository) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.ManagedURL, error) {
	var urls []db.ManagedURL
	if err := r.workspaceScoped(ctx, tx, workspaceID).Find(&urls).Error; err != nil {
		return nil, apierror.Server(err)
	}
	return urls, nil
}

// UpdateTarget switches which downstream a route points at without
// changing its sub_domain/domain/path — the only mutable part of a
// managed URL (spec section 4.9).
func (r *Repository) UpdateTarget(ctx context.Context, tx *gorm.DB, url *db.ManagedURL) error {
	updates := map[string]interface{}{
		"kind":            url.Kind,
		"deployment_id":   url.DeploymentID,
		"deployment_port": url.DeploymentPort,
		"static_site_id":  url.StaticSiteID,
		"url":             url.URL,
		"http_only":       url.HTTPOnly,
		"permanent":       url.Permanent,
	}
	if err := tx.WithContext(ctx).Model(&db.ManagedURL{}).Where("id = ?", url.ID).Updates(updates).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// Delete removes a managed URL row outright; ManagedURL carries no
// deleted_at column, unlike the billable resource tables, since a
// routing rule has no audit-trail requirement once replaced.
func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	if err := tx.WithContext(ctx).Where("id = ?", id).Delete(&db.ManagedURL{}).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}
