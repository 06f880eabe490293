// Package domain is the gorm-backed repository for a workspace's
// domains and the DNS records under the Patr-controlled ones (spec
// section 4.10).
package domain

import (
	"context"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

func (r *Repository) NameTaken(ctx context.Context, tx *gorm.DB, name string) (bool, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&db.Domain{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

func (r *Repository) CountDomains(ctx context.Context, tx *gorm.DB, workspaceID string) (int, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.WorkspaceDomain{}).Where("workspace_id = ?", workspaceID).Count(&count).Error
	if err != nil {
		return 0, apierror.Server(err)
	}
	return int(count), nil
}

// CreatePatrControlled inserts the Domain row, its PatrControlledDomain
// extension and the claiming WorkspaceDomain link in one go.
func (r *Repository) CreatePatrControlled(ctx context.Context, tx *gorm.DB, d *db.Domain, pcd *db.PatrControlledDomain, link *db.WorkspaceDomain) error {
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		return apierror.Server(err)
	}
	pcd.DomainID = d.ID
	if err := tx.WithContext(ctx).Create(pcd).Error; err != nil {
		return apierror.Server(err)
	}
	link.DomainID = d.ID
	if err := tx.WithContext(ctx).Create(link).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// CreateUserControlled inserts the Domain row, its UserControlledDomain
// extension and the claiming WorkspaceDomain link in one go.
func (r *Repository) CreateUserControlled(ctx context.Context, tx *gorm.DB, d *db.Domain, ucd *db.UserControlledDomain, link *db.WorkspaceDomain) error {
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		return apierror.Server(err)
	}
	ucd.DomainID = d.ID
	if err := tx.WithContext(ctx).Create(ucd).Error; err != nil {
		return apierror.Server(err)
	}
	link.DomainID = d.ID
	if err := tx.WithContext(ctx).Create(link).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// GetByID returns a domain's WorkspaceDomain claim row, the one place
// workspace scoping and verification state live (Domain itself has no
// workspace_id — see WorkspaceDomain).
func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, domainID string) (*db.Domain, *db.WorkspaceDomain, error) {
	var link db.WorkspaceDomain
	err := tx.WithContext(ctx).Where("domain_id = ? AND workspace_id = ?", domainID, workspaceID).First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, apierror.New(apierror.CodeResourceDoesNotExist, "domain not found")
		}
		return nil, nil, apierror.Server(err)
	}
	var d db.Domain
	if err := tx.WithContext(ctx).Where("id = ?", domainID).First(&d).Error; err != nil {
		return nil, nil, apierror.Server(err)
	}
	return &d, &link, nil
}

func (r *Repository) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.Domain, []db.WorkspaceDomain, error) {
	var links []db.WorkspaceDomain
	if err := tx.WithContext(ctx).Where("workspace_id = ?", workspaceID).Find(&links).Error; err != nil {
		return nil, nil, apierror.Server(err)
	}
	if len(links) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.DomainID
	}
	var domains []db.Domain
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&domains).Error; err != nil {
		return nil, nil, apierror.Server(err)
	}
	return domains, links, nil
}

func (r *Repository) PatrControlledExtension(ctx context.Context, tx *gorm.DB, domainID string) (*db.PatrControlledDomain, error) {
	var pcd db.PatrControlledDomain
	err := tx.WithContext(ctx).Where("domain_id = ?", domainID).First(&pcd).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apierror.Server(err)
	}
	return &pcd, nil
}

// MarkVerified flips a workspace's claim on a domain to verified, the
// step the TXT-challenge checker drives.
func (r *Repository) MarkVerified(ctx context.Context, tx *gorm.DB, workspaceID, domainID string, verified bool) error {
	updates := map[string]interface{}{"is_verified": verified}
	if !verified {
		updates["last_unverified_at"] = nil
	}
	err := tx.WithContext(ctx).Model(&db.WorkspaceDomain{}).
		Where("domain_id = ? AND workspace_id = ?", domainID, workspaceID).
		Updates(updates).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// Delete removes a workspace's claim, and the Domain row itself once no
// workspace claims it any longer.
func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, workspaceID, domainID string) error {
	if err := tx.WithContext(ctx).Where("domain_id = ? AND workspace_id = ?", domainID, workspaceID).Delete(&db.WorkspaceDomain{}).Error; err != nil {
		return apierror.Server(err)
	}
	var remaining int64
	if err := tx.WithContext(ctx).Model(&db.WorkspaceDomain{}).Where("domain_id = ?", domainID).Count(&remaining).Error; err != nil {
		return apierror.Server(err)
	}
	if remaining == 0 {
		if err := tx.WithContext(ctx).Where("domain_id = ?", domainID).Delete(&db.DnsRecord{}).Error; err != nil {
			return apierror.Server(err)
		}
		if err := tx.WithContext(ctx).Where("domain_id = ?", domainID).Delete(&db.PatrControlledDomain{}).Error; err != nil {
			return apierror.Server(err)
		}
		if err := tx.WithContext(ctx).Where("domain_id = ?", domainID).Delete(&db.UserControlledDomain{}).Error; err != nil {
			return apierror.Server(err)
		}
		if err := tx.WithContext(ctx).Where("id = ?", domainID).Delete(&db.Domain{}).Error; err != nil {
			return apierror.Server(err)
		}
	}
	return nil
}

// CreateDnsRecord inserts a record under a Patr-controlled domain.
func (r *Repository) CreateDnsRecord(ctx context.Context, tx *gorm.DB, rec *db.DnsRecord) error {
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

func (r *Repository) GetDnsRecord(ctx context.Context, tx *gorm.DB, domainID, recordID string) (*db.DnsRecord, error) {
	var rec db.DnsRecord
	err := tx.WithContext(ctx).Where("id = ? AND domain_id = ?", recordID, domainID).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "dns record not found")
		}
		return nil, apierror.Server(err)
	}
	return &rec, nil
}

func (r *Repository) ListDnsRecords(ctx context.Context, tx *gorm.DB, domainID string) ([]db.DnsRecord, error) {
	var records []db.DnsRecord
	if err := tx.WithContext(ctx).Where("domain_id = ?", domainID).Find(&records).Error; err != nil {
		return nil, apierror.Server(err)
	}
	return records, nil
}

func (r *Repository) UpdateDnsRecord(ctx context.Context, tx *gorm.DB, rec *db.DnsRecord) error {
	updates := map[string]interface{}{
		"value":    rec.Value,
		"ttl":      rec.TTL,
		"priority": rec.Priority,
		"proxied":  rec.Proxied,
	}
	if err := tx.WithContext(ctx).Model(&db.DnsRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

func (r *Repository) DeleteDnsRecord(ctx context.Context, tx *gorm.DB, domainID, recordID string) error {
	if err := tx.WithContext(ctx).Where("id = ? AND domain_id = ?", recordID, domainID).Delete(&db.DnsRecord{}).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}
