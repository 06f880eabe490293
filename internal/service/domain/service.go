// Package domain implements the domain and DNS-record lifecycle (spec
// section 4.10): a workspace adds a domain either Patr-controlled
// (Patr manages its Cloudflare zone) or user-controlled (the user's own
// nameservers, Patr only verifies a TXT challenge), and — for the
// Patr-controlled case — manages A/AAAA/CNAME/MX/TXT records under it.
//
// Record writes here only touch the Postgres row. Propagating a record
// to the zone's actual nameservers needs a Cloudflare DNS client; the
// only Cloudflare integration anywhere in the pack
// (internal/region.CloudflareRevoker) is a narrow single-endpoint
// certificate-revocation call, not a general DNS API client, so there is
// nothing in the pack to ground a full zone-record client on. The
// TXT-verification checker and the zone push are left as the same kind
// of out-of-band sweep the managed-database and deployment reconcilers
// already run against their own rows.
package domain

import (
	"context"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/domain"
)

// ResourceTypeID is the well-known resource_type row a domain's
// permission checks are scoped against.
const ResourceTypeID = "resource-type-domain"

// CreateRequest is the typed, preprocessed body of
// POST /workspace/{id}/domain.
type CreateRequest struct {
	WorkspaceID string       `json:"-"`
	Name        string       `json:"name"`
	Type        db.DomainType `json:"type"`
	Controlled  string       `json:"controlled"` // "patr" or "user"
}

func (r CreateRequest) IsEmpty() bool {
	return r.Name == "" || r.Type == "" || (r.Controlled != "patr" && r.Controlled != "user")
}

type Service struct {
	repo *repo.Repository
}

func NewService(repository *repo.Repository) *Service {
	return &Service{repo: repository}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (string, error) {
	if req.IsEmpty() {
		return "", apierror.New(apierror.CodeWrongParameters, "name, type and controlled are required")
	}

	count, err := s.repo.CountDomains(ctx, tx, req.WorkspaceID)
	if err != nil {
		return "", err
	}
	var ws db.Workspace
	if err := tx.WithContext(ctx).Where("id = ?", req.WorkspaceID).First(&ws).Error; err != nil {
		return "", apierror.Server(err)
	}
	if count >= ws.ResourceLimits().Domains {
		return "", apierror.New(apierror.CodeResourceLimitExceeded, "workspace domain limit reached")
	}

	taken, err := s.repo.NameTaken(ctx, tx, req.Name)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apierror.New(apierror.CodeResourceExists, "this domain is already registered")
	}

	d := &db.Domain{Name: req.Name, Type: req.Type}
	link := &db.WorkspaceDomain{WorkspaceID: req.WorkspaceID}

	if req.Controlled == "patr" {
		pcd := &db.PatrControlledDomain{NameserverType: db.NameserverInternal}
		if err := s.repo.CreatePatrControlled(ctx, tx, d, pcd, link); err != nil {
			return "", err
		}
	} else {
		ucd := &db.UserControlledDomain{}
		if err := s.repo.CreateUserControlled(ctx, tx, d, ucd, link); err != nil {
			return "", err
		}
	}
	return d.ID, nil
}

type DomainWithClaim struct {
	Domain db.Domain
	Claim  db.WorkspaceDomain
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, workspaceID, domainID string) (*DomainWithClaim, error) {
	d, link, err := s.repo.GetByID(ctx, tx, workspaceID, domainID)
	if err != nil {
		return nil, err
	}
	return &DomainWithClaim{Domain: *d, Claim: *link}, nil
}

func (s *Service) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]DomainWithClaim, error) {
	domains, links, err := s.repo.List(ctx, tx, workspaceID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]db.Domain, len(domains))
	for _, d := range domains {
		byID[d.ID] = d
	}
	out := make([]DomainWithClaim, 0, len(links))
	for _, l := range links {
		out = append(out, DomainWithClaim{Domain: byID[l.DomainID], Claim: l})
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, tx *gorm.DB, workspaceID, domainID string) error {
	if _, _, err := s.repo.GetByID(ctx, tx, workspaceID, domainID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, tx, workspaceID, domainID)
}

// DnsRecordRequest is the typed body for creating or updating a DNS
// record under a Patr-controlled domain.
type DnsRecordRequest struct {
	Name     string           `json:"name"`
	Type     db.DnsRecordType `json:"type"`
	Value    string           `json:"value"`
	TTL      int              `json:"ttl"`
	Priority *int             `json:"priority,omitempty"`
	Proxied  *bool            `json:"proxied,omitempty"`
}

func (r DnsRecordRequest) IsEmpty() bool { return r.Name == "" || r.Type == "" || r.Value == "" }

// CreateDnsRecord adds a record under domainID, which must be a
// Patr-controlled domain the workspace claims.
func (s *Service) CreateDnsRecord(ctx context.Context, tx *gorm.DB, workspaceID, domainID string, req DnsRecordRequest) (string, error) {
	if req.IsEmpty() {
		return "", apierror.New(apierror.CodeWrongParameters, "name, type and value are required")
	}
	if _, _, err := s.repo.GetByID(ctx, tx, workspaceID, domainID); err != nil {
		return "", err
	}
	pcd, err := s.repo.PatrControlledExtension(ctx, tx, domainID)
	if err != nil {
		return "", err
	}
	if pcd == nil {
		return "", apierror.New(apierror.CodeWrongParameters, "DNS records can only be managed on Patr-controlled domains")
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = 3600
	}
	rec := &db.DnsRecord{
		DomainID: domainID,
		Name:     req.Name,
		Type:     req.Type,
		Value:    req.Value,
		TTL:      ttl,
		Priority: req.Priority,
		Proxied:  req.Proxied,
	}
	if err := s.repo.CreateDnsRecord(ctx, tx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *Service) ListDnsRecords(ctx context.Context, tx *gorm.DB, workspaceID, domainID string) ([]db.DnsRecord, error) {
	if _, _, err := s.repo.GetByID(ctx, tx, workspaceID, domainID); err != nil {
		return nil, err
	}
	return s.repo.ListDnsRecords(ctx, tx, domainID)
}

func (s *Service) UpdateDnsRecord(ctx context.Context, tx *gorm.DB, workspaceID, domainID, recordID string, req DnsRecordRequest) error {
	if _, _, err := s.repo.GetByID(ctx, tx, workspaceID, domainID); err != nil {
		return err
	}
	rec, err := s.repo.GetDnsRecord(ctx, tx, domainID, recordID)
	if err != nil {
		return err
	}
	if req.Value != "" {
		rec.Value = req.Value
	}
	if req.TTL > 0 {
		rec.TTL = req.TTL
	}
	if req.Priority != nil {
		rec.Priority = req.Priority
	}
	if req.Proxied != nil {
		rec.Proxied = req.Proxied
	}
	return s.repo.UpdateDnsRecord(ctx, tx, rec)
}

func (s *Service) DeleteDnsRecord(ctx context.Context, tx *gorm.DB, workspaceID, domainID, recordID string) error {
	if _, _, err := s.repo.GetByID(ctx, tx, workspaceID, domainID); err != nil {
		return err
	}
	return s.repo.DeleteDnsRecord(ctx, tx, domainID, recordID)
}
