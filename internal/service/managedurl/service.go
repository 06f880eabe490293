// Package managedurl implements the managed-URL ingress routing surface
// (spec section 4.9): create/list/get/update/delete plus the kind-
// consistency invariant (exactly the columns matching Kind are set).
package managedurl

import (
	"context"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/managedurl"
)

// ResourceTypeID is the well-known resource_type row a managed URL's
// permission checks are scoped against. ManagedURL itself never joins a
// Resource row (it has no owner_workspace_id column — workspace scoping
// goes through its domain instead), but RBAC still needs a resource type
// to authorize against.
const ResourceTypeID = "resource-type-managed-url"

// CreateRequest is the typed, preprocessed body of
// POST /workspace/{id}/infrastructure/managed-url.
type CreateRequest struct {
	WorkspaceID    string             `json:"-"`
	SubDomain      string             `json:"sub_domain"`
	DomainID       string             `json:"domain_id"`
	Path           string             `json:"path"`
	Kind           db.ManagedURLKind  `json:"kind"`
	DeploymentID   *string            `json:"deployment_id,omitempty"`
	DeploymentPort *int               `json:"deployment_port,omitempty"`
	StaticSiteID   *string            `json:"static_site_id,omitempty"`
	URL            *string            `json:"url,omitempty"`
	HTTPOnly       *bool              `json:"http_only,omitempty"`
	Permanent      *bool              `json:"permanent,omitempty"`
}

// UpdateRequest carries the same kind-tagged payload as CreateRequest;
// sub_domain/domain/path never change once created (spec section 4.9).
type UpdateRequest struct {
	Kind           db.ManagedURLKind `json:"kind"`
	DeploymentID   *string           `json:"deployment_id,omitempty"`
	DeploymentPort *int              `json:"deployment_port,omitempty"`
	StaticSiteID   *string           `json:"static_site_id,omitempty"`
	URL            *string           `json:"url,omitempty"`
	HTTPOnly       *bool             `json:"http_only,omitempty"`
	Permanent      *bool             `json:"permanent,omitempty"`
}

// checkKindConsistency enforces that exactly the payload columns
// matching kind are populated, per spec section 4.9's tagged-union
// invariant.
func checkKindConsistency(kind db.ManagedURLKind, deploymentID *string, deploymentPort *int, staticSiteID *string, url *string) error {
	switch kind {
	case db.ManagedURLProxyToDeployment:
		if deploymentID == nil || deploymentPort == nil || staticSiteID != nil || url != nil {
			return apierror.New(apierror.CodeWrongParameters, "proxy_to_deployment requires deployment_id and deployment_port only")
		}
	case db.ManagedURLProxyToStaticSite:
		if staticSiteID == nil || deploymentID != nil || deploymentPort != nil || url != nil {
			return apierror.New(apierror.CodeWrongParameters, "proxy_to_static_site requires static_site_id only")
		}
	case db.ManagedURLProxyURL, db.ManagedURLRedirect:
		if url == nil || deploymentID != nil || deploymentPort != nil || staticSiteID != nil {
			return apierror.New(apierror.CodeWrongParameters, "proxy_url/redirect require url only")
		}
	default:
		return apierror.New(apierror.CodeWrongParameters, "unknown managed url kind")
	}
	return nil
}

type Service struct {
	repo *repo.Repository
}

func NewService(repository *repo.Repository) *Service {
	return &Service{repo: repository}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (string, error) {
	if req.SubDomain == "" || req.DomainID == "" {
		return "", apierror.New(apierror.CodeWrongParameters, "sub_domain and domain_id are required")
	}
	if err := checkKindConsistency(req.Kind, req.DeploymentID, req.DeploymentPort, req.StaticSiteID, req.URL); err != nil {
		return "", err
	}

	owned, err := s.repo.DomainOwnedByWorkspace(ctx, tx, req.WorkspaceID, req.DomainID)
	if err != nil {
		return "", err
	}
	if !owned {
		return "", apierror.New(apierror.CodeResourceDoesNotExist, "domain is not claimed by this workspace")
	}

	taken, err := s.repo.RouteTaken(ctx, tx, req.SubDomain, req.DomainID, req.Path)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apierror.New(apierror.CodeResourceExists, "this sub_domain/domain/path combination is already routed")
	}

	url := &db.ManagedURL{
		SubDomain: req.SubDomain, DomainID: req.DomainID, Path: req.Path, Kind: req.Kind,
		DeploymentID: req.DeploymentID, DeploymentPort: req.DeploymentPort,
		StaticSiteID: req.StaticSiteID, URL: req.URL, HTTPOnly: req.HTTPOnly, Permanent: req.Permanent,
	}
	if err := s.repo.Create(ctx, tx, url); err != nil {
		return "", err
	}
	return url.ID, nil
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.ManagedURL, error) {
	return s.repo.GetByID(ctx, tx, workspaceID, id)
}

func (s *Service) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.ManagedURL, error) {
	return s.repo.List(ctx, tx, workspaceID)
}

// Update replaces a route's target in place, re-checking the
// kind-consistency invariant against the new payload.
func (s *Service) Update(ctx context.Context, tx *gorm.DB, workspaceID, id string, req UpdateRequest) error {
	if err := checkKindConsistency(req.Kind, req.DeploymentID, req.DeploymentPort, req.StaticSiteID, req.URL); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, tx, workspaceID, id)
	if err != nil {
		return err
	}
	existing.Kind = req.Kind
	existing.DeploymentID = req.DeploymentID
	existing.DeploymentPort = req.DeploymentPort
	existing.StaticSiteID = req.StaticSiteID
	existing.URL = req.URL
	existing.HTTPOnly = req.HTTPOnly
	existing.Permanent = req.Permanent
	return s.repo.UpdateTarget(ctx, tx, existing)
}

func (s *Service) Delete(ctx context.Context, tx *gorm.DB, workspaceID, id string) error {
	if _, err := s.repo.GetByID(ctx, tx, workspaceID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, tx, id)
}
