// Package region implements the BYOC region registration surface (spec
// section 4.6): a workspace uploads a kubeconfig for its own cluster,
// the row starts in RegionStatusCreated, and internal/region's scheduled
// jobs take it from there — the connection probe flips it active, the
// disconnect/revocation sweeps handle the rest. This package only owns
// the CRUD surface; the status machine lives in internal/region.
package region

import (
	"context"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/region"
)

// ResourceTypeID is the well-known resource_type row a region's
// permission checks are scoped against.
const ResourceTypeID = "resource-type-region"

// CreateRequest is the typed, preprocessed body of
// POST /workspace/{id}/region.
type CreateRequest struct {
	WorkspaceID   string        `json:"-"`
	Name          string        `json:"name"`
	CloudProvider db.CloudProvider `json:"cloud_provider"`
	Kubeconfig    []byte        `json:"kubeconfig"`
}

func (r CreateRequest) IsEmpty() bool {
	return r.Name == "" || r.CloudProvider == "" || len(r.Kubeconfig) == 0
}

type Service struct {
	repo *repo.Repository
}

func NewService(repository *repo.Repository) *Service {
	return &Service{repo: repository}
}

// Create registers a BYOC region in RegionStatusCreated. No quota
// applies — a BYOC region runs on the workspace's own cluster, not
// Patr-billed capacity.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (string, error) {
	if req.IsEmpty() {
		return "", apierror.New(apierror.CodeWrongParameters, "name, cloud_provider and kubeconfig are required")
	}

	region := &db.DeploymentRegion{
		Name:          req.Name,
		CloudProvider: req.CloudProvider,
		WorkspaceID:   &req.WorkspaceID,
		Status:        db.RegionStatusCreated,
		ConfigFile:    req.Kubeconfig,
	}
	if err := s.repo.Create(ctx, tx, region); err != nil {
		return "", err
	}
	return region.ID, nil
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, workspaceID, regionID string) (*db.DeploymentRegion, error) {
	return s.repo.GetByID(ctx, tx, workspaceID, regionID)
}

func (s *Service) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.DeploymentRegion, error) {
	return s.repo.List(ctx, tx, workspaceID)
}

// Delete soft-deletes a BYOC region. It refuses to run while the region
// still has live deployments scheduled on it — the same cascade the
// controller's own disconnect-timeout deletion path runs, but a direct
// DELETE call should not silently tear down a workspace's deployments.
func (s *Service) Delete(ctx context.Context, tx *gorm.DB, workspaceID, regionID string) error {
	existing, err := s.repo.GetByID(ctx, tx, workspaceID, regionID)
	if err != nil {
		return err
	}
	if existing.WorkspaceID == nil {
		return apierror.New(apierror.CodeWrongParameters, "first-party regions cannot be deleted")
	}

	deployments, err := s.repo.DeploymentsInRegion(ctx, tx, regionID)
	if err != nil {
		return err
	}
	if len(deployments) > 0 {
		return apierror.New(apierror.CodeResourceInUse, "region still has deployments scheduled on it")
	}

	return s.repo.SoftDelete(ctx, tx, regionID)
}
