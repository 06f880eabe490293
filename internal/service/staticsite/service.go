// Package staticsite implements the static-site lifecycle (spec section
// 4.5): create, list, upload a new bundle, and delete.
//
// Upload bytes themselves are not stored by this package. No example
// repo in the pack imports an object-storage client directly (the S3,
// GCS and Azure Blob SDKs that appear in go.mod are transitive,
// unimported deps of unrelated packages, not something any example
// wires up), so there is no library in the pack to ground a blob-store
// client on. Upload only records the bundle's content digest and
// advances current_live_upload; the bundle bytes themselves are assumed
// to already live wherever the caller's deploy pipeline put them,
// addressed by that digest — the same division of responsibility the
// deployment service draws between the database row and the image the
// reconciler pulls from the registry.
package staticsite

import (
	"context"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/staticsite"
)

// ResourceTypeID is the well-known resource_type row a static site's
// permission checks are scoped against.
const ResourceTypeID = "resource-type-static-site"

// CreateRequest is the typed, preprocessed body of
// POST /workspace/{id}/infrastructure/static-site.
type CreateRequest struct {
	WorkspaceID string `json:"-"`
	Name        string `json:"name"`
}

func (r CreateRequest) IsEmpty() bool { return r.Name == "" }

// UploadRequest is the typed body of
// POST /workspace/{id}/infrastructure/static-site/{id}/upload. Digest is
// the content address of the already-uploaded bundle (see package doc).
type UploadRequest struct {
	Digest string `json:"digest"`
}

func (r UploadRequest) IsEmpty() bool { return r.Digest == "" }

type Service struct {
	repo *repo.Repository
}

func NewService(repository *repo.Repository) *Service {
	return &Service{repo: repository}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (string, error) {
	if req.IsEmpty() {
		return "", apierror.New(apierror.CodeWrongParameters, "name is required")
	}

	count, err := s.repo.CountSites(ctx, tx, req.WorkspaceID)
	if err != nil {
		return "", err
	}
	var ws db.Workspace
	if err := tx.WithContext(ctx).Where("id = ?", req.WorkspaceID).First(&ws).Error; err != nil {
		return "", apierror.Server(err)
	}
	if count >= ws.ResourceLimits().StaticSites {
		return "", apierror.New(apierror.CodeResourceLimitExceeded, "workspace static site limit reached")
	}

	taken, err := s.repo.NameTaken(ctx, tx, req.WorkspaceID, req.Name)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apierror.New(apierror.CodeResourceExists, "a static site with this name already exists")
	}

	site := &db.StaticSite{Name: req.Name, WorkspaceID: req.WorkspaceID, Status: db.StaticSiteStatusCreated}
	if err := s.repo.Create(ctx, tx, site); err != nil {
		return "", err
	}
	return site.ID, nil
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.StaticSite, error) {
	return s.repo.GetByID(ctx, tx, workspaceID, id)
}

func (s *Service) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.StaticSite, error) {
	return s.repo.List(ctx, tx, workspaceID)
}

// Upload records a new bundle version and makes it the one served.
func (s *Service) Upload(ctx context.Context, tx *gorm.DB, workspaceID, id string, req UploadRequest) (string, error) {
	if req.IsEmpty() {
		return "", apierror.New(apierror.CodeWrongParameters, "digest is required")
	}
	site, err := s.repo.GetByID(ctx, tx, workspaceID, id)
	if err != nil {
		return "", err
	}

	upload := &db.StaticSiteUpload{StaticSiteID: site.ID, Digest: req.Digest}
	if err := s.repo.CreateUpload(ctx, tx, upload); err != nil {
		return "", err
	}
	if err := s.repo.SetLiveUpload(ctx, tx, site.ID, upload.ID); err != nil {
		return "", err
	}
	return upload.ID, nil
}

func (s *Service) ListUploads(ctx context.Context, tx *gorm.DB, workspaceID, id string) ([]db.StaticSiteUpload, error) {
	if _, err := s.repo.GetByID(ctx, tx, workspaceID, id); err != nil {
		return nil, err
	}
	return s.repo.ListUploads(ctx, tx, id)
}

func (s *Service) Delete(ctx context.Context, tx *gorm.DB, workspaceID, id string) error {
	if _, err := s.repo.GetByID(ctx, tx, workspaceID, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, tx, id)
}
