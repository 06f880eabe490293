// Package secret implements the secret lifecycle (spec section 4.4.4):
// a Postgres metadata row plus a value that only ever lives in the
// external KV vault at "secret/{workspace}/{secret_id}".
package secret

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/secret"
	"github.com/patr-cloud/patr-api/internal/vault"
)

// ResourceTypeID is the well-known resource_type row a secret's
// permission checks are scoped against.
const ResourceTypeID = "resource-type-secret"

// CreateRequest is the typed, preprocessed body of
// POST /workspace/{id}/infrastructure/secret.
type CreateRequest struct {
	WorkspaceID  string  `json:"-"`
	Name         string  `json:"name"`
	Value        string  `json:"value"`
	DeploymentID *string `json:"deployment_id,omitempty"`
}

func (r CreateRequest) IsEmpty() bool { return r.Name == "" || r.Value == "" }

// UpdateRequest replaces a secret's value in place; the name and
// deployment scope never change once created.
type UpdateRequest struct {
	Value string `json:"value"`
}

func vaultPath(workspaceID, secretID string) string {
	return fmt.Sprintf("%s/%s", workspaceID, secretID)
}

type Service struct {
	repo  *repo.Repository
	vault *vault.Client
}

func NewService(repository *repo.Repository, vaultClient *vault.Client) *Service {
	return &Service{repo: repository, vault: vaultClient}
}

// Create inserts the metadata row, then writes the value to vault. A
// vault failure is returned as an error; under internal/endpoint the
// request's transaction is then rolled back, so the row is not kept and
// a retry is a fresh create.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (string, error) {
	if req.IsEmpty() {
		return "", apierror.New(apierror.CodeWrongParameters, "name and value are required")
	}

	count, err := s.repo.CountSecrets(ctx, tx, req.WorkspaceID)
	if err != nil {
		return "", err
	}
	var ws db.Workspace
	if err := tx.WithContext(ctx).Where("id = ?", req.WorkspaceID).First(&ws).Error; err != nil {
		return "", apierror.Server(err)
	}
	if count >= ws.ResourceLimits().Secrets {
		return "", apierror.New(apierror.CodeResourceLimitExceeded, "workspace secret limit reached")
	}

	taken, err := s.repo.NameTaken(ctx, tx, req.WorkspaceID, req.Name)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apierror.New(apierror.CodeResourceExists, "a secret with this name already exists")
	}

	row := &db.Secret{Name: req.Name, WorkspaceID: req.WorkspaceID, DeploymentID: req.DeploymentID}
	if err := s.repo.Create(ctx, tx, row); err != nil {
		return "", err
	}

	if err := s.vault.Write(ctx, vaultPath(req.WorkspaceID, row.ID), map[string]interface{}{"value": req.Value}); err != nil {
		return "", apierror.Server(err)
	}
	return row.ID, nil
}

// List returns secret metadata only; values never leave vault once
// written (spec section 4.4.4 — a secret is write-only from the API's
// perspective after creation).
func (s *Service) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.Secret, error) {
	return s.repo.List(ctx, tx, workspaceID)
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.Secret, error) {
	return s.repo.GetByID(ctx, tx, workspaceID, id)
}

// Update overwrites the value in vault in place; vault's own versioning
// keeps prior values recoverable until Delete destroys them all.
func (s *Service) Update(ctx context.Context, tx *gorm.DB, workspaceID, id string, req UpdateRequest) error {
	if req.Value == "" {
		return apierror.New(apierror.CodeWrongParameters, "value is required")
	}
	row, err := s.repo.GetByID(ctx, tx, workspaceID, id)
	if err != nil {
		return err
	}
	if err := s.vault.Write(ctx, vaultPath(workspaceID, row.ID), map[string]interface{}{"value": req.Value}); err != nil {
		return apierror.Server(err)
	}
	return nil
}

// Delete soft-deletes the metadata row, renames it to the
// "patr-deleted:{id}@{name}" tombstone so the (workspace, name) slot
// frees up for reuse, and destroys every vault version for the secret
// — spec section 4.4.4's exact delete sequence.
func (s *Service) Delete(ctx context.Context, tx *gorm.DB, workspaceID, id string) error {
	row, err := s.repo.GetByID(ctx, tx, workspaceID, id)
	if err != nil {
		return err
	}

	tombstoned := *row
	tombstoned.Name = fmt.Sprintf("patr-deleted:%s@%s", row.ID, row.Name)
	now := time.Now()
	if err := s.repo.SoftDeleteAndTombstone(ctx, tx, &tombstoned, &now); err != nil {
		return err
	}

	if err := s.vault.DestroyAllVersions(ctx, vaultPath(workspaceID, row.ID)); err != nil {
		return apierror.Server(err)
	}
	return nil
}
