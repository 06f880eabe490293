// Package manageddatabase implements the managed-database create/list/
// delete surface (spec section 4.8). Provisioning the underlying
// StatefulSet/Service/PVC and tearing it down on delete both happen out
// of band in internal/reconciler's periodic sweep; this service only
// ever writes the row that sweep reads.
package manageddatabase

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/manageddatabase"
)

// ResourceTypeID is the well-known resource_type row every ManagedDatabase's
// Resource joins against. Nothing in this repository inserts the
// resource_types row; AutoMigrate only creates the table.
const ResourceTypeID = "resource-type-managed-database"

// supportedEngines mirrors internal/reconciler's engine catalog — kept
// as a small closed set here too since the reconciler's catalog is
// unexported and provisioning-specific (image, port, ping command),
// while this check only needs to know which engine names are valid.
var supportedEngines = map[db.ManagedDatabaseEngine]bool{
	db.EnginePostgres: true,
	db.EngineMySQL:    true,
	db.EngineMongo:    true,
	db.EngineRedis:    true,
}

// CreateRequest is the typed, preprocessed body of
// POST /workspace/{id}/database.
type CreateRequest struct {
	Name        string                   `json:"name"`
	WorkspaceID string                   `json:"-"`
	Engine      db.ManagedDatabaseEngine `json:"engine"`
	Version     string                   `json:"version,omitempty"`
	Plan        string                   `json:"plan"`
	RegionID    string                   `json:"region"`
	ReplicaCount int                     `json:"replica_count,omitempty"`
}

func (r CreateRequest) IsEmpty() bool {
	return r.Name == "" || r.Engine == "" || r.Plan == "" || r.RegionID == ""
}

type Service struct {
	repo *repo.Repository
}

func NewService(repository *repo.Repository) *Service {
	return &Service{repo: repository}
}

// checkQuota mirrors the deployment service's per-resource-type check
// (spec section 4.4.1), applied to Workspace.DatabaseLimit.
func (s *Service) checkQuota(ctx context.Context, tx *gorm.DB, ws *db.Workspace) error {
	count, err := s.repo.CountDatabases(ctx, tx, ws.ID)
	if err != nil {
		return err
	}
	if count >= ws.ResourceLimits().Databases {
		return apierror.New(apierror.CodeDatabaseLimitExceeded, "workspace managed database limit reached")
	}
	return nil
}

// Create validates quota and name uniqueness, then writes a
// ManagedDatabase row in "creating" status; the reconciler's sweep picks
// it up on its next tick and provisions the chart (spec section 4.8).
func (s *Service) Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (string, error) {
	if req.IsEmpty() {
		return "", apierror.New(apierror.CodeWrongParameters, "name, engine, plan, and region are required")
	}
	if !supportedEngines[req.Engine] {
		return "", apierror.New(apierror.CodeWrongParameters, "unsupported database engine")
	}

	var ws db.Workspace
	if err := tx.WithContext(ctx).Where("id = ?", req.WorkspaceID).First(&ws).Error; err != nil {
		return "", apierror.Server(err)
	}
	if err := s.checkQuota(ctx, tx, &ws); err != nil {
		return "", err
	}

	taken, err := s.repo.NameTaken(ctx, tx, req.WorkspaceID, req.Name)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apierror.New(apierror.CodeResourceExists, "a managed database with this name already exists")
	}

	replicas := req.ReplicaCount
	if replicas <= 0 {
		replicas = 1
	}

	resource := &db.Resource{Name: req.Name, ResourceTypeID: ResourceTypeID, OwnerWorkspaceID: req.WorkspaceID}
	mdb := &db.ManagedDatabase{
		Name:         req.Name,
		WorkspaceID:  req.WorkspaceID,
		RegionID:     req.RegionID,
		DBName:       req.Name,
		Engine:       req.Engine,
		Version:      req.Version,
		Plan:         req.Plan,
		Status:       db.ManagedDatabaseStatusCreating,
		ReplicaCount: replicas,
	}

	if err := s.repo.Create(ctx, tx, resource, mdb); err != nil {
		return "", err
	}
	return mdb.ID, nil
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.ManagedDatabase, error) {
	return s.repo.GetByID(ctx, tx, workspaceID, id)
}

func (s *Service) List(ctx context.Context, tx *gorm.DB, workspaceID string) ([]db.ManagedDatabase, error) {
	return s.repo.List(ctx, tx, workspaceID)
}

// Delete marks a database deleted; the reconciler's sweep tears the
// chart release down on its next tick and the row is retained for audit
// (soft delete, per every other resource table's DeletedAt column).
func (s *Service) Delete(ctx context.Context, tx *gorm.DB, workspaceID, id string) error {
	if _, err := s.repo.GetByID(ctx, tx, workspaceID, id); err != nil {
		return err
	}
	now := time.Now()
	return s.repo.MarkForDeletion(ctx, tx, id, &now)
}
