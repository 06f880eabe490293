// Package ci is the gorm-backed repository for C9's webhook ingestion:
// the CIRepo lookup, per-repo build numbering, and the build/step rows
// a materialized pipeline writes.
package ci

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

// Repository wraps a transaction; every method takes the caller's tx so
// webhook ingestion runs inside the framework's one-transaction-per-request.
type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

// GetByID fetches a non-deleted CI repo registration by ID.
func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*db.CIRepo, error) {
	var repo db.CIRepo
	err := tx.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&repo).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "ci repository not found")
		}
		return nil, apierror.Server(err)
	}
	return &repo, nil
}

// CreateBuild assigns the next build_num for build.CIRepoID and inserts
// the row, all under tx so the increment is serialized with the rest of
// the request the way every other per-workspace counter in this codebase
// is (SELECT ... FOR UPDATE rather than a sequence, since the counter is
// scoped per repo, not per table).
func (r *Repository) CreateBuild(ctx context.Context, tx *gorm.DB, build *db.CIBuild) error {
	txc := tx.WithContext(ctx)

	var locked []db.CIBuild
	err := txc.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("ci_repo_id = ?", build.CIRepoID).
		Order("build_num DESC").
		Limit(1).
		Find(&locked).Error
	if err != nil {
		return apierror.Server(err)
	}
	build.BuildNum = 1
	if len(locked) > 0 {
		build.BuildNum = locked[0].BuildNum + 1
	}

	if err := txc.Create(build).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// MarkBuildErrored flips a build to errored with a finish timestamp, for
// a patr.yml that fails to parse or materialize (spec section 4.7 steps
// 8-9's error path).
func (r *Repository) MarkBuildErrored(ctx context.Context, tx *gorm.DB, buildID string) error {
	err := tx.WithContext(ctx).Model(&db.CIBuild{}).
		Where("id = ?", buildID).
		Updates(map[string]interface{}{"status": db.BuildStatusErrored, "finished_at": gorm.Expr("now()")}).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// CreateSteps bulk-inserts a build's materialized step rows.
func (r *Repository) CreateSteps(ctx context.Context, tx *gorm.DB, steps []db.CIStep) error {
	if len(steps) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Create(&steps).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// WorkspaceSecretsByName returns the workspace's non-deleted secrets
// keyed by name, for resolving a pipeline's from_secret references.
func (r *Repository) WorkspaceSecretsByName(ctx context.Context, tx *gorm.DB, workspaceID string) (map[string]string, error) {
	var secrets []db.Secret
	err := tx.WithContext(ctx).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Find(&secrets).Error
	if err != nil {
		return nil, apierror.Server(err)
	}
	byName := make(map[string]string, len(secrets))
	for _, s := range secrets {
		byName[s.Name] = s.ID
	}
	return byName, nil
}
