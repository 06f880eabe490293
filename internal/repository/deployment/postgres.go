// Package deployment is the gorm-backed repository for C6's deployment
// resource: the Resource/Deployment row plus its four side tables
// (exposed ports, env vars, config mounts, volume mounts).
package deployment

import (
	"context"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
)

// Repository wraps a transaction; every method takes the caller's tx so
// all of C6 runs inside the framework's one-transaction-per-request.
type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

// CountBillableResources returns how many non-deleted deployments,
// managed databases, static sites, managed URLs, and secrets the
// workspace owns, for the aggregate-quota check in spec section 4.4.1.
func (r *Repository) CountBillableResources(ctx context.Context, tx *gorm.DB, workspaceID string) (int, error) {
	var total int64
	tables := []string{"deployments", "managed_databases", "static_sites", "managed_urls", "secrets"}
	for _, table := range tables {
		var count int64
		if err := tx.WithContext(ctx).Table(table).Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).Count(&count).Error; err != nil {
			return 0, apierror.Server(err)
		}
		total += count
	}
	return int(total), nil
}

// CountDeployments returns the workspace's current deployment count, for
// the per-resource-type quota check.
func (r *Repository) CountDeployments(ctx context.Context, tx *gorm.DB, workspaceID string) (int, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.Deployment{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID).
		Count(&count).Error
	if err != nil {
		return 0, apierror.Server(err)
	}
	return int(count), nil
}

// NameTaken reports whether a non-deleted deployment already holds name
// in the workspace (the unique index's application-level mirror, so the
// service can return ResourceExists instead of a raw constraint error).
func (r *Repository) NameTaken(ctx context.Context, tx *gorm.DB, workspaceID, name string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&db.Deployment{}).
		Where("workspace_id = ? AND name = ? AND deleted_at IS NULL", workspaceID, name).
		Count(&count).Error
	if err != nil {
		return false, apierror.Server(err)
	}
	return count > 0, nil
}

// Create inserts the Resource row, the Deployment row, and every side
// table in one go. ports must be non-empty; the caller enforces that.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, resource *db.Resource, dep *db.Deployment, ports []db.DeploymentExposedPort, envs []db.DeploymentEnvironmentVariable, mounts []db.DeploymentConfigMount, volumeMounts []db.DeploymentVolumeMount, usage *db.UsageHistory) error {
	txc := tx.WithContext(ctx)

	if err := txc.Create(resource).Error; err != nil {
		return apierror.Server(err)
	}
	if err := txc.Create(dep).Error; err != nil {
		return apierror.Server(err)
	}
	for i := range ports {
		ports[i].DeploymentID = dep.ID
	}
	if err := txc.Create(&ports).Error; err != nil {
		return apierror.Server(err)
	}
	if len(envs) > 0 {
		for i := range envs {
			envs[i].DeploymentID = dep.ID
		}
		if err := txc.Create(&envs).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(mounts) > 0 {
		for i := range mounts {
			mounts[i].DeploymentID = dep.ID
		}
		if err := txc.Create(&mounts).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if len(volumeMounts) > 0 {
		for i := range volumeMounts {
			volumeMounts[i].DeploymentID = dep.ID
		}
		if err := txc.Create(&volumeMounts).Error; err != nil {
			return apierror.Server(err)
		}
	}
	if usage != nil {
		usage.ResourceID = dep.ID
		if err := txc.Create(usage).Error; err != nil {
			return apierror.Server(err)
		}
	}
	return nil
}

// GetByID fetches a non-deleted deployment, scoped to its workspace.
func (r *Repository) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, id string) (*db.Deployment, error) {
	var dep db.Deployment
	err := tx.WithContext(ctx).
		Where("id = ? AND workspace_id = ? AND deleted_at IS NULL", id, workspaceID).
		First(&dep).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.New(apierror.CodeResourceDoesNotExist, "deployment not found")
		}
		return nil, apierror.Server(err)
	}
	return &dep, nil
}

// VolumeMountIDs returns the deployment's currently-mounted volume IDs.
func (r *Repository) VolumeMountIDs(ctx context.Context, tx *gorm.DB, deploymentID string) ([]string, error) {
	var mounts []db.DeploymentVolumeMount
	if err := tx.WithContext(ctx).Where("deployment_id = ?", deploymentID).Find(&mounts).Error; err != nil {
		return nil, apierror.Server(err)
	}
	ids := make([]string, len(mounts))
	for i, m := range mounts {
		ids[i] = m.VolumeID
	}
	return ids, nil
}

// UpdateScalars applies the fields directly with gorm's Updates, which
// already skips zero-valued fields on a struct — the COALESCE($field,
// current) behavior spec section 4.4.2 asks for.
func (r *Repository) UpdateScalars(ctx context.Context, tx *gorm.DB, dep *db.Deployment) error {
	if err := tx.WithContext(ctx).Model(&db.Deployment{}).Where("id = ?", dep.ID).Updates(dep).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// SetProbes applies the three-valued probe contract directly, since
// gorm's struct Updates skips nil pointer fields too eagerly to express
// "clear this column" — a column map passes a cleared probe's nil
// pointers through as NULL.
func (r *Repository) SetProbes(ctx context.Context, tx *gorm.DB, deploymentID string, startup, liveness *ProbePatch) error {
	updates := map[string]interface{}{}
	if startup != nil {
		updates["startup_probe_port"] = startup.Port
		updates["startup_probe_path"] = startup.Path
	}
	if liveness != nil {
		updates["liveness_probe_port"] = liveness.Port
		updates["liveness_probe_path"] = liveness.Path
	}
	if len(updates) == 0 {
		return nil
	}
	err := tx.WithContext(ctx).Model(&db.Deployment{}).Where("id = ?", deploymentID).Updates(updates).Error
	if err != nil {
		return apierror.Server(err)
	}
	return nil
}

// ProbePatch is nil-fielded when the column should be cleared (probe
// removed), populated when the probe is set.
type ProbePatch struct {
	Port *int
	Path *string
}

// NewProbeColumns builds the patch for a probe: port == 0 is the "clear"
// arm of the three-valued contract from spec section 4.4.2.
func NewProbeColumns(port int, path string) *ProbePatch {
	if port == 0 {
		return &ProbePatch{}
	}
	return &ProbePatch{Port: &port, Path: &path}
}

// ReplaceExposedPorts deletes the current port set and inserts ports,
// inside the caller's transaction with deferred constraints already set
// (spec section 4.4.2.a). ports must be non-empty.
func (r *Repository) ReplaceExposedPorts(ctx context.Context, tx *gorm.DB, deploymentID string, ports []db.DeploymentExposedPort) error {
	txc := tx.WithContext(ctx)
	if err := txc.Where("deployment_id = ?", deploymentID).Delete(&db.DeploymentExposedPort{}).Error; err != nil {
		return apierror.Server(err)
	}
	for i := range ports {
		ports[i].DeploymentID = deploymentID
	}
	if err := txc.Create(&ports).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// ReplaceEnvVars deletes and reinserts the deployment's environment
// variable set.
func (r *Repository) ReplaceEnvVars(ctx context.Context, tx *gorm.DB, deploymentID string, envs []db.DeploymentEnvironmentVariable) error {
	txc := tx.WithContext(ctx)
	if err := txc.Where("deployment_id = ?", deploymentID).Delete(&db.DeploymentEnvironmentVariable{}).Error; err != nil {
		return apierror.Server(err)
	}
	if len(envs) == 0 {
		return nil
	}
	for i := range envs {
		envs[i].DeploymentID = deploymentID
	}
	if err := txc.Create(&envs).Error; err != nil {
		return apierror.Server(err)
	}
	return nil
}

// ReplaceVolumeMounts updates mount paths in place; it never adds or
// removes a row (spec section 4.4.2's volume-set-equality invariant is
// checked by the service before this is called).
func (r *Repository) ReplaceVolumeMounts(ctx context.Context, tx *gorm.DB, deploymentID string, mounts []db.DeploymentVolumeMount) error {
	txc := tx.WithContext(ctx)
	for _, m := range mounts {
		err := txc.Model(&db.DeploymentVolumeMount{}).
			Where("deployment_id = ? AND volume_id = ?", deploymentID, m.VolumeID).
			Update("mount_path", m.MountPath).Error
		if err != nil {
			return apierror.Server(err)
		}
	}
	return nil
}

// DeferConstraints switches the transaction's foreign keys to deferred,
// per spec section 4.4.2.a and section 5's "deferred FK constraints for
// multi-row replace-set operations" rule. Postgres-specific; a no-op
// would silently violate the spec's ordering guarantee on other drivers.
func DeferConstraints(tx *gorm.DB) error {
	return tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error
}
