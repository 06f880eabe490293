package reconciler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.uber.org/zap"

	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/dbping"
	"github.com/patr-cloud/patr-api/internal/helm"
)

// databaseEngineSpec is the per-engine knowledge the managed-database
// chart needs: the image, the port the Service exposes, and the exec
// command used as the StatefulSet's readiness/liveness probe (spec
// section 4.5).
type databaseEngineSpec struct {
	Image       string
	Port        int
	PingCommand []string
}

var databaseEngineCatalog = map[db.ManagedDatabaseEngine]databaseEngineSpec{
	db.EnginePostgres: {Image: "postgres:16", Port: 5432, PingCommand: []string{"psql", "-U", "$POSTGRES_USER", "-c", "SELECT 1"}},
	db.EngineMySQL:    {Image: "mysql:8", Port: 3306, PingCommand: []string{"mysqladmin", "ping", "-h", "127.0.0.1"}},
	db.EngineMongo:    {Image: "mongo:7", Port: 27017, PingCommand: []string{"mongo", "--eval", "db.adminCommand('ping')"}},
	db.EngineRedis:    {Image: "redis:7", Port: 6379, PingCommand: []string{"redis-cli", "ping"}},
}

// databasePlanStorage maps a managed-database plan to a PVC size. The
// plan catalog itself is out of scope here, same placeholder rationale
// as machineTypeResources in reconciler.go.
var databasePlanStorage = map[string]string{
	"db-plan-nano":   "1Gi",
	"db-plan-micro":  "5Gi",
	"db-plan-small":  "20Gi",
	"db-plan-medium": "50Gi",
}

func planStorage(plan string) string {
	if size, ok := databasePlanStorage[plan]; ok {
		return size
	}
	return "5Gi"
}

// dbStatefulSetName, dbServiceName, and dbPVCName follow spec section
// 4.5's literal naming scheme for the managed-database primitives.
func dbStatefulSetName(id string) string { return "db-sts-" + id }
func dbServiceName(id string) string     { return "db-svc-" + id }
func dbPVCName(id string) string         { return "db-pvc-" + id }

// databaseWaitTimeout bounds how long ProvisionDatabase polls the
// StatefulSet's status subresource before giving up and marking the
// database errored.
const databaseWaitTimeout = 10 * time.Minute

// ProvisionDatabase renders and applies the managed-database chart for
// one ManagedDatabase row, then blocks until the StatefulSet reports
// ready and an engine-specific ping succeeds, updating the row's
// status/host/port/username/password_hash. r.helm and r.hasher must be
// set (see WithDatabaseProvisioning); callers that never configured
// either get an explicit error rather than a nil dereference.
func (r *Reconciler) ProvisionDatabase(ctx context.Context, databaseID string) error {
	if r.helm == nil || r.hasher == nil {
		return fmt.Errorf("reconciler: database provisioning not configured")
	}

	var mdb db.ManagedDatabase
	if err := r.db.WithContext(ctx).Where("id = ?", databaseID).First(&mdb).Error; err != nil {
		return fmt.Errorf("load managed database: %w", err)
	}
	if mdb.Status == db.ManagedDatabaseStatusDeleted {
		return r.teardownDatabase(ctx, &mdb)
	}

	spec, ok := databaseEngineCatalog[mdb.Engine]
	if !ok {
		return fmt.Errorf("no engine catalog entry for %q", mdb.Engine)
	}

	namespace := mdb.WorkspaceID
	if err := r.ensureNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("ensure namespace: %w", err)
	}

	username := "patr"
	password, err := generateDatabasePassword()
	if err != nil {
		return fmt.Errorf("generate credentials: %w", err)
	}

	values := map[string]interface{}{
		"id":          mdb.ID,
		"namespace":   namespace,
		"image":       spec.Image,
		"port":        spec.Port,
		"storage":     planStorage(mdb.Plan),
		"replicas":    mdb.ReplicaCount,
		"username":    username,
		"password":    password,
		"dbName":      mdb.DBName,
		"pingCommand": spec.PingCommand,
	}

	ch, err := helm.LoadManagedDatabaseChart()
	if err != nil {
		return fmt.Errorf("load managed database chart: %w", err)
	}
	releaseName := "managed-database-" + mdb.ID
	if err := r.helm.InstallOrUpgradeChart(releaseName, ch, namespace, values); err != nil {
		r.markDatabaseErrored(ctx, &mdb, err)
		return fmt.Errorf("install managed database chart: %w", err)
	}

	host := fmt.Sprintf("%s.%s.svc.cluster.local", dbServiceName(mdb.ID), namespace)
	if err := r.waitForDatabaseReady(ctx, namespace, &mdb, spec, host, username, password); err != nil {
		r.markDatabaseErrored(ctx, &mdb, err)
		return err
	}

	passwordHash, err := r.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash generated password: %w", err)
	}

	updates := map[string]interface{}{
		"status":        db.ManagedDatabaseStatusRunning,
		"host":          host,
		"port":          spec.Port,
		"username":      username,
		"password_hash": passwordHash,
	}
	if err := r.db.WithContext(ctx).Model(&db.ManagedDatabase{}).Where("id = ?", mdb.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("persist running status: %w", err)
	}
	return nil
}

// waitForDatabaseReady polls the StatefulSet's status subresource every
// second until its ready-replica count matches the desired count, then
// confirms the engine actually answers before declaring it online — the
// readiness probe already runs this same ping inside the pod, but a
// second check from the control plane catches a Service that isn't
// routing yet even though the pod itself is marked ready.
func (r *Reconciler) waitForDatabaseReady(ctx context.Context, namespace string, mdb *db.ManagedDatabase, spec databaseEngineSpec, host, username, password string) error {
	deadline := time.Now().Add(databaseWaitTimeout)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	name := dbStatefulSetName(mdb.ID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sts, err := r.client.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				if time.Now().After(deadline) {
					return fmt.Errorf("statefulset %s never appeared: %w", name, err)
				}
				continue
			}
			if !statefulSetReady(sts) {
				if time.Now().After(deadline) {
					return fmt.Errorf("statefulset %s did not become ready within %s", name, databaseWaitTimeout)
				}
				continue
			}
			pingErr := dbping.Ping(ctx, dbping.Target{
				Engine: mdb.Engine, Host: host, Port: spec.Port, DBName: mdb.DBName, Username: username, Password: password,
			})
			if pingErr == nil {
				return nil
			}
			r.logger.Warn("managed database statefulset ready but engine ping failed, retrying",
				zap.String("database_id", mdb.ID), zap.Error(pingErr))
			if time.Now().After(deadline) {
				return fmt.Errorf("engine never answered a ping within %s: %w", databaseWaitTimeout, pingErr)
			}
		}
	}
}

func statefulSetReady(sts *appsv1.StatefulSet) bool {
	desired := int32(1)
	if sts.Spec.Replicas != nil {
		desired = *sts.Spec.Replicas
	}
	return sts.Status.ReadyReplicas >= desired
}

func (r *Reconciler) markDatabaseErrored(ctx context.Context, mdb *db.ManagedDatabase, cause error) {
	r.logger.Error("managed database provisioning failed", zap.String("database_id", mdb.ID), zap.Error(cause))
	err := r.db.WithContext(ctx).Model(&db.ManagedDatabase{}).Where("id = ?", mdb.ID).
		Update("status", db.ManagedDatabaseStatusErrored).Error
	if err != nil {
		r.logger.Error("failed to record managed database error status", zap.String("database_id", mdb.ID), zap.Error(err))
	}
}

// teardownDatabase removes the StatefulSet/Service/PVC/Secret chart
// release for a soft-deleted managed database.
func (r *Reconciler) teardownDatabase(ctx context.Context, mdb *db.ManagedDatabase) error {
	if r.helm == nil {
		return nil
	}
	releaseName := "managed-database-" + mdb.ID
	if err := r.helm.Uninstall(releaseName, mdb.WorkspaceID); err != nil {
		return fmt.Errorf("uninstall managed database release: %w", err)
	}
	return nil
}

func generateDatabasePassword() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// StartDatabaseProvisioning sweeps for ManagedDatabase rows in the
// "creating" or "deleted" state on a fixed interval and provisions or
// tears each one down — the periodic counterpart to the managed-database
// create/delete service (internal/service/manageddatabase), which only
// ever writes the row and leaves the chart install/uninstall to this
// sweep. A delete that races a still-provisioning create is picked up on
// the next tick regardless of which state won the write; ProvisionDatabase
// re-checks Status itself before acting. A "deleted" row keeps that
// status after its release is uninstalled, so it is selected again on
// every tick; once the release is gone Uninstall returns an error, which
// provisionPendingDatabases logs. No code prunes these rows.
func (r *Reconciler) StartDatabaseProvisioning(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.provisionPendingDatabases(ctx)
			}
		}
	}()
}

func (r *Reconciler) provisionPendingDatabases(ctx context.Context) {
	var pending []db.ManagedDatabase
	statuses := []db.ManagedDatabaseStatus{db.ManagedDatabaseStatusCreating, db.ManagedDatabaseStatusDeleted}
	err := r.db.WithContext(ctx).Where("status IN ?", statuses).Find(&pending).Error
	if err != nil {
		r.logger.Error("list pending managed databases", zap.Error(err))
		return
	}
	for _, mdb := range pending {
		if err := r.ProvisionDatabase(ctx, mdb.ID); err != nil {
			r.logger.Error("provision managed database", zap.String("database_id", mdb.ID), zap.Error(err))
		}
	}
}
