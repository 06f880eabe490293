package region_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/region"
)

func setupControllerTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	return gormDB, mock
}

// fakeClientsFactory ignores the kubeconfig bytes and always returns a
// fake clientset exposing a single ingress controller LoadBalancer
// Service with the given hostname.
func fakeClientsFactory(hostname string) region.ClientFactory {
	return func(kubeconfig []byte) (kubernetes.Interface, error) {
		svc := &corev1.Service{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "ingress-nginx-controller",
				Namespace: "ingress-nginx",
				Labels:    map[string]string{"app.kubernetes.io/component": "controller"},
			},
			Spec: corev1.ServiceSpec{Type: corev1.ServiceTypeLoadBalancer},
			Status: corev1.ServiceStatus{
				LoadBalancer: corev1.LoadBalancerStatus{
					Ingress: []corev1.LoadBalancerIngress{{Hostname: hostname}},
				},
			},
		}
		return fake.NewSimpleClientset(svc), nil
	}
}

type stubReconciler struct{ enqueued []string }

func (s *stubReconciler) EnqueueReconcile(ctx context.Context, deploymentID string) error {
	s.enqueued = append(s.enqueued, deploymentID)
	return nil
}

type stubNotifier struct {
	recipients []string
	region     string
	days       int
}

func (s *stubNotifier) NotifyDaysRemaining(ctx context.Context, recipients []string, regionName string, daysRemaining int) {
	s.recipients = recipients
	s.region = regionName
	s.days = daysRemaining
}

type stubCertRevoker struct{ revoked []string }

func (s *stubCertRevoker) Revoke(ctx context.Context, certificateID string) error {
	s.revoked = append(s.revoked, certificateID)
	return nil
}

func TestConnectionProbe_MarksDisconnectedOnMismatch(t *testing.T) {
	gormDB, mock := setupControllerTestDB(t)
	wsID := "ws-1"
	stored := "old.example.com"

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "name", "workspace_id", "status", "ingress_hostname"}).
		AddRow("region-1", "byoc-1", wsID, db.RegionStatusActive, &stored)
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status = \$1 AND workspace_id IS NOT NULL AND deleted_at IS NULL`).
		WithArgs(db.RegionStatusActive).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "deployment_regions" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctrl := region.New(gormDB, &stubReconciler{}, fakeClientsFactory("new.example.com"), &stubNotifier{}, &stubCertRevoker{}, 7, 0, 1, zap.NewNop())
	ctrl.ConnectionProbe(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionProbe_NoActionOnMatch(t *testing.T) {
	gormDB, mock := setupControllerTestDB(t)
	wsID := "ws-1"
	stored := "lb.example.com"

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "name", "workspace_id", "status", "ingress_hostname"}).
		AddRow("region-1", "byoc-1", wsID, db.RegionStatusActive, &stored)
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status = \$1 AND workspace_id IS NOT NULL AND deleted_at IS NULL`).
		WithArgs(db.RegionStatusActive).
		WillReturnRows(rows)
	mock.ExpectCommit()

	ctrl := region.New(gormDB, &stubReconciler{}, fakeClientsFactory("lb.example.com"), &stubNotifier{}, &stubCertRevoker{}, 7, 0, 1, zap.NewNop())
	ctrl.ConnectionProbe(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisconnectedRegionHandler_ReactivatesOnMatchingHostname(t *testing.T) {
	gormDB, mock := setupControllerTestDB(t)
	wsID := "ws-1"
	stored := "lb.example.com"
	disconnectedAt := time.Now().UTC().Add(-time.Hour)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "name", "workspace_id", "status", "ingress_hostname", "disconnected_at"}).
		AddRow("region-1", "byoc-1", wsID, db.RegionStatusDisconnected, &stored, disconnectedAt)
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status = \$1 AND deleted_at IS NULL`).
		WithArgs(db.RegionStatusDisconnected).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "deployment_regions" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctrl := region.New(gormDB, &stubReconciler{}, fakeClientsFactory("lb.example.com"), &stubNotifier{}, &stubCertRevoker{}, 7, 0, 1, zap.NewNop())
	ctrl.DisconnectedRegionHandler(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisconnectedRegionHandler_CascadeDeletesAfterGracePeriod(t *testing.T) {
	gormDB, mock := setupControllerTestDB(t)
	wsID := "ws-1"
	stored := "lb.example.com"
	disconnectedAt := time.Now().UTC().Add(-10 * 24 * time.Hour)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "name", "workspace_id", "status", "ingress_hostname", "disconnected_at"}).
		AddRow("region-1", "byoc-1", wsID, db.RegionStatusDisconnected, &stored, disconnectedAt)
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status = \$1 AND deleted_at IS NULL`).
		WithArgs(db.RegionStatusDisconnected).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT \* FROM "deployments" WHERE region_id = \$1 AND deleted_at IS NULL`).
		WithArgs("region-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("dep-1"))
	mock.ExpectExec(`UPDATE "deployments" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "deployment_regions" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reconciler := &stubReconciler{}
	ctrl := region.New(gormDB, reconciler, fakeClientsFactory("unreachable.example.com"), &stubNotifier{}, &stubCertRevoker{}, 7, 0, 1, zap.NewNop())
	ctrl.DisconnectedRegionHandler(context.Background())

	assert.Equal(t, []string{"dep-1"}, reconciler.enqueued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisconnectedRegionHandler_NotifiesWithinGracePeriod(t *testing.T) {
	gormDB, mock := setupControllerTestDB(t)
	wsID := "ws-1"
	stored := "lb.example.com"
	disconnectedAt := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "name", "workspace_id", "status", "ingress_hostname", "disconnected_at"}).
		AddRow("region-1", "byoc-1", wsID, db.RegionStatusDisconnected, &stored, disconnectedAt)
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status = \$1 AND deleted_at IS NULL`).
		WithArgs(db.RegionStatusDisconnected).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT \* FROM "workspaces" WHERE id = \$1 ORDER BY "workspaces"\."id" LIMIT \$2`).
		WithArgs(wsID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "alert_emails"}).AddRow(wsID, `["ops@example.com"]`))
	mock.ExpectCommit()

	notifier := &stubNotifier{}
	ctrl := region.New(gormDB, &stubReconciler{}, fakeClientsFactory("unreachable.example.com"), notifier, &stubCertRevoker{}, 7, 0, 1, zap.NewNop())
	ctrl.DisconnectedRegionHandler(context.Background())

	assert.Equal(t, "byoc-1", notifier.region)
	assert.Equal(t, 6, notifier.days)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRevocationSweep_MarksRevoked(t *testing.T) {
	gormDB, mock := setupControllerTestDB(t)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "name", "status", "cloudflare_certificate_id", "certificate_revoked"}).
		AddRow("region-1", "byoc-1", db.RegionStatusDeleted, "cert-1", false)
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status IN \(\$1,\$2\) AND cloudflare_certificate_id != '' AND certificate_revoked = false`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "deployment_regions" SET "certificate_revoked"=\$1 WHERE id = \$2`).
		WithArgs(true, "region-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	revoker := &stubCertRevoker{}
	ctrl := region.New(gormDB, &stubReconciler{}, fakeClientsFactory("lb.example.com"), &stubNotifier{}, revoker, 7, 0, 1, zap.NewNop())
	ctrl.CertificateRevocationSweep(context.Background())

	assert.Equal(t, []string{"cert-1"}, revoker.revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseLivenessCheck_MarksErroredOnUnreachableEngine(t *testing.T) {
	gormDB, mock := setupControllerTestDB(t)
	wsID := "ws-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status = \$1 AND workspace_id IS NOT NULL AND deleted_at IS NULL`).
		WithArgs(db.RegionStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "workspace_id", "status"}).AddRow("region-1", "byoc-1", wsID, db.RegionStatusActive))
	mock.ExpectQuery(`SELECT \* FROM "managed_databases" WHERE region_id IN \(\$1\) AND status = \$2 AND deleted_at IS NULL`).
		WithArgs("region-1", db.ManagedDatabaseStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"id", "region_id", "engine", "host", "port", "db_name", "username", "status"}).
			AddRow("db-1", "region-1", db.EnginePostgres, "127.0.0.1", 1, "app", "app", db.ManagedDatabaseStatusRunning))
	mock.ExpectExec(`UPDATE "managed_databases" SET "status"=\$1 WHERE id = \$2`).
		WithArgs(db.ManagedDatabaseStatusErrored, "db-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctrl := region.New(gormDB, &stubReconciler{}, fakeClientsFactory("lb.example.com"), &stubNotifier{}, &stubCertRevoker{}, 7, 0, 1, zap.NewNop())
	ctrl.DatabaseLivenessCheck(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}
