package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/reconciler"
)

func setupDriftTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	return gormDB, mock
}

func TestDriftRepair_NoNamespacesIsNoop(t *testing.T) {
	client := fake.NewSimpleClientset()
	gormDB, _ := setupDriftTestDB(t)

	r := reconciler.New(client, gormDB, zap.NewNop())
	err := r.DriftRepair(context.Background())
	require.NoError(t, err)
}

func TestDriftRepair_DeletesOrphanedDeployment(t *testing.T) {
	namespace := "ws-1"
	orphanDep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "deployment-dep-missing",
			Namespace: namespace,
			Labels:    map[string]string{"patr.cloud/deployment-id": "dep-missing"},
		},
	}
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}}

	client := fake.NewSimpleClientset(ns, orphanDep)
	gormDB, mock := setupDriftTestDB(t)

	mock.ExpectQuery(`SELECT \* FROM "deployments" WHERE id = \$1 ORDER BY "deployments"\."id" LIMIT \$2`).
		WithArgs("dep-missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "deployments" WHERE workspace_id = \$1 AND status != \$2`).
		WithArgs(namespace, db.DeploymentStatusDeleted).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := reconciler.New(client, gormDB, zap.NewNop())
	err := r.DriftRepair(context.Background())
	require.NoError(t, err)

	_, getErr := client.AppsV1().Deployments(namespace).Get(context.Background(), "deployment-dep-missing", metav1.GetOptions{})
	assert.Error(t, getErr, "orphaned deployment object should have been deleted")
	assert.NoError(t, mock.ExpectationsWereMet())
}
