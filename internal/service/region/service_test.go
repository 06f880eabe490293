package region

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/region"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
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

func TestCreate_Empty(t *testing.T) {
	gormDB, _ := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	_, err := svc.Create(context.Background(), gormDB, CreateRequest{WorkspaceID: "ws-1"})
	require.Error(t, err)
}

func TestCreate_Success(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	mock.ExpectExec(`INSERT INTO "deployment_regions"`).WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := svc.Create(context.Background(), gormDB, CreateRequest{
		WorkspaceID: "ws-1", Name: "home-cluster", CloudProvider: db.CloudProviderOther, Kubeconfig: []byte("apiVersion: v1"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RefusesFirstPartyRegion(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE id = \$1 AND \(workspace_id = \$2 OR workspace_id IS NULL\) AND deleted_at IS NULL`).
		WithArgs("region-1", "ws-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id"}).AddRow("region-1", nil))

	err := svc.Delete(context.Background(), gormDB, "ws-1", "region-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RefusesWhenDeploymentsScheduled(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	wsID := "ws-1"
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE id = \$1 AND \(workspace_id = \$2 OR workspace_id IS NULL\) AND deleted_at IS NULL`).
		WithArgs("region-1", "ws-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id"}).AddRow("region-1", wsID))
	mock.ExpectQuery(`SELECT \* FROM "deployments" WHERE region_id = \$1 AND deleted_at IS NULL`).
		WithArgs("region-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("dep-1"))

	err := svc.Delete(context.Background(), gormDB, "ws-1", "region-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_Success(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	wsID := "ws-1"
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE id = \$1 AND \(workspace_id = \$2 OR workspace_id IS NULL\) AND deleted_at IS NULL`).
		WithArgs("region-1", "ws-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id"}).AddRow("region-1", wsID))
	mock.ExpectQuery(`SELECT \* FROM "deployments" WHERE region_id = \$1 AND deleted_at IS NULL`).
		WithArgs("region-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`UPDATE "deployment_regions" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Delete(context.Background(), gormDB, "ws-1", "region-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
