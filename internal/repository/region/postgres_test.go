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

func TestActiveBYOC(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	rows := sqlmock.NewRows([]string{"id", "name", "cloud_provider", "workspace_id", "status"}).
		AddRow("region-1", "byoc-1", db.CloudProviderOther, "ws-1", db.RegionStatusActive)
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE status = \$1 AND workspace_id IS NOT NULL AND deleted_at IS NULL`).
		WithArgs(db.RegionStatusActive).
		WillReturnRows(rows)

	regions, err := repo.ActiveBYOC(context.Background(), gormDB)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "region-1", regions[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDisconnected(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "deployment_regions" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx := gormDB.Begin()
	err := repo.MarkDisconnected(context.Background(), tx, "region-1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCertificateRevoked(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`UPDATE "deployment_regions" SET "certificate_revoked"=\$1 WHERE id = \$2`).
		WithArgs(true, "region-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkCertificateRevoked(context.Background(), gormDB, "region-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceAlertEmails(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	rows := sqlmock.NewRows([]string{"id", "alert_emails"}).
		AddRow("ws-1", `["ops@example.com","oncall@example.com"]`)
	mock.ExpectQuery(`SELECT \* FROM "workspaces" WHERE id = \$1 ORDER BY "workspaces"\."id" LIMIT \$2`).
		WithArgs("ws-1", 1).
		WillReturnRows(rows)

	emails, err := repo.WorkspaceAlertEmails(context.Background(), gormDB, "ws-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ops@example.com", "oncall@example.com"}, emails)
}

func TestCreate(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	wsID := "ws-1"
	mock.ExpectExec(`INSERT INTO "deployment_regions"`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), gormDB, &db.DeploymentRegion{Name: "home-cluster", WorkspaceID: &wsID, Status: db.RegionStatusCreated})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_MatchesWorkspaceOrFirstParty(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow("region-1", "us-east")
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE id = \$1 AND \(workspace_id = \$2 OR workspace_id IS NULL\) AND deleted_at IS NULL`).
		WithArgs("region-1", "ws-1", 1).
		WillReturnRows(rows)

	region, err := repo.GetByID(context.Background(), gormDB, "ws-1", "region-1")
	require.NoError(t, err)
	assert.Equal(t, "region-1", region.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow("region-1", "us-east").AddRow("region-2", "byoc-1")
	mock.ExpectQuery(`SELECT \* FROM "deployment_regions" WHERE \(workspace_id = \$1 OR workspace_id IS NULL\) AND deleted_at IS NULL`).
		WithArgs("ws-1").
		WillReturnRows(rows)

	regions, err := repo.List(context.Background(), gormDB, "ws-1")
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDelete(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`UPDATE "deployment_regions" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SoftDelete(context.Background(), gormDB, "region-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceAlertEmails_NotFoundReturnsNil(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT \* FROM "workspaces" WHERE id = \$1 ORDER BY "workspaces"\."id" LIMIT \$2`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	emails, err := repo.WorkspaceAlertEmails(context.Background(), gormDB, "missing")
	require.NoError(t, err)
	assert.Nil(t, emails)
}
