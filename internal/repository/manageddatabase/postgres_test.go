package manageddatabase

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

func TestCountDatabases(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "managed_databases" WHERE workspace_id = \$1 AND deleted_at IS NULL`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountDatabases(context.Background(), gormDB, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNameTaken(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "managed_databases" WHERE workspace_id = \$1 AND name = \$2 AND deleted_at IS NULL`).
		WithArgs("ws-1", "primary").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	taken, err := repo.NameTaken(context.Background(), gormDB, "ws-1", "primary")
	require.NoError(t, err)
	assert.True(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	resource := &db.Resource{Name: "primary", ResourceTypeID: "resource-type-managed-database", OwnerWorkspaceID: "ws-1"}
	mdb := &db.ManagedDatabase{Name: "primary", WorkspaceID: "ws-1", Engine: db.EnginePostgres, Status: db.ManagedDatabaseStatusCreating}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "resources"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO "managed_databases"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx := gormDB.Begin()
	err := repo.Create(context.Background(), tx, resource, mdb)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkForDeletion(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`UPDATE "managed_databases" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := repo.MarkForDeletion(context.Background(), gormDB, "db-1", &now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
