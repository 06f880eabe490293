package secret

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

func TestCreate(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`INSERT INTO "secrets"`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), gormDB, &db.Secret{Name: "db-password", WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT \* FROM "secrets" WHERE id = \$1 AND workspace_id = \$2 AND deleted_at IS NULL`).
		WithArgs("secret-1", "ws-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), gormDB, "ws-1", "secret-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteAndTombstone(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`UPDATE "secrets" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := repo.SoftDeleteAndTombstone(context.Background(), gormDB, &db.Secret{ID: "secret-1", Name: "patr-deleted:secret-1@db-password"}, &now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
