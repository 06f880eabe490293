package apitoken

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

	login := &db.UserLogin{LoginID: "login-1", UserID: "user-1", LoginType: db.LoginTypeAPIToken}
	token := &db.ApiToken{TokenID: "login-1", UserID: "user-1", Name: "ci", TokenHash: "hash"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "user_logins"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO "api_tokens"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx := gormDB.Begin()
	err := repo.Create(context.Background(), tx, login, token, nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT \* FROM "api_tokens" WHERE token_id = \$1 AND user_id = \$2`).
		WithArgs("tok-1", "user-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"token_id"}))

	_, err := repo.GetByID(context.Background(), gormDB, "user-1", "tok-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`UPDATE "api_tokens" SET "revoked_at"=\$1 WHERE token_id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := repo.Revoke(context.Background(), gormDB, "tok-1", &now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeWorkspaceIDs(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT \* FROM "api_token_workspace_super_admins" WHERE token_id = \$1`).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "workspace_id"}).AddRow("tok-1", "ws-1"))
	mock.ExpectQuery(`SELECT \* FROM "api_token_resource_permissions_types" WHERE token_id = \$1`).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "workspace_id"}).AddRow("tok-1", "ws-2"))

	ids, err := repo.ScopeWorkspaceIDs(context.Background(), gormDB, "tok-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ws-1", "ws-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
