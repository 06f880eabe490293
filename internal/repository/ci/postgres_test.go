package ci

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

func TestGetByID_Found(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	rows := sqlmock.NewRows([]string{"id", "workspace_id", "provider", "provider_repo_id", "webhook_secret", "activated"}).
		AddRow("repo-1", "ws-1", db.CIProviderGitHub, "123", "shh", true)
	mock.ExpectQuery(`SELECT \* FROM "ci_repos" WHERE id = \$1 AND deleted_at IS NULL ORDER BY "ci_repos"\."id" LIMIT \$2`).
		WithArgs("repo-1", 1).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), gormDB, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", found.WorkspaceID)
	assert.True(t, found.Activated)
}

func TestGetByID_NotFound(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT \* FROM "ci_repos" WHERE id = \$1 AND deleted_at IS NULL ORDER BY "ci_repos"\."id" LIMIT \$2`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), gormDB, "missing")
	assert.Error(t, err)
}

func TestCreateBuild_FirstBuildStartsAtOne(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "ci_builds" WHERE ci_repo_id = \$1 ORDER BY build_num DESC LIMIT \$2`).
		WithArgs("repo-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ci_repo_id", "build_num"}))
	mock.ExpectExec(`INSERT INTO "ci_builds"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx := gormDB.Begin()
	build := &db.CIBuild{ID: "build-1", CIRepoID: "repo-1", CommitSHA: "abc123", Status: db.BuildStatusRunning}
	err := repo.CreateBuild(context.Background(), tx, build)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	assert.Equal(t, 1, build.BuildNum)
}

func TestCreateBuild_IncrementsFromLatest(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "ci_builds" WHERE ci_repo_id = \$1 ORDER BY build_num DESC LIMIT \$2`).
		WithArgs("repo-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ci_repo_id", "build_num"}).
			AddRow("build-0", "repo-1", 7))
	mock.ExpectExec(`INSERT INTO "ci_builds"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx := gormDB.Begin()
	build := &db.CIBuild{ID: "build-1", CIRepoID: "repo-1", CommitSHA: "def456", Status: db.BuildStatusRunning}
	err := repo.CreateBuild(context.Background(), tx, build)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	assert.Equal(t, 8, build.BuildNum)
}

func TestWorkspaceSecretsByName(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	rows := sqlmock.NewRows([]string{"id", "name", "workspace_id"}).
		AddRow("secret-1", "prod-api-key", "ws-1").
		AddRow("secret-2", "db-password", "ws-1")
	mock.ExpectQuery(`SELECT \* FROM "secrets" WHERE workspace_id = \$1 AND deleted_at IS NULL`).
		WithArgs("ws-1").
		WillReturnRows(rows)

	byName, err := repo.WorkspaceSecretsByName(context.Background(), gormDB, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "secret-1", byName["prod-api-key"])
	assert.Equal(t, "secret-2", byName["db-password"])
}

func TestMarkBuildErrored(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`UPDATE "ci_builds" SET .+ WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkBuildErrored(context.Background(), gormDB, "build-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
