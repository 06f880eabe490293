package staticsite

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

	repo "github.com/patr-cloud/patr-api/internal/repository/staticsite"
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

func TestCreate_QuotaExceeded(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	mock.ExpectQuery(`SELECT count\(\*\) FROM "static_sites" WHERE workspace_id = \$1 AND deleted_at IS NULL`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT \* FROM "workspaces" WHERE id = \$1 ORDER BY "workspaces"\."id" LIMIT \$2`).
		WithArgs("ws-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "static_site_limit"}).AddRow("ws-1", 3))

	_, err := svc.Create(context.Background(), gormDB, CreateRequest{WorkspaceID: "ws-1", Name: "docs"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_AdvancesLiveUpload(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	mock.ExpectQuery(`SELECT \* FROM "static_sites" WHERE id = \$1 AND workspace_id = \$2 AND deleted_at IS NULL`).
		WithArgs("site-1", "ws-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id"}).AddRow("site-1", "ws-1"))
	mock.ExpectExec(`INSERT INTO "static_site_uploads"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE "static_sites" SET .+ WHERE id = \$\d+`).WillReturnResult(sqlmock.NewResult(0, 1))

	uploadID, err := svc.Upload(context.Background(), gormDB, "ws-1", "site-1", UploadRequest{Digest: "sha256:aaa"})
	require.NoError(t, err)
	assert.NotEmpty(t, uploadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_EmptyDigestRejected(t *testing.T) {
	gormDB, _ := setupTestDB(t)
	svc := NewService(repo.NewRepository())

	_, err := svc.Upload(context.Background(), gormDB, "ws-1", "site-1", UploadRequest{})
	require.Error(t, err)
}
