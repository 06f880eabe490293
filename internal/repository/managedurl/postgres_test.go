package managedurl

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

func TestDomainOwnedByWorkspace(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "workspace_domains" WHERE domain_id = \$1 AND workspace_id = \$2`).
		WithArgs("domain-1", "ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	owned, err := repo.DomainOwnedByWorkspace(context.Background(), gormDB, "ws-1", "domain-1")
	require.NoError(t, err)
	assert.True(t, owned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteTaken(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "managed_urls" WHERE sub_domain = \$1 AND domain_id = \$2 AND path = \$3`).
		WithArgs("app", "domain-1", "/").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	taken, err := repo.RouteTaken(context.Background(), gormDB, "app", "domain-1", "/")
	require.NoError(t, err)
	assert.False(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_JoinsWorkspaceDomains(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	rows := sqlmock.NewRows([]string{"id", "sub_domain", "domain_id"}).AddRow("url-1", "app", "domain-1")
	mock.ExpectQuery(`SELECT "managed_urls"\."id","managed_urls"\."sub_domain","managed_urls"\."domain_id" FROM "managed_urls" JOIN workspace_domains`).
		WillReturnRows(rows)

	url, err := repo.GetByID(context.Background(), gormDB, "ws-1", "url-1")
	require.NoError(t, err)
	assert.Equal(t, "url-1", url.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	repo := NewRepository()

	mock.ExpectExec(`DELETE FROM "managed_urls" WHERE id = \$1`).
		WithArgs("url-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), gormDB, "url-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
