package apitoken

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/config"
	repo "github.com/patr-cloud/patr-api/internal/repository/apitoken"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	return gormDB, mock
}

func setupTestCache(t *testing.T) *cache.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := cache.NewClient(config.RedisConfig{Host: mr.Host(), Port: mr.Port()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCreate_EmptyNameRejected(t *testing.T) {
	gormDB, _ := setupTestDB(t)
	svc := NewService(repo.NewRepository(), authn.NewHasher("pepper"), setupTestCache(t))

	_, err := svc.Create(context.Background(), gormDB, "user-1", CreateRequest{})
	require.Error(t, err)
}

func TestCreate_TokenShape(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	svc := NewService(repo.NewRepository(), authn.NewHasher("pepper"), setupTestCache(t))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "user_logins"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO "api_tokens"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx := gormDB.Begin()
	result, err := svc.Create(context.Background(), tx, "user-1", CreateRequest{Name: "ci"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)

	assert.True(t, strings.HasPrefix(result.Token, "patrv1."))
	assert.True(t, strings.HasSuffix(result.Token, "."+result.TokenID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke_EvictsCache(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	cacheClient := setupTestCache(t)
	svc := NewService(repo.NewRepository(), authn.NewHasher("pepper"), cacheClient)

	require.NoError(t, cacheClient.PutApiTokenData(context.Background(), "tok-1", cache.ApiTokenData{}, time.Minute))

	mock.ExpectQuery(`SELECT \* FROM "api_tokens" WHERE token_id = \$1 AND user_id = \$2`).
		WithArgs("tok-1", "user-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "user_id"}).AddRow("tok-1", "user-1"))
	mock.ExpectExec(`UPDATE "api_tokens" SET "revoked_at"=\$1 WHERE token_id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Revoke(context.Background(), gormDB, "user-1", "tok-1")
	require.NoError(t, err)

	_, err = cacheClient.GetApiTokenData(context.Background(), "tok-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
