package authn_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/config"
)

func setupRefreshTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	return gormDB, mock
}

func setupRefreshTestCache(t *testing.T) *cache.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := cache.NewClient(config.RedisConfig{Host: mr.Host(), Port: mr.Port()}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestRefreshService_RenewAccessToken_MalformedToken(t *testing.T) {
	gormDB, _ := setupRefreshTestDB(t)
	tokens := authn.NewTokenManager("secret", "patr", "patr-api", time.Minute)
	svc := authn.NewRefreshService(authn.NewHasher("pepper"), tokens, setupRefreshTestCache(t))

	_, err := svc.RenewAccessToken(context.Background(), gormDB, "not-a-valid-token")
	require.Error(t, err)
}

func TestRefreshService_RenewAccessToken_Expired(t *testing.T) {
	gormDB, mock := setupRefreshTestDB(t)
	hasher := authn.NewHasher("pepper")
	secretHash, err := hasher.Hash("topsecret")
	require.NoError(t, err)
	tokens := authn.NewTokenManager("secret", "patr", "patr-api", time.Minute)
	svc := authn.NewRefreshService(hasher, tokens, setupRefreshTestCache(t))

	rows := sqlmock.NewRows([]string{"login_id", "user_id", "refresh_token_hash", "token_expiry"}).
		AddRow("login-1", "user-1", secretHash, time.Now().UTC().Add(-time.Hour))
	mock.ExpectQuery(`SELECT \* FROM "web_logins" WHERE login_id = \$1`).
		WithArgs("login-1", 1).
		WillReturnRows(rows)

	_, err = svc.RenewAccessToken(context.Background(), gormDB, "login-1.topsecret")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshService_RenewAccessToken_Success(t *testing.T) {
	gormDB, mock := setupRefreshTestDB(t)
	hasher := authn.NewHasher("pepper")
	secretHash, err := hasher.Hash("topsecret")
	require.NoError(t, err)
	tokens := authn.NewTokenManager("secret", "patr", "patr-api", time.Minute)
	svc := authn.NewRefreshService(hasher, tokens, setupRefreshTestCache(t))

	rows := sqlmock.NewRows([]string{"login_id", "user_id", "refresh_token_hash", "token_expiry"}).
		AddRow("login-1", "user-1", secretHash, time.Now().UTC().Add(time.Hour))
	mock.ExpectQuery(`SELECT \* FROM "web_logins" WHERE login_id = \$1`).
		WithArgs("login-1", 1).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "web_logins" SET "last_activity_at"=\$1 WHERE login_id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	access, err := svc.RenewAccessToken(context.Background(), gormDB, "login-1.topsecret")
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshService_Logout_RevokesLogin(t *testing.T) {
	tokens := authn.NewTokenManager("secret", "patr", "patr-api", time.Minute)
	cacheClient := setupRefreshTestCache(t)
	svc := authn.NewRefreshService(authn.NewHasher("pepper"), tokens, cacheClient)

	err := svc.Logout(context.Background(), "login-1", time.Hour)
	require.NoError(t, err)

	revoked, err := cacheClient.LookupRevocations(context.Background(), "user-1", "login-1", nil)
	require.NoError(t, err)
	assert.NotZero(t, revoked.Login)
}
