package authn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/patr-cloud/patr-api/internal/authn"
)

type stubGeolocator struct {
	geo authn.Geo
	err error
}

func (s *stubGeolocator) Lookup(ctx context.Context, ip net.IP) (authn.Geo, error) {
	return s.geo, s.err
}

func setupLoginTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	return gormDB, mock
}

func TestLoginService_Login_Success(t *testing.T) {
	gormDB, mock := setupLoginTestDB(t)
	hasher := authn.NewHasher("pepper")
	passwordHash, err := hasher.Hash("correcthorse")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "recovery_email"}).
		AddRow("user-1", "alice", passwordHash, "alice@example.com")
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1 OR recovery_email = \$2`).
		WithArgs("alice", "alice", 1). // GORM adds LIMIT 1 for First()
		WillReturnRows(rows)

	mock.ExpectExec(`INSERT INTO "user_logins"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO "web_logins"`).WillReturnResult(sqlmock.NewResult(1, 1))

	tokens := authn.NewTokenManager("jwt-secret", "patr.cloud", "patr.cloud/api", time.Hour)
	geo := &stubGeolocator{geo: authn.Geo{Country: "US", City: "SF"}}
	svc := authn.NewLoginService(hasher, tokens, geo, false, 30*24*time.Hour)

	result, err := svc.Login(context.Background(), gormDB, authn.LoginRequest{UserID: "alice", Password: "correcthorse"}, net.ParseIP("1.2.3.4"), "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
}

func TestLoginService_Login_WrongPassword(t *testing.T) {
	gormDB, mock := setupLoginTestDB(t)
	hasher := authn.NewHasher("pepper")
	passwordHash, err := hasher.Hash("correcthorse")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "recovery_email"}).
		AddRow("user-1", "alice", passwordHash, "alice@example.com")
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1 OR recovery_email = \$2`).
		WithArgs("alice", "alice", 1). // GORM adds LIMIT 1 for First()
		WillReturnRows(rows)

	tokens := authn.NewTokenManager("jwt-secret", "patr.cloud", "patr.cloud/api", time.Hour)
	geo := &stubGeolocator{}
	svc := authn.NewLoginService(hasher, tokens, geo, false, 30*24*time.Hour)

	_, err = svc.Login(context.Background(), gormDB, authn.LoginRequest{UserID: "alice", Password: "wrongpassword"}, net.ParseIP("1.2.3.4"), "test-agent")
	assert.Error(t, err)
}

func TestLoginService_Login_UserNotFound(t *testing.T) {
	gormDB, mock := setupLoginTestDB(t)
	hasher := authn.NewHasher("pepper")

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1 OR recovery_email = \$2`).
		WithArgs("ghost", "ghost", 1). // GORM adds LIMIT 1 for First()
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tokens := authn.NewTokenManager("jwt-secret", "patr.cloud", "patr.cloud/api", time.Hour)
	svc := authn.NewLoginService(hasher, tokens, &stubGeolocator{}, false, 30*24*time.Hour)

	_, err := svc.Login(context.Background(), gormDB, authn.LoginRequest{UserID: "ghost", Password: "whatever"}, net.ParseIP("1.2.3.4"), "test-agent")
	assert.Error(t, err)
}

func TestLoginService_Login_MFARequiredWhenOTPMissing(t *testing.T) {
	gormDB, mock := setupLoginTestDB(t)
	hasher := authn.NewHasher("pepper")
	passwordHash, err := hasher.Hash("correcthorse")
	require.NoError(t, err)
	secret, _, err := authn.GenerateMFASecret("alice@example.com", "Patr")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "recovery_email", "mfa_secret"}).
		AddRow("user-1", "alice", passwordHash, "alice@example.com", secret)
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1 OR recovery_email = \$2`).
		WithArgs("alice", "alice", 1). // GORM adds LIMIT 1 for First()
		WillReturnRows(rows)

	tokens := authn.NewTokenManager("jwt-secret", "patr.cloud", "patr.cloud/api", time.Hour)
	svc := authn.NewLoginService(hasher, tokens, &stubGeolocator{}, false, 30*24*time.Hour)

	_, err = svc.Login(context.Background(), gormDB, authn.LoginRequest{UserID: "alice", Password: "correcthorse"}, net.ParseIP("1.2.3.4"), "test-agent")
	assert.Error(t, err)
}
