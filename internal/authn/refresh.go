package authn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/db"
)

// RefreshService implements POST /auth/renew-access-token and
// POST /auth/logout: the two operations that act on an existing
// WebLogin row without running the full password/MFA flow in
// LoginService.
type RefreshService struct {
	hasher *Hasher
	tokens *TokenManager
	cache  *cache.Client
}

func NewRefreshService(hasher *Hasher, tokens *TokenManager, cacheClient *cache.Client) *RefreshService {
	return &RefreshService{hasher: hasher, tokens: tokens, cache: cacheClient}
}

// parseRefreshToken splits "{login_id}.{secret}" — the shape
// LoginService.Login returns as RefreshToken.
func parseRefreshToken(raw string) (loginID, secret string, err error) {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apierror.New(apierror.CodeMalformedAccessToken, "malformed refresh token")
	}
	return parts[0], parts[1], nil
}

// RenewAccessToken verifies the refresh token against its stored hash
// and issues a fresh access JWT; the refresh token itself is not
// rotated — WebLogin.TokenExpiry keeps governing its own long TTL.
func (s *RefreshService) RenewAccessToken(ctx context.Context, tx *gorm.DB, rawRefreshToken string) (string, error) {
	loginID, secret, err := parseRefreshToken(rawRefreshToken)
	if err != nil {
		return "", err
	}

	var login db.WebLogin
	err = tx.WithContext(ctx).Where("login_id = ?", loginID).First(&login).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", apierror.New(apierror.CodeAuthorizationTokenInvalid, "no such login")
		}
		return "", apierror.Server(err)
	}

	if time.Now().UTC().After(login.TokenExpiry) {
		return "", apierror.New(apierror.CodeAuthorizationTokenInvalid, "refresh token has expired")
	}

	match, err := s.hasher.Verify(secret, login.RefreshTokenHash)
	if err != nil {
		return "", apierror.Server(err)
	}
	if !match {
		return "", apierror.New(apierror.CodeAuthorizationTokenInvalid, "refresh token does not match")
	}

	access, err := s.tokens.IssueAccessToken(loginID, login.UserID)
	if err != nil {
		return "", apierror.Server(fmt.Errorf("issue access token: %w", err))
	}

	now := time.Now().UTC()
	err = tx.WithContext(ctx).Model(&db.WebLogin{}).
		Where("login_id = ?", loginID).
		Update("last_activity_at", now).Error
	if err != nil {
		return "", apierror.Server(err)
	}
	return access, nil
}

// Logout revokes loginID so every outstanding access token issued for it
// fails revocation-cache validation from now on (spec section 4.2's
// token-validation step).
func (s *RefreshService) Logout(ctx context.Context, loginID string, ttl time.Duration) error {
	return s.cache.RevokeLogin(ctx, loginID, ttl)
}
