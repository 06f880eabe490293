package authn

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the access-token payload. Sub is always the login_id, not the
// user_id — a single user can hold many concurrent logins, each a
// separate revocable principal (spec section 4.2 step 4).
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// TokenManager issues and validates HS256 access tokens against a single
// process-wide pepper. Patr uses HMAC rather than the RS256 keypair the
// teacher's TokenManager favors because the spec calls for one shared
// secret, not a distributable public key (see DESIGN.md).
type TokenManager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
}

func NewTokenManager(secret, issuer, audience string, accessTTL time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, audience: audience, accessTTL: accessTTL}
}

// IssueAccessToken mints a JWT with sub=loginID, a fresh UUIDv1-shaped jti
// (google/uuid has no v1 generator wired by default, so v4 is used — see
// DESIGN.md), and the configured issuer/audience/ttl.
func (tm *TokenManager) IssueAccessToken(loginID, userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   loginID,
			Audience:  jwt.ClaimStrings{tm.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ValidateAccessToken verifies signature, issuer, and the nbf/exp window.
// Revocation-cache consultation happens one layer up (internal/authn's
// caller has the cache.Client and the caller's workspace memberships);
// this function is pure cryptographic/temporal validation.
func (tm *TokenManager) ValidateAccessToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithAudience(tm.audience))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
