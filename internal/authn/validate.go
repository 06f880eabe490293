package authn

import (
	"context"
	"fmt"
	"net"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/db"
)

// Principal is the authenticated caller a request proceeds with, after
// either the JWT or the API-token path succeeds.
type Principal struct {
	UserID  string
	LoginID string
	// ApiToken is set only when the caller authenticated with a
	// patrv1.* token; the RBAC engine (C5) intersects its scope with
	// the user's role-derived permissions.
	ApiToken *cache.ApiTokenData
}

// Validator is C4's single entry point: given a bearer value, produce an
// authenticated Principal or a closed apierror.
type Validator struct {
	tokens    *TokenManager
	apiTokens *ApiTokenValidator
	cache     *cache.Client
}

func NewValidator(tokens *TokenManager, apiTokens *ApiTokenValidator, cacheClient *cache.Client) *Validator {
	return &Validator{tokens: tokens, apiTokens: apiTokens, cache: cacheClient}
}

// Authenticate validates bearer and, for the JWT path, every workspace
// the caller is a member of in memberWorkspaceIDs (used to evaluate
// per-workspace revocation) — the endpoint framework supplies that list
// from the path's extract_workspace_id when applicable, or nil for
// endpoints with no workspace context yet.
func (v *Validator) Authenticate(ctx context.Context, tx *gorm.DB, bearer string, callerIP net.IP, memberWorkspaceIDs []string) (*Principal, error) {
	if IsApiToken(bearer) {
		secret, loginID, err := ParseApiToken(bearer)
		if err != nil {
			return nil, err
		}
		data, err := v.apiTokens.Validate(ctx, tx, secret, loginID, callerIP)
		if err != nil {
			return nil, err
		}
		return &Principal{UserID: data.UserID, LoginID: loginID, ApiToken: data}, nil
	}

	claims, err := v.tokens.ValidateAccessToken(bearer)
	if err != nil {
		return nil, apierror.New(apierror.CodeMalformedAccessToken, "access token could not be parsed or verified")
	}

	issuedAt := claims.IssuedAt.Time
	revocations, err := v.cache.LookupRevocations(ctx, claims.UserID, claims.Subject, memberWorkspaceIDs)
	if err != nil {
		return nil, apierror.Server(fmt.Errorf("revocation lookup failed: %w", err))
	}
	if millisAfter(revocations.User, issuedAt) || millisAfter(revocations.Login, issuedAt) ||
		millisAfter(revocations.Workspace, issuedAt) || millisAfter(revocations.Global, issuedAt) {
		return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "token was issued before a revocation")
	}

	return &Principal{UserID: claims.UserID, LoginID: claims.Subject}, nil
}

func millisAfter(revokedAtMillis int64, issuedAt interface{ Unix() int64 }) bool {
	if revokedAtMillis == 0 {
		return false
	}
	return revokedAtMillis > issuedAt.Unix()*1000
}

// lookupLogin fetches the full UserLogin row for loginID.
func lookupLogin(ctx context.Context, tx *gorm.DB, loginID string) (*db.UserLogin, error) {
	var login db.UserLogin
	if err := tx.WithContext(ctx).Where("login_id = ?", loginID).First(&login).Error; err != nil {
		return nil, apierror.Server(err)
	}
	return &login, nil
}
