package authn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/db"
)

const apiTokenPrefix = "patrv1."

// IsApiToken reports whether a bearer value is a Patr API token rather
// than a JWT access token (spec section 4.2).
func IsApiToken(bearer string) bool {
	return strings.HasPrefix(bearer, apiTokenPrefix)
}

// ParseApiToken splits "patrv1.{secret}.{login_id}" into its parts.
func ParseApiToken(bearer string) (secret, loginID string, err error) {
	rest := strings.TrimPrefix(bearer, apiTokenPrefix)
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apierror.New(apierror.CodeMalformedAPIToken, "malformed api token")
	}
	return parts[0], parts[1], nil
}

// ApiTokenValidator implements spec section 4.2's API-token path: cache
// lookup, hash verification, and nbf/exp/allowed-ip/revocation checks.
type ApiTokenValidator struct {
	hasher       *Hasher
	cache        *cache.Client
	cacheTTL     time.Duration
}

func NewApiTokenValidator(hasher *Hasher, cacheClient *cache.Client, cacheTTL time.Duration) *ApiTokenValidator {
	return &ApiTokenValidator{hasher: hasher, cache: cacheClient, cacheTTL: cacheTTL}
}

// Validate resolves and checks a parsed API token, reading through to tx
// when the cache is stale or missing (spec section 4.2 step 4).
func (v *ApiTokenValidator) Validate(ctx context.Context, tx *gorm.DB, secret, loginID string, callerIP net.IP) (*cache.ApiTokenData, error) {
	data, err := v.cache.GetApiTokenData(ctx, loginID)
	if err != nil {
		return nil, apierror.Server(err)
	}

	revocations, err := v.cache.LookupRevocations(ctx, "", loginID, nil)
	if err != nil {
		return nil, apierror.Server(err)
	}
	stale := data == nil || data.LastValidated.UnixMilli() < revocations.Login || data.LastValidated.UnixMilli() < revocations.Global

	if stale {
		data, err = v.resolveFromDB(ctx, tx, loginID)
		if err != nil {
			return nil, err
		}
		if err := v.cache.PutApiTokenData(ctx, loginID, *data, v.cacheTTL); err != nil {
			return nil, apierror.Server(err)
		}
	}

	ok, err := v.hasher.Verify(secret, data.TokenHash)
	if err != nil {
		return nil, apierror.Server(err)
	}
	if !ok {
		return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "api token secret does not match")
	}

	now := time.Now()
	if data.NotBefore != nil && now.Before(*data.NotBefore) {
		return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "api token is not yet valid")
	}
	if data.Expiry != nil && now.After(*data.Expiry) {
		return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "api token has expired")
	}
	if data.Revoked != nil && !data.Revoked.After(now) {
		return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "api token has been revoked")
	}
	if len(data.AllowedIPs) > 0 && !ipAllowed(callerIP, data.AllowedIPs) {
		return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "caller ip is not in the token's allowed range")
	}

	return data, nil
}

func ipAllowed(ip net.IP, cidrs []string) bool {
	for _, raw := range cidrs {
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// resolveFromDB rebuilds an ApiTokenData snapshot from Postgres when the
// cache is empty or stale.
func (v *ApiTokenValidator) resolveFromDB(ctx context.Context, tx *gorm.DB, loginID string) (*cache.ApiTokenData, error) {
	var token db.ApiToken
	if err := tx.WithContext(ctx).Where("token_id = ?", loginID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "unknown api token")
		}
		return nil, apierror.Server(err)
	}

	var scopeTypes []db.ApiTokenResourcePermissionsType
	if err := tx.WithContext(ctx).Where("token_id = ?", loginID).Find(&scopeTypes).Error; err != nil {
		return nil, apierror.Server(err)
	}

	permissions := make(map[string]cache.TokenScopeSnapshot, len(scopeTypes))
	for _, st := range scopeTypes {
		var resourceIDs []string
		switch st.Type {
		case db.ScopeInclude:
			var rows []db.ApiTokenResourcePermissionsInclude
			if err := tx.WithContext(ctx).Where("token_id = ? AND workspace_id = ? AND permission_id = ?", loginID, st.WorkspaceID, st.PermissionID).Find(&rows).Error; err != nil {
				return nil, apierror.Server(err)
			}
			for _, r := range rows {
				resourceIDs = append(resourceIDs, r.ResourceID)
			}
		case db.ScopeExclude:
			var rows []db.ApiTokenResourcePermissionsExclude
			if err := tx.WithContext(ctx).Where("token_id = ? AND workspace_id = ? AND permission_id = ?", loginID, st.WorkspaceID, st.PermissionID).Find(&rows).Error; err != nil {
				return nil, apierror.Server(err)
			}
			for _, r := range rows {
				resourceIDs = append(resourceIDs, r.ResourceID)
			}
		}
		key := fmt.Sprintf("%s:%s", st.WorkspaceID, st.PermissionID)
		permissions[key] = cache.TokenScopeSnapshot{Type: string(st.Type), Resources: resourceIDs}
	}

	return &cache.ApiTokenData{
		TokenID:       token.TokenID,
		UserID:        token.UserID,
		TokenHash:     token.TokenHash,
		Permissions:   permissions,
		NotBefore:     token.TokenNbf,
		Expiry:        token.TokenExp,
		AllowedIPs:    token.AllowedIPs,
		Created:       token.CreatedAt,
		Revoked:       token.RevokedAt,
		LastValidated: time.Now(),
	}, nil
}
