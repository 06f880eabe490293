// Package apitoken implements the user-scoped API-token lifecycle (spec
// section 4.2): issuing a patrv1.{secret}.{login_id} credential, listing
// and revoking a user's tokens, and regenerating a token's secret in
// place without disturbing its permission scope.
package apitoken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/db"
	repo "github.com/patr-cloud/patr-api/internal/repository/apitoken"
)

// ScopePermission is one (workspace, permission, type, resources) grant
// in a CreateRequest/UpdateRequest — the request-shape mirror of the
// three ApiTokenResourcePermissions* tables.
type ScopePermission struct {
	WorkspaceID  string
	PermissionID string
	Type         db.ApiTokenScopeType
	ResourceIDs  []string
}

// CreateRequest is the body of POST /user/api-token.
type CreateRequest struct {
	Name                 string            `json:"name"`
	TokenNbf             *time.Time        `json:"token_nbf,omitempty"`
	TokenExp             *time.Time        `json:"token_exp,omitempty"`
	AllowedIPs           []string          `json:"allowed_ips,omitempty"`
	SuperAdminWorkspaces []string          `json:"super_admin_workspaces,omitempty"`
	Permissions          []ScopePermission `json:"permissions,omitempty"`
}

func (r CreateRequest) IsEmpty() bool { return r.Name == "" }

// UpdateRequest is the body of PATCH /user/api-token/:tokenId. A nil
// field leaves the corresponding column/side-table untouched; Permissions
// being non-nil replaces the entire scope set, matching the deployment
// service's exposed-ports replace semantics.
type UpdateRequest struct {
	Name                 *string           `json:"name,omitempty"`
	TokenNbf             *time.Time        `json:"token_nbf,omitempty"`
	TokenExp             *time.Time        `json:"token_exp,omitempty"`
	AllowedIPs           *[]string         `json:"allowed_ips,omitempty"`
	SuperAdminWorkspaces []string          `json:"super_admin_workspaces,omitempty"`
	Permissions          []ScopePermission `json:"permissions,omitempty"`
}

func (r UpdateRequest) IsEmpty() bool {
	return r.Name == nil && r.TokenNbf == nil && r.TokenExp == nil && r.AllowedIPs == nil &&
		r.SuperAdminWorkspaces == nil && r.Permissions == nil
}

// CreateResult carries the one-time plaintext token back to the caller;
// only TokenHash is ever persisted.
type CreateResult struct {
	TokenID string
	Token   string
}

type Service struct {
	repo   *repo.Repository
	hasher *authn.Hasher
	cache  *cache.Client
}

func NewService(repository *repo.Repository, hasher *authn.Hasher, cacheClient *cache.Client) *Service {
	return &Service{repo: repository, hasher: hasher, cache: cacheClient}
}

// Create mints a new token for userID, in the patrv1.{secret}.{login_id}
// shape spec section 4.2 defines; the returned plaintext is never
// recoverable again once this call returns.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, userID string, req CreateRequest) (*CreateResult, error) {
	if req.IsEmpty() {
		return nil, apierror.New(apierror.CodeWrongParameters, "name is required")
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, apierror.Server(err)
	}

	tokenHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, apierror.Server(err)
	}

	login := &db.UserLogin{UserID: userID, LoginType: db.LoginTypeAPIToken}
	login.LoginID = uuid.New().String()
	token := &db.ApiToken{
		TokenID:    login.LoginID,
		UserID:     userID,
		Name:       req.Name,
		TokenHash:  tokenHash,
		TokenNbf:   req.TokenNbf,
		TokenExp:   req.TokenExp,
		AllowedIPs: req.AllowedIPs,
	}

	scopeTypes, includes, excludes := expandScopes(token.TokenID, req.Permissions)

	if err := s.repo.Create(ctx, tx, login, token, req.SuperAdminWorkspaces, scopeTypes, includes, excludes); err != nil {
		return nil, err
	}

	return &CreateResult{
		TokenID: token.TokenID,
		Token:   fmt.Sprintf("patrv1.%s.%s", secret, token.TokenID),
	}, nil
}

// List returns every token a user owns, newest first order left to the
// caller's presentation layer.
func (s *Service) List(ctx context.Context, tx *gorm.DB, userID string) ([]db.ApiToken, error) {
	return s.repo.List(ctx, tx, userID)
}

// Get fetches one token scoped to its owning user.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, userID, tokenID string) (*db.ApiToken, error) {
	return s.repo.GetByID(ctx, tx, userID, tokenID)
}

// Update applies a partial edit, replacing the permission scope
// wholesale when Permissions is supplied (same replace-set shape as the
// deployment service's exposed-ports update).
func (s *Service) Update(ctx context.Context, tx *gorm.DB, userID, tokenID string, req UpdateRequest) error {
	if req.IsEmpty() {
		return apierror.New(apierror.CodeWrongParameters, "at least one field must be supplied")
	}

	existing, err := s.repo.GetByID(ctx, tx, userID, tokenID)
	if err != nil {
		return err
	}
	if existing.RevokedAt != nil {
		return apierror.New(apierror.CodeAuthorizationTokenInvalid, "token has been revoked")
	}

	scalars := &db.ApiToken{TokenID: tokenID}
	if req.Name != nil {
		scalars.Name = *req.Name
	} else {
		scalars.Name = existing.Name
	}
	scalars.TokenNbf = existing.TokenNbf
	if req.TokenNbf != nil {
		scalars.TokenNbf = req.TokenNbf
	}
	scalars.TokenExp = existing.TokenExp
	if req.TokenExp != nil {
		scalars.TokenExp = req.TokenExp
	}
	scalars.AllowedIPs = existing.AllowedIPs
	if req.AllowedIPs != nil {
		scalars.AllowedIPs = *req.AllowedIPs
	}
	if err := s.repo.UpdateScalars(ctx, tx, scalars); err != nil {
		return err
	}

	if req.Permissions != nil || req.SuperAdminWorkspaces != nil {
		scopeTypes, includes, excludes := expandScopes(tokenID, req.Permissions)
		if err := s.repo.ReplacePermissions(ctx, tx, tokenID, req.SuperAdminWorkspaces, scopeTypes, includes, excludes); err != nil {
			return err
		}
	}

	return s.cache.InvalidateApiTokenData(ctx, tokenID)
}

// Revoke marks a token revoked and evicts its cached validation
// snapshot so the next request using it is rejected immediately rather
// than riding out the cache TTL.
func (s *Service) Revoke(ctx context.Context, tx *gorm.DB, userID, tokenID string) error {
	if _, err := s.repo.GetByID(ctx, tx, userID, tokenID); err != nil {
		return err
	}
	now := time.Now()
	if err := s.repo.Revoke(ctx, tx, tokenID, &now); err != nil {
		return err
	}
	return s.cache.InvalidateApiTokenData(ctx, tokenID)
}

// Regenerate issues a fresh secret for an existing token without
// touching its name, validity window, or permission scope, and evicts
// the stale cache entry so the old secret stops validating immediately.
func (s *Service) Regenerate(ctx context.Context, tx *gorm.DB, userID, tokenID string) (*CreateResult, error) {
	existing, err := s.repo.GetByID(ctx, tx, userID, tokenID)
	if err != nil {
		return nil, err
	}
	if existing.RevokedAt != nil {
		return nil, apierror.New(apierror.CodeAuthorizationTokenInvalid, "token has been revoked")
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, apierror.Server(err)
	}
	tokenHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, apierror.Server(err)
	}

	if err := s.repo.UpdateScalars(ctx, tx, &db.ApiToken{TokenID: tokenID, TokenHash: tokenHash, Name: existing.Name, TokenNbf: existing.TokenNbf, TokenExp: existing.TokenExp, AllowedIPs: existing.AllowedIPs}); err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateApiTokenData(ctx, tokenID); err != nil {
		return nil, apierror.Server(err)
	}

	return &CreateResult{TokenID: tokenID, Token: fmt.Sprintf("patrv1.%s.%s", secret, tokenID)}, nil
}

func expandScopes(tokenID string, perms []ScopePermission) ([]db.ApiTokenResourcePermissionsType, []db.ApiTokenResourcePermissionsInclude, []db.ApiTokenResourcePermissionsExclude) {
	scopeTypes := make([]db.ApiTokenResourcePermissionsType, 0, len(perms))
	var includes []db.ApiTokenResourcePermissionsInclude
	var excludes []db.ApiTokenResourcePermissionsExclude

	for _, p := range perms {
		scopeTypes = append(scopeTypes, db.ApiTokenResourcePermissionsType{
			TokenID: tokenID, WorkspaceID: p.WorkspaceID, PermissionID: p.PermissionID, Type: p.Type,
		})
		switch p.Type {
		case db.ScopeInclude:
			for _, rid := range p.ResourceIDs {
				includes = append(includes, db.ApiTokenResourcePermissionsInclude{
					TokenID: tokenID, WorkspaceID: p.WorkspaceID, PermissionID: p.PermissionID, ResourceID: rid,
				})
			}
		case db.ScopeExclude:
			for _, rid := range p.ResourceIDs {
				excludes = append(excludes, db.ApiTokenResourcePermissionsExclude{
					TokenID: tokenID, WorkspaceID: p.WorkspaceID, PermissionID: p.PermissionID, ResourceID: rid,
				})
			}
		}
	}
	return scopeTypes, includes, excludes
}

func generateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
