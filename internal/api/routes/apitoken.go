package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	apitokensvc "github.com/patr-cloud/patr-api/internal/service/apitoken"
)

type apiTokenResponse struct {
	TokenID    string `json:"token_id"`
	Name       string `json:"name"`
	TokenNbf   string `json:"token_nbf,omitempty"`
	TokenExp   string `json:"token_exp,omitempty"`
	Revoked    bool   `json:"revoked"`
}

type createApiTokenResponse struct {
	TokenID string `json:"token_id"`
	Token   string `json:"token"`
}

type listApiTokensResponse struct {
	Tokens []apiTokenResponse `json:"tokens"`
}

func toApiTokenResponse(t db.ApiToken) apiTokenResponse {
	resp := apiTokenResponse{TokenID: t.TokenID, Name: t.Name, Revoked: t.RevokedAt != nil}
	if t.TokenNbf != nil {
		resp.TokenNbf = t.TokenNbf.Format("2006-01-02T15:04:05Z07:00")
	}
	if t.TokenExp != nil {
		resp.TokenExp = t.TokenExp.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// RegisterApiTokenRoutes binds the user-scoped API-token CRUD surface
// (spec section 4.2) onto router. Every route here uses
// PlainTokenAuthenticator rather than ResourcePermissionAuthenticator: a
// token belongs to the calling user directly, not to any workspace
// resource the RBAC engine scopes permissions against.
func RegisterApiTokenRoutes(router gin.IRoutes, deps endpoint.Deps, svc *apitokensvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[apitokensvc.CreateRequest, createApiTokenResponse]{
		Method: "POST",
		Path:   "/user/api-token",
		Auth:   endpoint.PlainTokenAuthenticator,
		Preprocess: func(req *apitokensvc.CreateRequest) error {
			if req.Name == "" {
				return apierror.New(apierror.CodeWrongParameters, "name is required")
			}
			return nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *apitokensvc.CreateRequest) (*createApiTokenResponse, error) {
			result, err := svc.Create(ctx, rc.Tx, rc.Principal.UserID, *req)
			if err != nil {
				return nil, err
			}
			return &createApiTokenResponse{TokenID: result.TokenID, Token: result.Token}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listApiTokensResponse]{
		Method: "GET",
		Path:   "/user/api-token",
		Auth:   endpoint.PlainTokenAuthenticator,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listApiTokensResponse, error) {
			tokens, err := svc.List(ctx, rc.Tx, rc.Principal.UserID)
			if err != nil {
				return nil, err
			}
			out := make([]apiTokenResponse, len(tokens))
			for i, t := range tokens {
				out[i] = toApiTokenResponse(t)
			}
			return &listApiTokensResponse{Tokens: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, apiTokenResponse]{
		Method: "GET",
		Path:   "/user/api-token/:tokenId",
		Auth:   endpoint.PlainTokenAuthenticator,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*apiTokenResponse, error) {
			token, err := svc.Get(ctx, rc.Tx, rc.Principal.UserID, rc.Gin.Param("tokenId"))
			if err != nil {
				return nil, err
			}
			resp := toApiTokenResponse(*token)
			return &resp, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[apitokensvc.UpdateRequest, struct{}]{
		Method: "PATCH",
		Path:   "/user/api-token/:tokenId",
		Auth:   endpoint.PlainTokenAuthenticator,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *apitokensvc.UpdateRequest) (*struct{}, error) {
			if err := svc.Update(ctx, rc.Tx, rc.Principal.UserID, rc.Gin.Param("tokenId"), *req); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method: "DELETE",
		Path:   "/user/api-token/:tokenId",
		Auth:   endpoint.PlainTokenAuthenticator,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := svc.Revoke(ctx, rc.Tx, rc.Principal.UserID, rc.Gin.Param("tokenId")); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, createApiTokenResponse]{
		Method: "POST",
		Path:   "/user/api-token/:tokenId/regenerate",
		Auth:   endpoint.PlainTokenAuthenticator,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*createApiTokenResponse, error) {
			result, err := svc.Regenerate(ctx, rc.Tx, rc.Principal.UserID, rc.Gin.Param("tokenId"))
			if err != nil {
				return nil, err
			}
			return &createApiTokenResponse{TokenID: result.TokenID, Token: result.Token}, nil
		},
	}, deps)
}
