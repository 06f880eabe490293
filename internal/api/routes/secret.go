package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	secretsvc "github.com/patr-cloud/patr-api/internal/service/secret"
)

// secretResponse never carries the value — a secret is write-only from
// the API's perspective once created (spec section 4.4.4).
type secretResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	DeploymentID *string `json:"deployment_id,omitempty"`
}

func toSecretResponse(s db.Secret) secretResponse {
	return secretResponse{ID: s.ID, Name: s.Name, DeploymentID: s.DeploymentID}
}

type createSecretResponse struct {
	ID string `json:"id"`
}

type listSecretsResponse struct {
	Secrets []secretResponse `json:"secrets"`
}

// RegisterSecretRoutes binds the secret create/list/get/update/delete
// surface (spec section 4.4.4) onto router.
func RegisterSecretRoutes(router gin.IRoutes, deps endpoint.Deps, svc *secretsvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[secretsvc.CreateRequest, createSecretResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/infrastructure/secret",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::secret::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *secretsvc.CreateRequest) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: secretsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *secretsvc.CreateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *secretsvc.CreateRequest) (*createSecretResponse, error) {
			req.WorkspaceID = rc.Gin.Param("workspaceId")
			id, err := svc.Create(ctx, rc.Tx, *req)
			if err != nil {
				return nil, err
			}
			return &createSecretResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listSecretsResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/infrastructure/secret",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::secret::list",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: secretsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listSecretsResponse, error) {
			secrets, err := svc.List(ctx, rc.Tx, rc.Gin.Param("workspaceId"))
			if err != nil {
				return nil, err
			}
			out := make([]secretResponse, len(secrets))
			for i, s := range secrets {
				out[i] = toSecretResponse(s)
			}
			return &listSecretsResponse{Secrets: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, secretResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/infrastructure/secret/:secretId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::secret::info",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("secretId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: secretsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*secretResponse, error) {
			s, err := svc.Get(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("secretId"))
			if err != nil {
				return nil, err
			}
			resp := toSecretResponse(*s)
			return &resp, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[secretsvc.UpdateRequest, struct{}]{
		Method:     "PATCH",
		Path:       "/workspace/:workspaceId/infrastructure/secret/:secretId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::secret::edit",
		ExtractResource: func(rc *endpoint.RequestContext, req *secretsvc.UpdateRequest) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("secretId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: secretsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *secretsvc.UpdateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *secretsvc.UpdateRequest) (*struct{}, error) {
			if err := svc.Update(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("secretId"), *req); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method:     "DELETE",
		Path:       "/workspace/:workspaceId/infrastructure/secret/:secretId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::secret::delete",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("secretId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: secretsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := svc.Delete(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("secretId")); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)
}
