package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	managedurlsvc "github.com/patr-cloud/patr-api/internal/service/managedurl"
)

type managedURLResponse struct {
	ID             string  `json:"id"`
	SubDomain      string  `json:"sub_domain"`
	DomainID       string  `json:"domain_id"`
	Path           string  `json:"path"`
	Kind           string  `json:"kind"`
	DeploymentID   *string `json:"deployment_id,omitempty"`
	DeploymentPort *int    `json:"deployment_port,omitempty"`
	StaticSiteID   *string `json:"static_site_id,omitempty"`
	URL            *string `json:"url,omitempty"`
	HTTPOnly       *bool   `json:"http_only,omitempty"`
	Permanent      *bool   `json:"permanent,omitempty"`
}

func toManagedURLResponse(u db.ManagedURL) managedURLResponse {
	return managedURLResponse{
		ID: u.ID, SubDomain: u.SubDomain, DomainID: u.DomainID, Path: u.Path, Kind: string(u.Kind),
		DeploymentID: u.DeploymentID, DeploymentPort: u.DeploymentPort, StaticSiteID: u.StaticSiteID,
		URL: u.URL, HTTPOnly: u.HTTPOnly, Permanent: u.Permanent,
	}
}

type createManagedURLResponse struct {
	ID string `json:"id"`
}

type listManagedURLsResponse struct {
	ManagedURLs []managedURLResponse `json:"urls"`
}

// RegisterManagedURLRoutes binds the managed-URL ingress routing CRUD
// surface (spec section 4.9) onto router.
func RegisterManagedURLRoutes(router gin.IRoutes, deps endpoint.Deps, svc *managedurlsvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[managedurlsvc.CreateRequest, createManagedURLResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/infrastructure/managed-url",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::managedUrl::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *managedurlsvc.CreateRequest) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: managedurlsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *managedurlsvc.CreateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Preprocess: func(req *managedurlsvc.CreateRequest) error {
			if req.SubDomain == "" || req.DomainID == "" || req.Kind == "" {
				return apierror.New(apierror.CodeWrongParameters, "sub_domain, domain_id, and kind are required")
			}
			return nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *managedurlsvc.CreateRequest) (*createManagedURLResponse, error) {
			req.WorkspaceID = rc.Gin.Param("workspaceId")
			id, err := svc.Create(ctx, rc.Tx, *req)
			if err != nil {
				return nil, err
			}
			return &createManagedURLResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listManagedURLsResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/infrastructure/managed-url",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::managedUrl::list",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: managedurlsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listManagedURLsResponse, error) {
			urls, err := svc.List(ctx, rc.Tx, rc.Gin.Param("workspaceId"))
			if err != nil {
				return nil, err
			}
			out := make([]managedURLResponse, len(urls))
			for i, u := range urls {
				out[i] = toManagedURLResponse(u)
			}
			return &listManagedURLsResponse{ManagedURLs: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, managedURLResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/infrastructure/managed-url/:managedUrlId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::managedUrl::info",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("managedUrlId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: managedurlsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*managedURLResponse, error) {
			u, err := svc.Get(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("managedUrlId"))
			if err != nil {
				return nil, err
			}
			resp := toManagedURLResponse(*u)
			return &resp, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[managedurlsvc.UpdateRequest, struct{}]{
		Method:     "PATCH",
		Path:       "/workspace/:workspaceId/infrastructure/managed-url/:managedUrlId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::managedUrl::edit",
		ExtractResource: func(rc *endpoint.RequestContext, req *managedurlsvc.UpdateRequest) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("managedUrlId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: managedurlsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *managedurlsvc.UpdateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *managedurlsvc.UpdateRequest) (*struct{}, error) {
			if err := svc.Update(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("managedUrlId"), *req); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method:     "DELETE",
		Path:       "/workspace/:workspaceId/infrastructure/managed-url/:managedUrlId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::managedUrl::delete",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("managedUrlId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: managedurlsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := svc.Delete(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("managedUrlId")); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)
}
