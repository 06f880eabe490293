package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	regionsvc "github.com/patr-cloud/patr-api/internal/service/region"
)

type regionResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	CloudProvider   string  `json:"cloud_provider"`
	Status          string  `json:"status"`
	Ready           bool    `json:"ready"`
	IngressHostname *string `json:"ingress_hostname,omitempty"`
}

func toRegionResponse(r db.DeploymentRegion) regionResponse {
	return regionResponse{
		ID:              r.ID,
		Name:            r.Name,
		CloudProvider:   string(r.CloudProvider),
		Status:          string(r.Status),
		Ready:           r.Ready,
		IngressHostname: r.IngressHostname,
	}
}

type createRegionResponse struct {
	ID string `json:"id"`
}

type listRegionsResponse struct {
	Regions []regionResponse `json:"regions"`
}

// RegisterRegionRoutes binds the BYOC region create/list/get/delete
// surface (spec section 4.6) onto router.
func RegisterRegionRoutes(router gin.IRoutes, deps endpoint.Deps, svc *regionsvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[regionsvc.CreateRequest, createRegionResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/region",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::region::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *regionsvc.CreateRequest) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: regionsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *regionsvc.CreateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *regionsvc.CreateRequest) (*createRegionResponse, error) {
			req.WorkspaceID = rc.Gin.Param("workspaceId")
			id, err := svc.Create(ctx, rc.Tx, *req)
			if err != nil {
				return nil, err
			}
			return &createRegionResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listRegionsResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/region",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::region::list",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: regionsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listRegionsResponse, error) {
			regions, err := svc.List(ctx, rc.Tx, rc.Gin.Param("workspaceId"))
			if err != nil {
				return nil, err
			}
			out := make([]regionResponse, len(regions))
			for i, r := range regions {
				out[i] = toRegionResponse(r)
			}
			return &listRegionsResponse{Regions: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, regionResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/region/:regionId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::region::info",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("regionId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: regionsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*regionResponse, error) {
			r, err := svc.Get(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("regionId"))
			if err != nil {
				return nil, err
			}
			resp := toRegionResponse(*r)
			return &resp, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method:     "DELETE",
		Path:       "/workspace/:workspaceId/region/:regionId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::region::delete",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("regionId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: regionsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := svc.Delete(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("regionId")); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)
}
