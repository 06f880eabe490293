package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/apierror"
	domain "github.com/patr-cloud/patr-api/internal/domain/deployment"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	deploymentsvc "github.com/patr-cloud/patr-api/internal/service/deployment"
)

// Preprocess in the endpoint framework only sees the parsed body, not the
// gin context, so path-derived fields (workspace ID) are filled in by
// ExtractResource/ExtractWorkspaceID and by the handler directly from
// rc.Gin, never by Preprocess.

// createDeploymentResponse is the success body of a create call.
type createDeploymentResponse struct {
	ID string `json:"id"`
}

// RegisterDeploymentRoutes binds C6's representative deployment
// create/update endpoints (spec section 4.4.1, 4.4.2) onto router using
// the C3 endpoint framework.
func RegisterDeploymentRoutes(router gin.IRoutes, deps endpoint.Deps, svc *deploymentsvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[domain.CreateRequest, createDeploymentResponse]{
		Method: "POST",
		Path:   "/workspace/:workspaceId/infrastructure/deployment",
		Auth:   endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::deployment::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *domain.CreateRequest) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domain.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *domain.CreateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Preprocess: func(req *domain.CreateRequest) error {
			if req.Name == "" || req.ImageTag == "" || req.MachineTypeID == "" || req.RegionID == "" {
				return apierror.New(apierror.CodeWrongParameters, "name, image_tag, machine_type, and region are required")
			}
			return nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *domain.CreateRequest) (*createDeploymentResponse, error) {
			req.WorkspaceID = rc.Gin.Param("workspaceId")
			id, err := svc.Create(ctx, rc.Tx, *req)
			if err != nil {
				return nil, err
			}
			return &createDeploymentResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[domain.UpdateRequest, struct{}]{
		Method: "PATCH",
		Path:   "/workspace/:workspaceId/infrastructure/deployment/:deploymentId",
		Auth:   endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::deployment::edit",
		ExtractResource: func(rc *endpoint.RequestContext, req *domain.UpdateRequest) (rbac.Resource, error) {
			return rbac.Resource{
				ID:             rc.Gin.Param("deploymentId"),
				WorkspaceID:    rc.Gin.Param("workspaceId"),
				ResourceTypeID: domain.ResourceTypeID,
			}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *domain.UpdateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *domain.UpdateRequest) (*struct{}, error) {
			workspaceID := rc.Gin.Param("workspaceId")
			deploymentID := rc.Gin.Param("deploymentId")
			if err := svc.Update(ctx, rc.Tx, workspaceID, deploymentID, *req); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)
}
