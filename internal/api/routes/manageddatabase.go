package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	manageddbsvc "github.com/patr-cloud/patr-api/internal/service/manageddatabase"
)

type managedDatabaseResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Engine       string `json:"engine"`
	Version      string `json:"version,omitempty"`
	Plan         string `json:"plan"`
	Status       string `json:"status"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Username     string `json:"username,omitempty"`
	ReplicaCount int    `json:"replica_count"`
}

func toManagedDatabaseResponse(m db.ManagedDatabase) managedDatabaseResponse {
	return managedDatabaseResponse{
		ID: m.ID, Name: m.Name, Engine: string(m.Engine), Version: m.Version, Plan: m.Plan,
		Status: string(m.Status), Host: m.Host, Port: m.Port, Username: m.Username, ReplicaCount: m.ReplicaCount,
	}
}

type createManagedDatabaseResponse struct {
	ID string `json:"id"`
}

type listManagedDatabasesResponse struct {
	Databases []managedDatabaseResponse `json:"databases"`
}

// RegisterManagedDatabaseRoutes binds the managed-database create/list/
// get/delete surface (spec section 4.8) onto router.
func RegisterManagedDatabaseRoutes(router gin.IRoutes, deps endpoint.Deps, svc *manageddbsvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[manageddbsvc.CreateRequest, createManagedDatabaseResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/database",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::database::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *manageddbsvc.CreateRequest) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: manageddbsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *manageddbsvc.CreateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *manageddbsvc.CreateRequest) (*createManagedDatabaseResponse, error) {
			req.WorkspaceID = rc.Gin.Param("workspaceId")
			id, err := svc.Create(ctx, rc.Tx, *req)
			if err != nil {
				return nil, err
			}
			return &createManagedDatabaseResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listManagedDatabasesResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/database",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::database::list",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: manageddbsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listManagedDatabasesResponse, error) {
			dbs, err := svc.List(ctx, rc.Tx, rc.Gin.Param("workspaceId"))
			if err != nil {
				return nil, err
			}
			out := make([]managedDatabaseResponse, len(dbs))
			for i, m := range dbs {
				out[i] = toManagedDatabaseResponse(m)
			}
			return &listManagedDatabasesResponse{Databases: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, managedDatabaseResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/database/:databaseId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::database::info",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("databaseId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: manageddbsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*managedDatabaseResponse, error) {
			m, err := svc.Get(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("databaseId"))
			if err != nil {
				return nil, err
			}
			resp := toManagedDatabaseResponse(*m)
			return &resp, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method:     "DELETE",
		Path:       "/workspace/:workspaceId/database/:databaseId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::database::delete",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("databaseId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: manageddbsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := svc.Delete(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("databaseId")); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)
}
