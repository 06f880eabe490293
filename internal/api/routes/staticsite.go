package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	staticsitesvc "github.com/patr-cloud/patr-api/internal/service/staticsite"
)

type staticSiteResponse struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	CurrentLiveUpload *string `json:"current_live_upload,omitempty"`
}

func toStaticSiteResponse(s db.StaticSite) staticSiteResponse {
	return staticSiteResponse{ID: s.ID, Name: s.Name, Status: string(s.Status), CurrentLiveUpload: s.CurrentLiveUpload}
}

type createStaticSiteResponse struct {
	ID string `json:"id"`
}

type listStaticSitesResponse struct {
	StaticSites []staticSiteResponse `json:"static_sites"`
}

type staticSiteUploadResponse struct {
	ID     string `json:"id"`
	Digest string `json:"digest"`
}

func toStaticSiteUploadResponse(u db.StaticSiteUpload) staticSiteUploadResponse {
	return staticSiteUploadResponse{ID: u.ID, Digest: u.Digest}
}

type listStaticSiteUploadsResponse struct {
	Uploads []staticSiteUploadResponse `json:"uploads"`
}

// RegisterStaticSiteRoutes binds the static-site create/list/get/upload/
// delete surface (spec section 4.5) onto router.
func RegisterStaticSiteRoutes(router gin.IRoutes, deps endpoint.Deps, svc *staticsitesvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[staticsitesvc.CreateRequest, createStaticSiteResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/infrastructure/static-site",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::staticSite::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *staticsitesvc.CreateRequest) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: staticsitesvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *staticsitesvc.CreateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *staticsitesvc.CreateRequest) (*createStaticSiteResponse, error) {
			req.WorkspaceID = rc.Gin.Param("workspaceId")
			id, err := svc.Create(ctx, rc.Tx, *req)
			if err != nil {
				return nil, err
			}
			return &createStaticSiteResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listStaticSitesResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/infrastructure/static-site",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::staticSite::list",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: staticsitesvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listStaticSitesResponse, error) {
			sites, err := svc.List(ctx, rc.Tx, rc.Gin.Param("workspaceId"))
			if err != nil {
				return nil, err
			}
			out := make([]staticSiteResponse, len(sites))
			for i, s := range sites {
				out[i] = toStaticSiteResponse(s)
			}
			return &listStaticSitesResponse{StaticSites: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, staticSiteResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/infrastructure/static-site/:staticSiteId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::staticSite::info",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("staticSiteId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: staticsitesvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*staticSiteResponse, error) {
			s, err := svc.Get(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("staticSiteId"))
			if err != nil {
				return nil, err
			}
			resp := toStaticSiteResponse(*s)
			return &resp, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[staticsitesvc.UploadRequest, staticSiteUploadResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/infrastructure/static-site/:staticSiteId/upload",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::staticSite::edit",
		ExtractResource: func(rc *endpoint.RequestContext, req *staticsitesvc.UploadRequest) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("staticSiteId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: staticsitesvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *staticsitesvc.UploadRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *staticsitesvc.UploadRequest) (*staticSiteUploadResponse, error) {
			uploadID, err := svc.Upload(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("staticSiteId"), *req)
			if err != nil {
				return nil, err
			}
			return &staticSiteUploadResponse{ID: uploadID, Digest: req.Digest}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listStaticSiteUploadsResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/infrastructure/static-site/:staticSiteId/upload",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::staticSite::info",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("staticSiteId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: staticsitesvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listStaticSiteUploadsResponse, error) {
			uploads, err := svc.ListUploads(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("staticSiteId"))
			if err != nil {
				return nil, err
			}
			out := make([]staticSiteUploadResponse, len(uploads))
			for i, u := range uploads {
				out[i] = toStaticSiteUploadResponse(u)
			}
			return &listStaticSiteUploadsResponse{Uploads: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method:     "DELETE",
		Path:       "/workspace/:workspaceId/infrastructure/static-site/:staticSiteId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::infrastructure::staticSite::delete",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("staticSiteId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: staticsitesvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := svc.Delete(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("staticSiteId")); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)
}
