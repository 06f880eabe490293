package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	domainsvc "github.com/patr-cloud/patr-api/internal/service/domain"
)

type domainResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	IsVerified bool   `json:"is_verified"`
}

func toDomainResponse(d domainsvc.DomainWithClaim) domainResponse {
	return domainResponse{ID: d.Domain.ID, Name: d.Domain.Name, Type: string(d.Domain.Type), IsVerified: d.Claim.IsVerified}
}

type createDomainResponse struct {
	ID string `json:"id"`
}

type listDomainsResponse struct {
	Domains []domainResponse `json:"domains"`
}

type dnsRecordResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	TTL      int    `json:"ttl"`
	Priority *int   `json:"priority,omitempty"`
	Proxied  *bool  `json:"proxied,omitempty"`
}

func toDnsRecordResponse(r db.DnsRecord) dnsRecordResponse {
	return dnsRecordResponse{ID: r.ID, Name: r.Name, Type: string(r.Type), Value: r.Value, TTL: r.TTL, Priority: r.Priority, Proxied: r.Proxied}
}

type createDnsRecordResponse struct {
	ID string `json:"id"`
}

type listDnsRecordsResponse struct {
	Records []dnsRecordResponse `json:"records"`
}

// RegisterDomainRoutes binds the domain and DNS-record CRUD surface
// (spec section 4.10) onto router.
func RegisterDomainRoutes(router gin.IRoutes, deps endpoint.Deps, svc *domainsvc.Service) {
	endpoint.Register(router, endpoint.Descriptor[domainsvc.CreateRequest, createDomainResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/domain",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *domainsvc.CreateRequest) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *domainsvc.CreateRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *domainsvc.CreateRequest) (*createDomainResponse, error) {
			req.WorkspaceID = rc.Gin.Param("workspaceId")
			id, err := svc.Create(ctx, rc.Tx, *req)
			if err != nil {
				return nil, err
			}
			return &createDomainResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listDomainsResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/domain",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::list",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listDomainsResponse, error) {
			domains, err := svc.List(ctx, rc.Tx, rc.Gin.Param("workspaceId"))
			if err != nil {
				return nil, err
			}
			out := make([]domainResponse, len(domains))
			for i, d := range domains {
				out[i] = toDomainResponse(d)
			}
			return &listDomainsResponse{Domains: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, domainResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/domain/:domainId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::info",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("domainId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*domainResponse, error) {
			d, err := svc.Get(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("domainId"))
			if err != nil {
				return nil, err
			}
			resp := toDomainResponse(*d)
			return &resp, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method:     "DELETE",
		Path:       "/workspace/:workspaceId/domain/:domainId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::delete",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("domainId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			if err := svc.Delete(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("domainId")); err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[domainsvc.DnsRecordRequest, createDnsRecordResponse]{
		Method:     "POST",
		Path:       "/workspace/:workspaceId/domain/:domainId/dns-record",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::dnsRecord::create",
		ExtractResource: func(rc *endpoint.RequestContext, req *domainsvc.DnsRecordRequest) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("domainId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *domainsvc.DnsRecordRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *domainsvc.DnsRecordRequest) (*createDnsRecordResponse, error) {
			id, err := svc.CreateDnsRecord(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("domainId"), *req)
			if err != nil {
				return nil, err
			}
			return &createDnsRecordResponse{ID: id}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, listDnsRecordsResponse]{
		Method:     "GET",
		Path:       "/workspace/:workspaceId/domain/:domainId/dns-record",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::dnsRecord::list",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("domainId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*listDnsRecordsResponse, error) {
			records, err := svc.ListDnsRecords(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("domainId"))
			if err != nil {
				return nil, err
			}
			out := make([]dnsRecordResponse, len(records))
			for i, r := range records {
				out[i] = toDnsRecordResponse(r)
			}
			return &listDnsRecordsResponse{Records: out}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[domainsvc.DnsRecordRequest, struct{}]{
		Method:     "PATCH",
		Path:       "/workspace/:workspaceId/domain/:domainId/dns-record/:recordId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::dnsRecord::edit",
		ExtractResource: func(rc *endpoint.RequestContext, req *domainsvc.DnsRecordRequest) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("domainId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *domainsvc.DnsRecordRequest) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *domainsvc.DnsRecordRequest) (*struct{}, error) {
			err := svc.UpdateDnsRecord(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("domainId"), rc.Gin.Param("recordId"), *req)
			if err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)

	endpoint.Register(router, endpoint.Descriptor[struct{}, struct{}]{
		Method:     "DELETE",
		Path:       "/workspace/:workspaceId/domain/:domainId/dns-record/:recordId",
		Auth:       endpoint.ResourcePermissionAuthenticator,
		Permission: "workspace::domain::dnsRecord::delete",
		ExtractResource: func(rc *endpoint.RequestContext, req *struct{}) (rbac.Resource, error) {
			return rbac.Resource{ID: rc.Gin.Param("domainId"), WorkspaceID: rc.Gin.Param("workspaceId"), ResourceTypeID: domainsvc.ResourceTypeID}, nil
		},
		ExtractWorkspaceID: func(rc *endpoint.RequestContext, req *struct{}) (string, error) {
			return rc.Gin.Param("workspaceId"), nil
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *struct{}) (*struct{}, error) {
			err := svc.DeleteDnsRecord(ctx, rc.Tx, rc.Gin.Param("workspaceId"), rc.Gin.Param("domainId"), rc.Gin.Param("recordId"))
			if err != nil {
				return nil, err
			}
			return &struct{}{}, nil
		},
	}, deps)
}
