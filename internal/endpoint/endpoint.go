// Package endpoint implements the typed endpoint framework (C3): one
// descriptor per route binds method, path, authentication requirement,
// preprocessing, and handler together, and is registered as a single gin
// handler that runs the pipeline from spec section 4.1.
package endpoint

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/rbac"
)

// Authentication is the closed set of authenticator tags an endpoint
// declares, per spec section 4.1.
type Authentication int

const (
	NoAuthentication Authentication = iota
	PlainTokenAuthenticator
	WorkspaceMembershipAuthenticator
	ResourcePermissionAuthenticator
)

// Deps are the process-wide singletons every endpoint's pipeline needs;
// they are the only global state besides the registry itself (spec
// section 5's "shared state" note).
type Deps struct {
	DB        *gorm.DB
	Cache     *cache.Client
	Validator *authn.Validator
	RBAC      *rbac.Engine
}

// RequestContext is threaded through Preprocess, the resource extractor,
// and the handler. Tx is the per-request transaction opened by the
// data-store layer (step 2 of spec section 4.1) — handlers never commit
// or roll it back themselves.
type RequestContext struct {
	Gin       *gin.Context
	Tx        *gorm.DB
	Cache     *cache.Client
	Principal *authn.Principal
	ClientIP  net.IP
}

// Descriptor[Req, Resp] is one endpoint: path/method routing is handled
// by gin's own router; this type owns everything from parsed body
// onward.
type Descriptor[Req any, Resp any] struct {
	Method         string
	Path           string
	Auth           Authentication
	// Permission and ExtractResource are required when Auth ==
	// ResourcePermissionAuthenticator.
	Permission      string
	ExtractResource func(rc *RequestContext, req *Req) (rbac.Resource, error)
	// ExtractWorkspaceID is required when Auth ==
	// WorkspaceMembershipAuthenticator.
	ExtractWorkspaceID func(rc *RequestContext, req *Req) (string, error)
	// Preprocess normalizes and validates the parsed request in place.
	// It runs before authentication, but an error it returns is only
	// written after authentication (if any) succeeds: when both fail,
	// the authentication error wins, so an unauthenticated caller never
	// learns their input was also malformed.
	Preprocess func(req *Req) error
	Handler    func(ctx context.Context, rc *RequestContext, req *Req) (*Resp, error)
}

// Register binds the descriptor to router as a single gin handler
// running the full layered pipeline.
func Register[Req any, Resp any](router gin.IRoutes, d Descriptor[Req, Resp], deps Deps) {
	router.Handle(d.Method, d.Path, func(g *gin.Context) {
		var req Req
		if err := bindRequest(g, &req); err != nil {
			writeError(g, apierror.New(apierror.CodeWrongParameters, "request could not be parsed: "+err.Error()))
			return
		}

		tx := deps.DB.WithContext(g.Request.Context()).Begin()
		if tx.Error != nil {
			writeError(g, apierror.Server(tx.Error))
			return
		}
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		clientIP := net.ParseIP(g.ClientIP())
		rc := &RequestContext{Gin: g, Tx: tx, Cache: deps.Cache, ClientIP: clientIP}

		var preprocessErr error
		if d.Preprocess != nil {
			preprocessErr = d.Preprocess(&req)
		}

		if g.GetHeader("User-Agent") == "" {
			writeError(g, apierror.New(apierror.CodeWrongParameters, "a User-Agent header is required"))
			return
		}

		if d.Auth == PlainTokenAuthenticator || d.Auth == WorkspaceMembershipAuthenticator || d.Auth == ResourcePermissionAuthenticator {
			bearer, ok := extractBearer(g)
			if !ok {
				writeError(g, apierror.New(apierror.CodeUnauthorized, "missing bearer token"))
				return
			}

			var memberWorkspaces []string
			if d.Auth == WorkspaceMembershipAuthenticator && d.ExtractWorkspaceID != nil {
				if wsID, err := d.ExtractWorkspaceID(rc, &req); err == nil {
					memberWorkspaces = []string{wsID}
				}
			}

			principal, authErr := deps.Validator.Authenticate(g.Request.Context(), tx, bearer, clientIP, memberWorkspaces)
			if authErr != nil {
				// Authentication failures outrank preprocessing
				// failures so an unauthenticated caller never learns
				// their input was also malformed.
				writeError(g, authErr)
				return
			}
			rc.Principal = principal
		}

		// Now that authentication (if any) has succeeded, a deferred
		// preprocessing failure surfaces.
		if preprocessErr != nil {
			writeError(g, asApiError(preprocessErr, apierror.CodeWrongParameters))
			return
		}

		if d.Auth == ResourcePermissionAuthenticator {
			resource, err := d.ExtractResource(rc, &req)
			if err != nil {
				writeError(g, asApiError(err, apierror.CodeResourceDoesNotExist))
				return
			}
			if err := deps.RBAC.Authorize(g.Request.Context(), tx, rc.Principal.UserID, isTokenSuperAdmin(rc.Principal), rc.Principal.ApiToken, resource, d.Permission); err != nil {
				writeError(g, err)
				return
			}
		}

		resp, err := d.Handler(g.Request.Context(), rc, &req)
		if err != nil {
			writeError(g, err)
			return
		}

		if err := tx.Commit().Error; err != nil {
			writeError(g, apierror.Server(err))
			return
		}
		committed = true

		writeSuccess(g, resp)
	})
}

func isTokenSuperAdmin(p *authn.Principal) bool {
	return p.ApiToken == nil
}

func bindRequest(g *gin.Context, req interface{}) error {
	if g.Request.ContentLength == 0 {
		return nil
	}
	return g.ShouldBindJSON(req)
}

func extractBearer(g *gin.Context) (string, bool) {
	header := g.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

func asApiError(err error, fallback apierror.Code) *apierror.Error {
	if apiErr, ok := err.(*apierror.Error); ok {
		return apiErr
	}
	return apierror.New(fallback, err.Error())
}

func writeError(g *gin.Context, err error) {
	status, envelope := apierror.ErrorEnvelope(err)
	g.AbortWithStatusJSON(status, envelope)
}

func writeSuccess(g *gin.Context, body interface{}) {
	g.JSON(http.StatusOK, wrapSuccess(body))
}

func wrapSuccess(body interface{}) gin.H {
	h := gin.H{"success": true}
	if body == nil {
		return h
	}
	h["data"] = body
	return h
}
