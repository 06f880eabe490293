package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/ci"
	"github.com/patr-cloud/patr-api/internal/endpoint"
)

// RegisterCIWebhookRoutes binds C9's webhook ingestion endpoint directly
// onto gin rather than through the C3 endpoint framework: signature
// verification needs the exact unparsed body bytes, which the
// framework's bindRequest step would already have consumed.
func RegisterCIWebhookRoutes(router gin.IRoutes, deps endpoint.Deps, handler *ci.Handler) {
	router.POST("/webhook/ci/repo/:repoId", func(g *gin.Context) {
		body, err := g.GetRawData()
		if err != nil {
			writeCIError(g, apierror.New(apierror.CodeWrongParameters, "could not read request body"))
			return
		}

		event := ci.Event{
			Header:    ci.EventHeader(g.GetHeader("X-Patr-Event")),
			Ref:       g.GetHeader("X-Patr-Ref"),
			AfterSHA:  g.GetHeader("X-Patr-After"),
			Signature: g.GetHeader("X-Patr-Signature"),
			RawBody:   body,
		}

		tx := deps.DB.WithContext(g.Request.Context()).Begin()
		if tx.Error != nil {
			writeCIError(g, apierror.Server(tx.Error))
			return
		}
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		_, err = handler.HandleWebhook(g.Request.Context(), tx, g.Param("repoId"), event)
		if err != nil {
			writeCIError(g, err)
			return
		}

		if err := tx.Commit().Error; err != nil {
			writeCIError(g, apierror.Server(err))
			return
		}
		committed = true

		g.JSON(http.StatusOK, gin.H{"status": "accepted"})
	})
}

func writeCIError(g *gin.Context, err error) {
	status, envelope := apierror.ErrorEnvelope(err)
	g.AbortWithStatusJSON(status, envelope)
}
