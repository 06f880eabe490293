package endpoint_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/endpoint"
)

type echoReq struct {
	Name string `json:"name"`
}

type echoResp struct {
	Name string `json:"name"`
}

func setupEndpointTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	return gormDB, mock
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doRequest(router *gin.Engine, method, path string, body interface{}, withUA bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if withUA {
		req.Header.Set("User-Agent", "test-agent")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegister_NoAuthHappyPath(t *testing.T) {
	gormDB, mock := setupEndpointTestDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	router := newTestRouter()
	endpoint.Register(router, endpoint.Descriptor[echoReq, echoResp]{
		Method: http.MethodPost,
		Path:   "/echo",
		Auth:   endpoint.NoAuthentication,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *echoReq) (*echoResp, error) {
			return &echoResp{Name: req.Name}, nil
		},
	}, endpoint.Deps{DB: gormDB})

	w := doRequest(router, http.MethodPost, "/echo", echoReq{Name: "hi"}, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"name":"hi"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_MissingUserAgentRejected(t *testing.T) {
	gormDB, mock := setupEndpointTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	router := newTestRouter()
	endpoint.Register(router, endpoint.Descriptor[echoReq, echoResp]{
		Method: http.MethodPost,
		Path:   "/echo",
		Auth:   endpoint.NoAuthentication,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *echoReq) (*echoResp, error) {
			return &echoResp{Name: req.Name}, nil
		},
	}, endpoint.Deps{DB: gormDB})

	w := doRequest(router, http.MethodPost, "/echo", echoReq{Name: "hi"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "User-Agent")
}

func TestRegister_HandlerErrorRollsBack(t *testing.T) {
	gormDB, mock := setupEndpointTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	router := newTestRouter()
	endpoint.Register(router, endpoint.Descriptor[echoReq, echoResp]{
		Method: http.MethodPost,
		Path:   "/echo",
		Auth:   endpoint.NoAuthentication,
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *echoReq) (*echoResp, error) {
			return nil, apierror.New(apierror.CodeResourceExists, "already exists")
		},
	}, endpoint.Deps{DB: gormDB})

	w := doRequest(router, http.MethodPost, "/echo", echoReq{Name: "hi"}, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_PreprocessErrorSurfacesWhenNoAuthRequired(t *testing.T) {
	gormDB, mock := setupEndpointTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	router := newTestRouter()
	endpoint.Register(router, endpoint.Descriptor[echoReq, echoResp]{
		Method: http.MethodPost,
		Path:   "/echo",
		Auth:   endpoint.NoAuthentication,
		Preprocess: func(req *echoReq) error {
			return apierror.New(apierror.CodeWrongParameters, "name is required")
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *echoReq) (*echoResp, error) {
			return &echoResp{Name: req.Name}, nil
		},
	}, endpoint.Deps{DB: gormDB})

	w := doRequest(router, http.MethodPost, "/echo", echoReq{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "name is required")
}

func TestRegister_MissingBearerTokenOutranksPreprocessError(t *testing.T) {
	gormDB, mock := setupEndpointTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	router := newTestRouter()
	endpoint.Register(router, endpoint.Descriptor[echoReq, echoResp]{
		Method: http.MethodPost,
		Path:   "/echo",
		Auth:   endpoint.PlainTokenAuthenticator,
		Preprocess: func(req *echoReq) error {
			return apierror.New(apierror.CodeWrongParameters, "name is required")
		},
		Handler: func(ctx context.Context, rc *endpoint.RequestContext, req *echoReq) (*echoResp, error) {
			return &echoResp{Name: req.Name}, nil
		},
	}, endpoint.Deps{DB: gormDB})

	w := doRequest(router, http.MethodPost, "/echo", echoReq{}, true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "bearer")
}
