package region

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudflareRevoker_Revoke_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/certificates/cert-123", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	revoker := NewCloudflareRevoker(srv.URL, "tok")
	err := revoker.Revoke(context.Background(), "cert-123")
	require.NoError(t, err)
}

func TestCloudflareRevoker_Revoke_AlreadyRevokedTreatedAsSuccessPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	revoker := NewCloudflareRevoker(srv.URL, "tok")
	err := revoker.Revoke(context.Background(), "cert-123")
	require.Error(t, err)
	assert.True(t, isAlreadyRevoked(err))
}

func TestCloudflareRevoker_Revoke_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	revoker := NewCloudflareRevoker(srv.URL, "tok")
	err := revoker.Revoke(context.Background(), "cert-123")
	require.Error(t, err)
	assert.False(t, isAlreadyRevoked(err))
}
