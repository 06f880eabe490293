package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/secret/data/ws-1/secret-1", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", "secret")
	err := client.Write(context.Background(), "ws-1/secret-1", map[string]interface{}{"value": "hunter2"})
	require.NoError(t, err)
}

func TestRead_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", "secret")
	data, err := client.Read(context.Background(), "ws-1/missing")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRead_DecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"value":"hunter2"}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", "secret")
	data, err := client.Read(context.Background(), "ws-1/secret-1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", data["value"])
}

func TestDestroyAllVersions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/secret/metadata/ws-1/secret-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", "secret")
	err := client.DestroyAllVersions(context.Background(), "ws-1/secret-1")
	require.NoError(t, err)
}
