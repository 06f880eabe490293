// Package vault implements the KV v2 client the secret lifecycle (spec
// section 4.4.4) stores secret values in. No HashiCorp Vault client
// exists anywhere in the example pack, so this calls Vault's HTTP API
// directly over net/http — the same precedent as
// internal/region.CloudflareRevoker for a third-party service with no
// library in the pack to ground a client on.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to one Vault KV v2 mount.
type Client struct {
	Address    string
	Token      string
	MountPath  string
	HTTPClient *http.Client
}

func NewClient(address, token, mountPath string) *Client {
	return &Client{Address: address, Token: token, MountPath: mountPath, HTTPClient: &http.Client{}}
}

// kvDataEnvelope is the KV v2 request/response wire shape: the secret's
// fields live under "data", versioning metadata under "metadata".
type kvDataEnvelope struct {
	Data map[string]interface{} `json:"data"`
}

type kvReadResponse struct {
	Data kvDataEnvelope `json:"data"`
}

func (c *Client) path(secretPath string) string {
	return fmt.Sprintf("%s/v1/%s/data/%s", c.Address, c.MountPath, secretPath)
}

func (c *Client) metadataPath(secretPath string) string {
	return fmt.Sprintf("%s/v1/%s/metadata/%s", c.Address, c.MountPath, secretPath)
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("vault: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("vault: build request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault: call %s: %w", url, err)
	}
	return resp, nil
}

// Write creates a new version of the secret at path, holding the given
// fields — spec section 4.4.4's create and overwrite-on-update both go
// through this call.
func (c *Client) Write(ctx context.Context, path string, fields map[string]interface{}) error {
	resp, err := c.do(ctx, http.MethodPost, c.path(path), kvDataEnvelope{Data: fields})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vault: write %s returned %d", path, resp.StatusCode)
	}
	return nil
}

// Read fetches the current version's fields.
func (c *Client) Read(ctx context.Context, path string) (map[string]interface{}, error) {
	resp, err := c.do(ctx, http.MethodGet, c.path(path), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vault: read %s returned %d", path, resp.StatusCode)
	}
	var decoded kvReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("vault: decode read response: %w", err)
	}
	return decoded.Data.Data, nil
}

// DestroyAllVersions permanently purges every version of path — spec
// section 4.4.4's "full vault-version destroy on delete" step, not just
// a soft delete of the latest version.
func (c *Client) DestroyAllVersions(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.metadataPath(path), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("vault: destroy %s returned %d", path, resp.StatusCode)
	}
	return nil
}
