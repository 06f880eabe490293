package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func keyRevokedUser(userID string) string      { return fmt.Sprintf("token-revoked:user:%s", userID) }
func keyRevokedLogin(loginID string) string    { return fmt.Sprintf("token-revoked:login:%s", loginID) }
func keyRevokedWorkspace(wsID string) string   { return fmt.Sprintf("token-revoked:workspace:%s", wsID) }
func keyRevokedGlobal() string                 { return "token-revoked:global" }
func keyPermissionSnapshot(loginID string) string { return fmt.Sprintf("%s.permission", loginID) }
func keyApiTokenData(tokenID string) string    { return fmt.Sprintf("api-token-data:%s", tokenID) }

// RevokeUser marks every token ever issued to a user as invalid as of now.
// ttl is optional (zero means "no expiry") and bounds the keyspace per
// spec section 4.2.
func (c *Client) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	return c.setTimestamp(ctx, keyRevokedUser(userID), ttl)
}

func (c *Client) RevokeLogin(ctx context.Context, loginID string, ttl time.Duration) error {
	return c.setTimestamp(ctx, keyRevokedLogin(loginID), ttl)
}

func (c *Client) RevokeWorkspace(ctx context.Context, workspaceID string, ttl time.Duration) error {
	return c.setTimestamp(ctx, keyRevokedWorkspace(workspaceID), ttl)
}

func (c *Client) RevokeGlobal(ctx context.Context, ttl time.Duration) error {
	return c.setTimestamp(ctx, keyRevokedGlobal(), ttl)
}

func (c *Client) setTimestamp(ctx context.Context, key string, ttl time.Duration) error {
	now := time.Now().UnixMilli()
	if ttl > 0 {
		return c.raw.Set(ctx, key, now, ttl).Err()
	}
	return c.raw.Set(ctx, key, now, 0).Err()
}

// RevocationTimestamps is the set of cutover points a token's issue time
// is checked against. A zero value for a field means "never revoked".
type RevocationTimestamps struct {
	User      int64
	Login     int64
	Workspace int64
	Global    int64
}

// LookupRevocations pipelines all four revocation keys for a single round
// trip, per the ordering guarantee in spec section 5.
func (c *Client) LookupRevocations(ctx context.Context, userID, loginID string, workspaceIDs []string) (RevocationTimestamps, error) {
	var out RevocationTimestamps

	pipe := c.raw.Pipeline()
	userCmd := pipe.Get(ctx, keyRevokedUser(userID))
	loginCmd := pipe.Get(ctx, keyRevokedLogin(loginID))
	globalCmd := pipe.Get(ctx, keyRevokedGlobal())
	wsCmds := make([]*redis.StringCmd, len(workspaceIDs))
	for i, ws := range workspaceIDs {
		wsCmds[i] = pipe.Get(ctx, keyRevokedWorkspace(ws))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return out, fmt.Errorf("failed to pipeline revocation lookup: %w", err)
	}

	out.User = parseMillis(userCmd)
	out.Login = parseMillis(loginCmd)
	out.Global = parseMillis(globalCmd)
	for _, cmd := range wsCmds {
		if v := parseMillis(cmd); v > out.Workspace {
			out.Workspace = v
		}
	}
	return out, nil
}

func parseMillis(cmd *redis.StringCmd) int64 {
	v, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return v
}

// ApiTokenData is the permission snapshot cached per login_id to avoid
// re-resolving scope from Postgres on every request (spec section 4.2
// step 4).
type ApiTokenData struct {
	TokenID       string                       `json:"token_id"`
	UserID        string                       `json:"user_id"`
	TokenHash     string                       `json:"token_hash"`
	Permissions   map[string]TokenScopeSnapshot `json:"permissions"`
	NotBefore     *time.Time                   `json:"nbf,omitempty"`
	Expiry        *time.Time                   `json:"exp,omitempty"`
	AllowedIPs    []string                     `json:"allowed_ips,omitempty"`
	Created       time.Time                    `json:"created"`
	Revoked       *time.Time                   `json:"revoked,omitempty"`
	LastValidated time.Time                    `json:"last_validated"`
}

// TokenScopeSnapshot is one workspace's worth of cached scope for a
// single permission: either an include set or an exclude set (spec
// section 4.3's ResourcePermissionType).
type TokenScopeSnapshot struct {
	Type      string   `json:"type"` // "include" or "exclude"
	Resources []string `json:"resources"`
}

// PutApiTokenData stores the snapshot with the configured TTL (8h by
// default, spec section 4.2).
func (c *Client) PutApiTokenData(ctx context.Context, tokenID string, data ApiTokenData, ttl time.Duration) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal api token data: %w", err)
	}
	return c.raw.Set(ctx, keyApiTokenData(tokenID), blob, ttl).Err()
}

// GetApiTokenData returns (nil, nil) on a cache miss — callers fall back
// to resolving from Postgres.
func (c *Client) GetApiTokenData(ctx context.Context, tokenID string) (*ApiTokenData, error) {
	blob, err := c.raw.Get(ctx, keyApiTokenData(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read api token data: %w", err)
	}
	var data ApiTokenData
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api token data: %w", err)
	}
	return &data, nil
}

// InvalidateApiTokenData drops a cached snapshot, forcing the next
// validation to re-resolve from Postgres.
func (c *Client) InvalidateApiTokenData(ctx context.Context, tokenID string) error {
	return c.raw.Del(ctx, keyApiTokenData(tokenID)).Err()
}

// PutPermissionSnapshot caches a login's effective permission set,
// keyed "{login_id}.permission" per spec section 4.2.
func (c *Client) PutPermissionSnapshot(ctx context.Context, loginID string, snapshot map[string]TokenScopeSnapshot, ttl time.Duration) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal permission snapshot: %w", err)
	}
	return c.raw.Set(ctx, keyPermissionSnapshot(loginID), blob, ttl).Err()
}

func (c *Client) InvalidatePermissionSnapshot(ctx context.Context, loginID string) error {
	return c.raw.Del(ctx, keyPermissionSnapshot(loginID)).Err()
}
