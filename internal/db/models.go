// Package db holds the gorm row definitions for every entity in the data
// model and the connection/migration plumbing used to reach them. This file
// covers identity, workspaces, the RBAC join tables, and user logins
// (spec section 3, first half).
package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newUUID() string {
	return uuid.New().String()
}

// User is a registered Patr account. Usernames are globally unique and
// validated against the username regex catalog during preprocessing, not
// here; this row only stores the already-validated value.
type User struct {
	ID                   string    `gorm:"primaryKey" json:"id"`
	Username             string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash         string    `gorm:"not null" json:"-"`
	RecoveryEmail        string    `gorm:"index" json:"recovery_email"`
	RecoveryPhoneCountry string    `json:"recovery_phone_country,omitempty"`
	RecoveryPhoneNumber  string    `json:"recovery_phone_number,omitempty"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	WorkspaceLimit       int       `gorm:"default:10" json:"workspace_limit"`
	MFASecret            *string   `json:"-"`
	CreatedAt            time.Time `json:"created"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newUUID()
	}
	return nil
}

// ResourceLimits is the aggregate and per-kind resource quota for a
// workspace, materialized from Workspace's scalar columns.
type ResourceLimits struct {
	Deployments   int `json:"deployments"`
	Databases     int `json:"databases"`
	StaticSites   int `json:"static_sites"`
	ManagedURLs   int `json:"managed_urls"`
	DockerStorage int `json:"docker_storage_mb"`
	Domains       int `json:"domains"`
	Secrets       int `json:"secrets"`
}

// Workspace is the tenant boundary. Exactly one user is super-admin.
type Workspace struct {
	ID                   string      `gorm:"primaryKey" json:"id"`
	Name                 string      `gorm:"uniqueIndex;not null" json:"name"`
	SuperAdminUserID     string      `gorm:"not null;index" json:"super_admin_user_id"`
	AlertEmails          StringSlice `gorm:"type:text" json:"alert_emails"`
	DeploymentLimit      int         `json:"deployment_limit"`
	DatabaseLimit        int         `json:"database_limit"`
	StaticSiteLimit      int         `json:"static_site_limit"`
	ManagedURLLimit      int         `json:"managed_url_limit"`
	DockerStorageLimitMB int         `json:"docker_storage_limit_mb"`
	DomainLimit          int         `json:"domain_limit"`
	SecretLimit          int         `json:"secret_limit"`
	DefaultPaymentMethod *string     `json:"default_payment_method,omitempty"`
	StripeCustomerID     string      `json:"stripe_customer_id"`
	AddressLine1         string      `json:"address_line1,omitempty"`
	AddressCity          string      `json:"address_city,omitempty"`
	AddressCountry       string      `json:"address_country,omitempty"`
	IsVerified           bool        `json:"is_verified"`
	CreatedAt            time.Time   `json:"created"`
	DeletedAt            *time.Time  `json:"deleted,omitempty"`
}

func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = newUUID()
	}
	return nil
}

func (w *Workspace) ResourceLimits() ResourceLimits {
	return ResourceLimits{
		Deployments:   w.DeploymentLimit,
		Databases:     w.DatabaseLimit,
		StaticSites:   w.StaticSiteLimit,
		ManagedURLs:   w.ManagedURLLimit,
		DockerStorage: w.DockerStorageLimitMB,
		Domains:       w.DomainLimit,
		Secrets:       w.SecretLimit,
	}
}

// HasPaymentMethod reports whether the workspace can create resources above
// the smallest plan tier (spec section 4.4.1).
func (w *Workspace) HasPaymentMethod() bool {
	return w.DefaultPaymentMethod != nil && *w.DefaultPaymentMethod != ""
}

// Resource is the join point every billable/permissioned object also rows
// into: (id, owner_workspace) is referenced as a compound FK by concrete
// resource tables so a resource can never change workspaces.
type Resource struct {
	ID               string     `gorm:"primaryKey" json:"id"`
	Name             string     `json:"name"`
	ResourceTypeID   string     `gorm:"not null;index" json:"resource_type_id"`
	OwnerWorkspaceID string     `gorm:"not null;index" json:"owner_workspace_id"`
	CreatedAt        time.Time  `json:"created"`
	DeletedAt        *time.Time `json:"deleted,omitempty"`
}

func (r *Resource) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}

// ResourceType catalog — process-wide constants, one row per kind of
// resource that can be owned/permissioned (deployment, static_site, ...).
type ResourceType struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
}

// Permission is the process-wide permission catalog, e.g.
// "workspace::infrastructure::deployment::edit".
type Permission struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
}

// Role is a named bundle of grants scoped to one workspace.
type Role struct {
	ID               string `gorm:"primaryKey" json:"id"`
	Name             string `gorm:"not null" json:"name"`
	Description      string `json:"description"`
	OwnerWorkspaceID string `gorm:"not null;index" json:"owner_workspace_id"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}

// RoleAllowPermissionResource grants permission on one specific resource.
type RoleAllowPermissionResource struct {
	RoleID       string `gorm:"primaryKey"`
	PermissionID string `gorm:"primaryKey"`
	ResourceID   string `gorm:"primaryKey"`
}

// RoleAllowPermissionResourceType grants permission on every resource of a
// given type within the role's workspace.
type RoleAllowPermissionResourceType struct {
	RoleID         string `gorm:"primaryKey"`
	PermissionID   string `gorm:"primaryKey"`
	ResourceTypeID string `gorm:"primaryKey"`
}

// WorkspaceUser links a user to a workspace through a role. A user may hold
// multiple roles in the same workspace.
type WorkspaceUser struct {
	UserID      string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"primaryKey"`
	RoleID      string `gorm:"primaryKey"`
}

// LoginType discriminates a UserLogin row.
type LoginType string

const (
	LoginTypeWeb      LoginType = "web_login"
	LoginTypeAPIToken LoginType = "api_token"
)

// UserLogin is the base row every interactive session and API token
// extends.
type UserLogin struct {
	LoginID   string    `gorm:"primaryKey" json:"login_id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	LoginType LoginType `gorm:"not null" json:"login_type"`
	CreatedAt time.Time `json:"created"`
}

// WebLogin extends UserLogin for an interactive session.
type WebLogin struct {
	LoginID          string    `gorm:"primaryKey" json:"login_id"`
	UserID           string    `gorm:"not null;index" json:"user_id"`
	RefreshTokenHash string    `gorm:"not null" json:"-"`
	TokenExpiry      time.Time `json:"token_expiry"`
	CreatedIP        string    `json:"created_ip"`
	CreatedLat       float64   `json:"created_lat"`
	CreatedLng       float64   `json:"created_lng"`
	CreatedUA        string    `json:"created_ua"`
	CreatedCountry   string    `json:"created_country"`
	CreatedRegion    string    `json:"created_region"`
	CreatedCity      string    `json:"created_city"`
	CreatedTimezone  string    `json:"created_timezone"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	LastActivityIP   string    `json:"last_activity_ip"`
	LastActivityUA   string    `json:"last_activity_ua"`
	CreatedAt        time.Time `json:"created"`
}

// ApiTokenScopeType discriminates a permission's resource set.
type ApiTokenScopeType string

const (
	ScopeInclude ApiTokenScopeType = "include"
	ScopeExclude ApiTokenScopeType = "exclude"
)

// ApiToken extends UserLogin (token_id == login_id) for a long-lived
// credential of the form patrv1.{secret}.{login_id}.
type ApiToken struct {
	TokenID    string      `gorm:"primaryKey" json:"token_id"`
	UserID     string      `gorm:"not null;index" json:"user_id"`
	Name       string      `json:"name"`
	TokenHash  string      `gorm:"not null" json:"-"`
	TokenNbf   *time.Time  `json:"token_nbf,omitempty"`
	TokenExp   *time.Time  `json:"token_exp,omitempty"`
	AllowedIPs StringSlice `gorm:"type:text" json:"allowed_ips,omitempty"`
	CreatedAt  time.Time   `json:"created"`
	RevokedAt  *time.Time  `json:"revoked,omitempty"`
}

// ApiTokenWorkspaceSuperAdmin marks a token as inheriting the user's
// super-admin status for a workspace.
type ApiTokenWorkspaceSuperAdmin struct {
	TokenID     string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"primaryKey"`
}

// ApiTokenResourcePermissionsType records, per (token, workspace,
// permission), whether the resource set named below is an include list or
// an exclude list.
type ApiTokenResourcePermissionsType struct {
	TokenID      string            `gorm:"primaryKey"`
	WorkspaceID  string            `gorm:"primaryKey"`
	PermissionID string            `gorm:"primaryKey"`
	Type         ApiTokenScopeType `gorm:"not null"`
}

// ApiTokenResourcePermissionsInclude lists the resources a scoped
// permission applies to, when Type == include.
type ApiTokenResourcePermissionsInclude struct {
	TokenID      string `gorm:"primaryKey"`
	WorkspaceID  string `gorm:"primaryKey"`
	PermissionID string `gorm:"primaryKey"`
	ResourceID   string `gorm:"primaryKey"`
}

// ApiTokenResourcePermissionsExclude lists the resources a scoped
// permission is carved out from, when Type == exclude.
type ApiTokenResourcePermissionsExclude struct {
	TokenID      string `gorm:"primaryKey"`
	WorkspaceID  string `gorm:"primaryKey"`
	PermissionID string `gorm:"primaryKey"`
	ResourceID   string `gorm:"primaryKey"`
}

// UserToBeSignedUp holds a pending registration between POST /auth/sign-up
// and POST /auth/complete-sign-up: the username is reserved and the
// password already hashed, but no User row exists until the sign-up OTP
// is verified.
type UserToBeSignedUp struct {
	Username      string    `gorm:"primaryKey" json:"username"`
	PasswordHash  string    `json:"-"`
	RecoveryEmail string    `gorm:"index" json:"recovery_email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	OTPHash       string    `json:"-"`
	OTPExpiry     time.Time `json:"otp_expiry"`
	CreatedAt     time.Time `json:"created"`
}

func (UserToBeSignedUp) TableName() string { return "users_to_be_signed_up" }
