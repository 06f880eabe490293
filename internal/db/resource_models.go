// This file covers the resource side of the data model (spec section 3,
// second half): deployments, static sites, managed databases, managed
// URLs, domains/DNS, regions, secrets, docker repositories, CI, and the
// usage-history tables.
package db

import (
	"time"

	"gorm.io/gorm"
)

// DeploymentStatus tracks the lifecycle in spec section 4.8.
type DeploymentStatus string

const (
	DeploymentStatusCreated   DeploymentStatus = "created"
	DeploymentStatusPushed    DeploymentStatus = "pushed"
	DeploymentStatusDeploying DeploymentStatus = "deploying"
	DeploymentStatusRunning   DeploymentStatus = "running"
	DeploymentStatusStopped   DeploymentStatus = "stopped"
	DeploymentStatusErrored   DeploymentStatus = "errored"
	DeploymentStatusDeleted   DeploymentStatus = "deleted"
)

// DeploymentRegistryKind discriminates Deployment.registry.
type DeploymentRegistryKind string

const (
	RegistryKindPatr     DeploymentRegistryKind = "patr"
	RegistryKindExternal DeploymentRegistryKind = "external"
)

// ProbePortType is always http today but kept as an enum column per the
// source schema so a tcp probe type can be added without a migration that
// rewrites the column.
type ProbePortType string

const ProbePortTypeHTTP ProbePortType = "http"

// Deployment is a long-running container workload. registry is a closed
// tagged union stored as a discriminator column (RegistryKind) plus the
// nullable payload columns for whichever kind is set. The deployment
// service copies all three payload columns from the request as given;
// nothing checks that only the side matching RegistryKind is non-empty.
type Deployment struct {
	ID         string                 `gorm:"primaryKey" json:"id"`
	Name       string                 `gorm:"not null;uniqueIndex:idx_deployment_name_workspace" json:"name"`
	WorkspaceID string                `gorm:"not null;uniqueIndex:idx_deployment_name_workspace;index" json:"workspace_id"`
	RegistryKind   DeploymentRegistryKind `gorm:"not null" json:"registry_kind"`
	RegistryRepoID string                 `json:"registry_repo_id,omitempty"`
	RegistryHost   string                 `json:"registry_host,omitempty"`
	RegistryImage  string                 `json:"registry_image,omitempty"`
	ImageTag           string           `gorm:"not null" json:"image_tag"`
	Status             DeploymentStatus `gorm:"not null;default:created" json:"status"`
	MachineTypeID      string           `gorm:"not null" json:"machine_type"`
	RegionID           string           `gorm:"not null;index" json:"region"`
	CurrentLiveDigest  *string          `json:"current_live_digest,omitempty"`
	DeployOnPush       bool             `gorm:"default:true" json:"deploy_on_push"`
	MinHorizontalScale int              `gorm:"not null" json:"min_horizontal_scale"`
	MaxHorizontalScale int              `gorm:"not null" json:"max_horizontal_scale"`
	StartupProbePort     *int    `json:"startup_probe_port,omitempty"`
	StartupProbePath     *string `json:"startup_probe_path,omitempty"`
	LivenessProbePort    *int    `json:"liveness_probe_port,omitempty"`
	LivenessProbePath    *string `json:"liveness_probe_path,omitempty"`
	CreatedAt time.Time  `json:"created"`
	DeletedAt *time.Time `json:"deleted,omitempty"`
}

func (d *Deployment) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = newUUID()
	}
	return nil
}

// ExposedPortType discriminates DeploymentExposedPort.
type ExposedPortType string

const (
	ExposedPortHTTP ExposedPortType = "http"
	ExposedPortTCP  ExposedPortType = "tcp"
)

// DeploymentExposedPort is a port a deployment's container listens on.
type DeploymentExposedPort struct {
	DeploymentID string          `gorm:"primaryKey"`
	Port         int             `gorm:"primaryKey"`
	Type         ExposedPortType `gorm:"not null"`
}

// DeploymentEnvironmentVariable holds either a literal value or a
// reference to a Secret, never both — the closed tagged union
// EnvironmentVariableValue from spec section 4.9.
type DeploymentEnvironmentVariable struct {
	DeploymentID string  `gorm:"primaryKey"`
	Name         string  `gorm:"primaryKey"`
	Value        *string `json:"value,omitempty"`
	SecretID     *string `json:"secret_id,omitempty"`
}

// DeploymentConfigMount is a small file mounted verbatim into the
// container filesystem (e.g. an nginx.conf).
type DeploymentConfigMount struct {
	DeploymentID string `gorm:"primaryKey"`
	Path         string `gorm:"primaryKey"`
	Bytes        []byte `gorm:"type:bytea"`
}

// DeploymentVolumeMount attaches an existing DeploymentVolume at a path.
// Volumes cannot be added or removed by an update once the deployment
// exists (spec section 3/4.3) — only the mount path of an existing
// assignment may change.
type DeploymentVolumeMount struct {
	DeploymentID string `gorm:"primaryKey"`
	VolumeID     string `gorm:"primaryKey"`
	MountPath    string `gorm:"not null"`
}

// DeploymentVolume is a persistent volume a deployment can mount. Its
// size and identity are fixed at creation time.
type DeploymentVolume struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"not null;uniqueIndex:idx_volume_name_deployment" json:"name"`
	DeploymentID string     `gorm:"not null;uniqueIndex:idx_volume_name_deployment;index" json:"deployment_id"`
	SizeGB       int        `gorm:"not null" json:"size_gb"`
	MountPath    string     `gorm:"not null;uniqueIndex:idx_volume_mount_deployment" json:"mount_path"`
	DeletedAt    *time.Time `json:"deleted,omitempty"`
}

func (v *DeploymentVolume) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = newUUID()
	}
	return nil
}

// StaticSiteStatus mirrors DeploymentStatus minus the pure-container states.
type StaticSiteStatus string

const (
	StaticSiteStatusCreated StaticSiteStatus = "created"
	StaticSiteStatusActive  StaticSiteStatus = "active"
	StaticSiteStatusStopped StaticSiteStatus = "stopped"
	StaticSiteStatusErrored StaticSiteStatus = "errored"
	StaticSiteStatusDeleted StaticSiteStatus = "deleted"
)

// StaticSite serves a directory of prebuilt assets.
type StaticSite struct {
	ID                string           `gorm:"primaryKey" json:"id"`
	Name              string           `gorm:"not null" json:"name"`
	WorkspaceID       string           `gorm:"not null;index" json:"workspace_id"`
	Status            StaticSiteStatus `gorm:"not null;default:created" json:"status"`
	CurrentLiveUpload *string          `json:"current_live_upload,omitempty"`
	DeletedAt         *time.Time       `json:"deleted,omitempty"`
}

func (s *StaticSite) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newUUID()
	}
	return nil
}

// StaticSiteUpload is an append-only history of uploaded bundles; exactly
// one per site is ever "current" (StaticSite.current_live_upload).
type StaticSiteUpload struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	StaticSiteID string    `gorm:"not null;index" json:"static_site_id"`
	Digest       string    `gorm:"not null" json:"digest"`
	CreatedAt    time.Time `json:"created"`
}

func (u *StaticSiteUpload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newUUID()
	}
	return nil
}

// ManagedDatabaseStatus mirrors spec section 4.8.
type ManagedDatabaseStatus string

const (
	ManagedDatabaseStatusCreating ManagedDatabaseStatus = "creating"
	ManagedDatabaseStatusRunning  ManagedDatabaseStatus = "running"
	ManagedDatabaseStatusErrored  ManagedDatabaseStatus = "errored"
	ManagedDatabaseStatusDeleted  ManagedDatabaseStatus = "deleted"
)

// ManagedDatabaseEngine is a closed set of supported engines; the
// reconciler picks a StatefulSet Helm chart per engine.
type ManagedDatabaseEngine string

const (
	EnginePostgres ManagedDatabaseEngine = "postgres"
	EngineMySQL    ManagedDatabaseEngine = "mysql"
	EngineMongo    ManagedDatabaseEngine = "mongo"
	EngineRedis    ManagedDatabaseEngine = "redis"
)

// ManagedDatabase is a provisioned database instance. Credentials are
// generated when the reconciler provisions it; only the password's hash
// (PasswordHash) is stored, never the password itself.
type ManagedDatabase struct {
	ID           string                `gorm:"primaryKey" json:"id"`
	Name         string                `gorm:"not null" json:"name"`
	WorkspaceID  string                `gorm:"not null;index" json:"workspace_id"`
	RegionID     string                `gorm:"not null;index" json:"region"`
	DBName       string                `gorm:"not null" json:"db_name"`
	Engine       ManagedDatabaseEngine `gorm:"not null" json:"engine"`
	Version      string                `json:"version"`
	Plan         string                `json:"plan"`
	Status       ManagedDatabaseStatus `gorm:"not null;default:creating" json:"status"`
	Host         string                `json:"host,omitempty"`
	Port         int                   `json:"port,omitempty"`
	Username     string                `json:"username,omitempty"`
	PasswordHash string                `json:"-"`
	ReplicaCount int                   `gorm:"default:1" json:"replica_count"`
	DeletedAt    *time.Time            `json:"deleted,omitempty"`
}

func (m *ManagedDatabase) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = newUUID()
	}
	return nil
}

// ManagedURLKind discriminates ManagedURL's closed tagged union. The
// service layer enforces that only the columns matching Kind are
// non-null (spec section 4.9 kind-consistency invariant); no database
// check constraint mirrors it, since AutoMigrate creates none and the
// gorm tags declare none.
type ManagedURLKind string

const (
	ManagedURLProxyToDeployment ManagedURLKind = "proxy_to_deployment"
	ManagedURLProxyToStaticSite ManagedURLKind = "proxy_to_static_site"
	ManagedURLProxyURL          ManagedURLKind = "proxy_url"
	ManagedURLRedirect          ManagedURLKind = "redirect"
)

// ManagedURL is an ingress routing rule. UNIQUE(sub_domain, domain, path)
// is declared via the composite unique index below.
type ManagedURL struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	SubDomain  string         `gorm:"not null;uniqueIndex:idx_managed_url_route" json:"sub_domain"`
	DomainID   string         `gorm:"not null;uniqueIndex:idx_managed_url_route;index" json:"domain_id"`
	Path       string         `gorm:"not null;uniqueIndex:idx_managed_url_route" json:"path"`
	Kind       ManagedURLKind `gorm:"not null" json:"kind"`
	DeploymentID  *string `json:"deployment_id,omitempty"`
	DeploymentPort *int   `json:"deployment_port,omitempty"`
	StaticSiteID   *string `json:"static_site_id,omitempty"`
	URL            *string `json:"url,omitempty"`
	HTTPOnly       *bool   `json:"http_only,omitempty"`
	Permanent      *bool   `json:"permanent,omitempty"`
}

func (u *ManagedURL) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newUUID()
	}
	return nil
}

// DomainType discriminates Domain.
type DomainType string

const (
	DomainTypePersonal DomainType = "personal"
	DomainTypeBusiness DomainType = "business"
)

// Domain is a globally unique registered name.
type Domain struct {
	ID   string     `gorm:"primaryKey" json:"id"`
	Name string     `gorm:"uniqueIndex;not null" json:"name"`
	Type DomainType `gorm:"not null" json:"type"`
	TLD  string     `json:"tld"`
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = newUUID()
	}
	return nil
}

// PatrControlledNameserverType is always internal today but kept as an
// enum column for a future external-nameserver integration.
type PatrControlledNameserverType string

const NameserverInternal PatrControlledNameserverType = "internal"

// PatrControlledDomain extends Domain for a domain whose DNS Patr hosts
// directly (e.g. via Cloudflare).
type PatrControlledDomain struct {
	DomainID        string                       `gorm:"primaryKey"`
	NameserverType  PatrControlledNameserverType `gorm:"not null"`
	ZoneIdentifier  string                       `json:"zone_identifier"`
}

// UserControlledDomain extends Domain for a domain whose DNS the user
// manages elsewhere; Patr only verifies ownership via a TXT challenge.
type UserControlledDomain struct {
	DomainID string `gorm:"primaryKey"`
}

// WorkspaceDomain links a Domain to the Workspace that claims it.
type WorkspaceDomain struct {
	DomainID                string     `gorm:"primaryKey"`
	WorkspaceID             string     `gorm:"primaryKey;index"`
	IsVerified              bool       `gorm:"default:false" json:"is_verified"`
	LastUnverifiedAt        *time.Time `json:"last_unverified,omitempty"`
	CloudflareWorkerRouteID string     `json:"cloudflare_worker_route_id,omitempty"`
}

// DnsRecordType is the closed set of record kinds Patr manages.
type DnsRecordType string

const (
	DnsRecordA     DnsRecordType = "A"
	DnsRecordAAAA  DnsRecordType = "AAAA"
	DnsRecordCNAME DnsRecordType = "CNAME"
	DnsRecordMX    DnsRecordType = "MX"
	DnsRecordTXT   DnsRecordType = "TXT"
)

// DnsRecord is one managed record under a PatrControlledDomain. Value is
// the closed tagged union of record payloads collapsed to a string
// column; callers interpret it per Type (see internal/service/domain).
type DnsRecord struct {
	ID               string        `gorm:"primaryKey" json:"id"`
	DomainID         string        `gorm:"not null;index" json:"domain_id"`
	Name             string        `gorm:"not null" json:"name"`
	Type             DnsRecordType `gorm:"not null" json:"type"`
	Value            string        `gorm:"not null" json:"value"`
	TTL              int           `gorm:"default:3600" json:"ttl"`
	Priority         *int          `json:"priority,omitempty"`
	Proxied          *bool         `json:"proxied,omitempty"`
	RecordIdentifier string        `json:"record_identifier,omitempty"`
}

func (r *DnsRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}

// RegionStatus mirrors spec section 4.8.
type RegionStatus string

const (
	RegionStatusCreated      RegionStatus = "created"
	RegionStatusActive       RegionStatus = "active"
	RegionStatusComingSoon   RegionStatus = "coming_soon"
	RegionStatusDisconnected RegionStatus = "disconnected"
	RegionStatusErrored      RegionStatus = "errored"
	RegionStatusDeleted      RegionStatus = "deleted"
)

// CloudProvider is the closed strategy set the region controller
// branches on when provisioning first-party regions (spec.md's
// supplemented cloud-provider adapters).
type CloudProvider string

const (
	CloudProviderDigitalOcean CloudProvider = "digitalocean"
	CloudProviderOther        CloudProvider = "other"
)

// DeploymentRegion is a reconciliation target. Workspace is nil for a
// first-party Patr region and set for a BYOC region. Invariant:
// ready implies config_file and ingress_hostname are both set. No code
// here sets Ready to true, so no code checks the invariant either.
type DeploymentRegion struct {
	ID                      string        `gorm:"primaryKey" json:"id"`
	Name                    string        `gorm:"not null" json:"name"`
	CloudProvider           CloudProvider `gorm:"not null" json:"cloud_provider"`
	WorkspaceID             *string       `gorm:"index" json:"workspace_id,omitempty"`
	Status                  RegionStatus  `gorm:"not null;default:created" json:"status"`
	Ready                   bool          `gorm:"default:false" json:"ready"`
	ConfigFile              []byte        `gorm:"type:bytea" json:"-"`
	IngressHostname         *string       `json:"ingress_hostname,omitempty"`
	MessageLog              string        `json:"message_log,omitempty"`
	DisconnectedAt          *time.Time    `json:"disconnected_at,omitempty"`
	CloudflareCertificateID string        `json:"cloudflare_certificate_id,omitempty"`
	CertificateRevoked      bool          `gorm:"default:false" json:"certificate_revoked"`
	DeletedAt               *time.Time    `json:"deleted,omitempty"`
}

func (r *DeploymentRegion) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}

// Secret's value lives in an external KV vault keyed by
// "{workspace}/{secret}" (see vaultPath in internal/service/secret); this row only
// carries the name and optional deployment scoping.
type Secret struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	WorkspaceID  string     `gorm:"not null;index" json:"workspace_id"`
	DeploymentID *string    `json:"deployment_id,omitempty"`
	DeletedAt    *time.Time `json:"deleted,omitempty"`
}

func (s *Secret) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newUUID()
	}
	return nil
}

// DockerRepository is a Patr-hosted image repository.
type DockerRepository struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	WorkspaceID string     `gorm:"not null;index" json:"workspace_id"`
	DeletedAt   *time.Time `json:"deleted,omitempty"`
}

func (r *DockerRepository) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}

// RepositoryManifest is one content-addressed image layer set pushed to
// a repository.
type RepositoryManifest struct {
	RepositoryID string    `gorm:"primaryKey"`
	Digest       string    `gorm:"primaryKey"`
	SizeBytes    int64     `json:"size"`
	CreatedAt    time.Time `json:"created"`
}

// RepositoryTag is a mutable pointer to a manifest digest; digest→manifest
// is many-to-many through the set of tags pointing at it.
type RepositoryTag struct {
	RepositoryID string    `gorm:"primaryKey"`
	Tag          string    `gorm:"primaryKey"`
	Digest       string    `gorm:"not null"`
	LastUpdated  time.Time `json:"last_updated"`
}

// CIGitProvider is the closed set of providers the webhook dispatch
// table branches on (C9).
type CIGitProvider string

const (
	CIProviderGitHub    CIGitProvider = "github"
	CIProviderGitLab    CIGitProvider = "gitlab"
	CIProviderBitbucket CIGitProvider = "bitbucket"
)

// CIRepo links a workspace to a git-provider repository for webhook
// ingestion.
type CIRepo struct {
	ID             string        `gorm:"primaryKey" json:"id"`
	WorkspaceID    string        `gorm:"not null;index" json:"workspace_id"`
	Provider       CIGitProvider `gorm:"not null" json:"provider"`
	ProviderRepoID string        `gorm:"not null" json:"provider_repo_id"`
	WebhookSecret  string        `gorm:"not null" json:"-"`
	Activated      bool          `gorm:"default:true" json:"activated"`
	DeletedAt      *time.Time    `json:"deleted,omitempty"`
}

func (r *CIRepo) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}

// BuildStatus mirrors spec section 4.8.
type BuildStatus string

const (
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusErrored   BuildStatus = "errored"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// CIBuild is one pipeline run triggered by a webhook event. BuildNum is
// monotonic per CIRepoID (spec section 4.7 step 7), assigned by
// Repository.CreateBuild under the request's transaction rather than a
// DB sequence, since it's scoped per repo rather than per table.
type CIBuild struct {
	ID         string      `gorm:"primaryKey" json:"id"`
	CIRepoID   string      `gorm:"not null;index" json:"ci_repo_id"`
	BuildNum   int         `gorm:"not null" json:"build_num"`
	CommitSHA  string      `gorm:"not null" json:"commit_sha"`
	BranchName string      `json:"branch_name"`
	Status     BuildStatus `gorm:"not null;default:running" json:"status"`
	StartedAt  time.Time   `json:"started"`
	FinishedAt *time.Time  `json:"finished,omitempty"`
}

func (b *CIBuild) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = newUUID()
	}
	return nil
}

// BuildStepStatus mirrors spec section 4.8.
type BuildStepStatus string

const (
	StepStatusWaitingToStart  BuildStepStatus = "waiting_to_start"
	StepStatusRunning         BuildStepStatus = "running"
	StepStatusSucceeded       BuildStepStatus = "succeeded"
	StepStatusErrored         BuildStepStatus = "errored"
	StepStatusSkippedDepFailed BuildStepStatus = "skipped_dep_failed"
	StepStatusCancelled       BuildStepStatus = "cancelled"
)

// CIStep is one step of a build's materialized pipeline, in declared
// order, with an optional dependency on an earlier step by name.
type CIStep struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	BuildID   string          `gorm:"not null;index" json:"build_id"`
	Name      string          `gorm:"not null" json:"name"`
	DependsOn *string         `json:"depends_on,omitempty"`
	Sequence  int             `gorm:"not null" json:"sequence"`
	Status    BuildStepStatus `gorm:"not null;default:waiting_to_start" json:"status"`
	StartedAt *time.Time      `json:"started,omitempty"`
	FinishedAt *time.Time     `json:"finished,omitempty"`
}

// UsageHistory pairs a billable attribute window with its resource.
// Plan/size is a free-form string because the column it describes
// differs per resource kind (deployment machine type, database plan,
// static site tier, docker storage bytes); on any change to the billable
// attribute the service layer closes the open row (stop_time = now())
// and opens a new one.
type UsageHistory struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	WorkspaceID string     `gorm:"not null;index" json:"workspace_id"`
	ResourceID  string     `gorm:"not null;index" json:"resource_id"`
	PlanOrSize  string     `json:"plan_or_size"`
	StartTime   time.Time  `json:"start_time"`
	StopTime    *time.Time `json:"stop_time,omitempty"`
}

func (h *UsageHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = newUUID()
	}
	return nil
}
