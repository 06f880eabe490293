// Package deployment holds the deployment domain types and request
// shapes for C6's representative create/update cases (spec section
// 4.4.1, 4.4.2).
package deployment

import "github.com/patr-cloud/patr-api/internal/db"

// ResourceTypeID is the well-known resource_type row every Deployment's
// Resource joins against. Nothing in this repository inserts the
// resource_types row; AutoMigrate only creates the table.
const ResourceTypeID = "resource-type-deployment"

// ExposedPort is a request-shape port declaration.
type ExposedPort struct {
	Port int                `json:"port"`
	Type db.ExposedPortType `json:"type"`
}

// EnvVar holds either a literal value or a secret reference, never both.
type EnvVar struct {
	Name     string  `json:"name"`
	Value    *string `json:"value,omitempty"`
	SecretID *string `json:"secret_id,omitempty"`
}

// Probe is the three-valued probe contract from spec section 4.4.2:
// Port == 0 clears the probe, Port != 0 sets it.
type Probe struct {
	Port int    `json:"port"`
	Path string `json:"path,omitempty"`
}

// CreateRequest is the typed, preprocessed body of
// POST /workspace/{id}/infrastructure/deployment.
type CreateRequest struct {
	Name               string                    `json:"name"`
	WorkspaceID        string                    `json:"-"`
	RegistryKind       db.DeploymentRegistryKind `json:"registry_kind"`
	RegistryRepoID     string                    `json:"registry_repo_id,omitempty"`
	RegistryHost       string                    `json:"registry_host,omitempty"`
	RegistryImage      string                    `json:"registry_image,omitempty"`
	ImageTag           string                    `json:"image_tag"`
	MachineTypeID      string                    `json:"machine_type"`
	RegionID           string                    `json:"region"`
	DeployOnPush       bool                      `json:"deploy_on_push"`
	DeployOnCreate     bool                      `json:"deploy_on_create"`
	MinHorizontalScale int                       `json:"min_horizontal_scale"`
	MaxHorizontalScale int                       `json:"max_horizontal_scale"`
	StartupProbe       *Probe                    `json:"startup_probe,omitempty"`
	LivenessProbe      *Probe                    `json:"liveness_probe,omitempty"`
	ExposedPorts       []ExposedPort             `json:"ports"`
	EnvVars            []EnvVar                  `json:"environment_variables,omitempty"`
	ConfigMounts       map[string][]byte         `json:"config_mounts,omitempty"`
	VolumeIDs          []string                  `json:"volumes,omitempty"`
}

// UpdateRequest's fields are all optional; Preprocess rejects an
// all-nil request with WrongParameters (spec section 4.4.2).
type UpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	ImageTag           *string `json:"image_tag,omitempty"`
	MachineTypeID      *string `json:"machine_type,omitempty"`
	MinHorizontalScale *int    `json:"min_horizontal_scale,omitempty"`
	MaxHorizontalScale *int    `json:"max_horizontal_scale,omitempty"`
	// StartupProbe/LivenessProbe use the three-valued contract: an
	// absent key leaves the probe unchanged; a present key with
	// Port==0 clears it; a present key with Port!=0 sets it.
	StartupProbe  *Probe         `json:"startup_probe,omitempty"`
	LivenessProbe *Probe         `json:"liveness_probe,omitempty"`
	ExposedPorts  *[]ExposedPort `json:"ports,omitempty"`
	EnvVars       *[]EnvVar      `json:"environment_variables,omitempty"`
	VolumeIDs     *[]string      `json:"volumes,omitempty"`
}

// IsEmpty reports whether no field was supplied, per the "at least one
// field must be Some" invariant.
func (r UpdateRequest) IsEmpty() bool {
	return r.Name == nil && r.ImageTag == nil && r.MachineTypeID == nil &&
		r.MinHorizontalScale == nil && r.MaxHorizontalScale == nil &&
		r.StartupProbe == nil && r.LivenessProbe == nil &&
		r.ExposedPorts == nil && r.EnvVars == nil && r.VolumeIDs == nil
}
