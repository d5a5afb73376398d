package domain

import "time"

// Source types for a service's deployable artifact.
const (
	SourceTypeDocker = "docker"
	SourceTypeGit    = "git"
)

// Well-known configuration keys stored per service.
const (
	ConfigKeySourceType         = "source_type"
	ConfigKeyDockerImage        = "docker_image"
	ConfigKeyGitType            = "git_type"
	ConfigKeyGitOrg             = "git_org"
	ConfigKeyGitRepo            = "git_repo"
	ConfigKeyPorts              = "ports"
	ConfigKeyDownstreamServices = "downstream_services"
	ConfigKeyHeadHash           = "head_config_hash"
	ConfigKeyDeployedHash       = "deployed_config_hash"
	ConfigKeyVersion            = "version"
)

// Service is a deployable unit belonging to a project.
type Service struct {
	ID        string
	ProjectID string
	Slug      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceConfigEntry is one key/value configuration row for a service.
// A nil Value means the key is explicitly cleared; absence means unset.
type ServiceConfigEntry struct {
	ID        string
	ServiceID string
	Key       string
	Value     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PortMapping is the parsed payload of the "ports" configuration key.
type PortMapping struct {
	ContainerPort int    `json:"containerPort"`
	Protocol      string `json:"protocol"`
}

// DownstreamRef is the parsed payload of the "downstream_services" key.
type DownstreamRef struct {
	ServiceID   string `json:"serviceId"`
	ServiceName string `json:"serviceName"`
}

// DownstreamOverride pins a dependent service to a specific version for one
// deployment, independent of that service's own published versions.
type DownstreamOverride struct {
	ServiceID   string `json:"serviceId"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
}
