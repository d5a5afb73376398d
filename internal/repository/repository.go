package repository

import (
	"context"

	"github.com/shiplane/shiplane/internal/domain"
)

// ProjectRepository persists the project/environment/service catalog.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	ListEnvironmentsByProject(ctx context.Context, projectID string) ([]domain.Environment, error)
	GetEnvironmentByID(ctx context.Context, environmentID string) (*domain.Environment, error)
	CreateEnvironment(ctx context.Context, environment *domain.Environment) error
	CreateService(ctx context.Context, service *domain.Service) error
	GetServiceByID(ctx context.Context, serviceID string) (*domain.Service, error)
	ListServicesByProject(ctx context.Context, projectID string) ([]domain.Service, error)
}

// ConfigRepository persists per-service configuration entries.
type ConfigRepository interface {
	ListConfigEntries(ctx context.Context, serviceID string) ([]domain.ServiceConfigEntry, error)
	GetConfigEntry(ctx context.Context, serviceID, key string) (*domain.ServiceConfigEntry, error)
	CreateConfigEntry(ctx context.Context, entry *domain.ServiceConfigEntry) error
	UpdateConfigEntry(ctx context.Context, entryID string, value *string) error
}

// VariableRepository persists scoped variables and secrets.
type VariableRepository interface {
	ListVariables(ctx context.Context, scope domain.VariableScope, resourceID string) ([]domain.Variable, error)
	GetVariable(ctx context.Context, variableID string) (*domain.Variable, error)
	CreateVariable(ctx context.Context, variable *domain.Variable) error
	UpdateVariable(ctx context.Context, variable *domain.Variable) error
	DeleteVariable(ctx context.Context, variableID string) error
}

// VersionRepository stores append-only service version snapshots. A list
// limit of zero or less means unbounded.
type VersionRepository interface {
	CreateVersion(ctx context.Context, version *domain.ServiceVersion) error
	GetVersionByID(ctx context.Context, versionID string) (*domain.ServiceVersion, error)
	ListVersionsByService(ctx context.Context, serviceID string, limit int) ([]domain.ServiceVersion, error)
}

// DeploymentRepository stores deployment history. A list limit of zero or
// less means unbounded.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error)
	ListDeploymentsByService(ctx context.Context, serviceID string, limit int) ([]domain.Deployment, error)
	ListDeploymentsByTarget(ctx context.Context, versionID, environmentID string) ([]domain.Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error
}
