package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
)

// Service manages the project/environment/service catalog.
type Service struct {
	catalog repository.ProjectRepository
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a Service.
func New(catalog repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{catalog: catalog, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ProjectInput captures a project creation request.
type ProjectInput struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

// CreateProject registers a project.
func (s Service) CreateProject(ctx context.Context, input ProjectInput) (*domain.Project, error) {
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", repository.ErrInvalidArgument)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = slug
	}
	now := s.now()
	project := &domain.Project{
		ID:        uuid.NewString(),
		Slug:      slug,
		Name:      name,
		OwnerID:   strings.TrimSpace(input.OwnerID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.catalog.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project_id", project.ID, "slug", project.Slug)
	return project, nil
}

// GetProject fetches a project by identifier.
func (s Service) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	return s.catalog.GetProjectByID(ctx, projectID)
}

// EnvironmentInput captures an environment creation request.
type EnvironmentInput struct {
	ProjectID       string `json:"projectId"`
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	EnvironmentType string `json:"environmentType"`
	Protected       bool   `json:"protected"`
	Position        int    `json:"position"`
}

// CreateEnvironment registers an environment under a project.
func (s Service) CreateEnvironment(ctx context.Context, input EnvironmentInput) (*domain.Environment, error) {
	if _, err := s.catalog.GetProjectByID(ctx, input.ProjectID); err != nil {
		return nil, err
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", repository.ErrInvalidArgument)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = slug
	}
	envType := strings.TrimSpace(input.EnvironmentType)
	if envType == "" {
		envType = "standard"
	}
	now := s.now()
	env := &domain.Environment{
		ID:              uuid.NewString(),
		ProjectID:       input.ProjectID,
		Slug:            slug,
		Name:            name,
		EnvironmentType: envType,
		Protected:       input.Protected,
		Position:        input.Position,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.catalog.CreateEnvironment(ctx, env); err != nil {
		return nil, err
	}
	s.logger.Info("environment created", "environment_id", env.ID, "project_id", env.ProjectID, "slug", env.Slug)
	return env, nil
}

// ListEnvironments returns environments for a project ordered by position.
func (s Service) ListEnvironments(ctx context.Context, projectID string) ([]domain.Environment, error) {
	return s.catalog.ListEnvironmentsByProject(ctx, projectID)
}

// ServiceInput captures a service creation request.
type ServiceInput struct {
	ProjectID string `json:"projectId"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
}

// CreateService registers a service under a project.
func (s Service) CreateService(ctx context.Context, input ServiceInput) (*domain.Service, error) {
	if _, err := s.catalog.GetProjectByID(ctx, input.ProjectID); err != nil {
		return nil, err
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", repository.ErrInvalidArgument)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = slug
	}
	now := s.now()
	svc := &domain.Service{
		ID:        uuid.NewString(),
		ProjectID: input.ProjectID,
		Slug:      slug,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.catalog.CreateService(ctx, svc); err != nil {
		return nil, err
	}
	s.logger.Info("service created", "service_id", svc.ID, "project_id", svc.ProjectID, "slug", svc.Slug)
	return svc, nil
}

// GetService fetches a service by identifier.
func (s Service) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	return s.catalog.GetServiceByID(ctx, serviceID)
}

// ListServices returns services belonging to a project.
func (s Service) ListServices(ctx context.Context, projectID string) ([]domain.Service, error) {
	return s.catalog.ListServicesByProject(ctx, projectID)
}
