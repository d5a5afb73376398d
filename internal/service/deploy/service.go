// Package deploy tracks deployments of service versions into environments:
// creation with subversion guarding, workflow polling, step-status
// derivation, and reconciliation of the deployed config hash on success.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shiplane/shiplane/internal/cache"
	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
	"github.com/shiplane/shiplane/internal/service/configstore"
)

// ErrDuplicateTarget is returned when a deployment already exists for the
// same (version, environment) pair and the caller has not confirmed the
// redeploy.
var ErrDuplicateTarget = errors.New("deploy: a deployment for this version and environment already exists")

// WorkflowEngine is the external engine that executes deployments. It is a
// black box; the tracker only enqueues work and polls step records.
type WorkflowEngine interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (string, error)
	Steps(ctx context.Context, workflowID string) ([]domain.WorkflowStep, error)
}

// EnqueueRequest carries everything the workflow engine needs to start a
// deployment.
type EnqueueRequest struct {
	ServiceID           string                      `json:"serviceId"`
	VersionID           string                      `json:"versionId"`
	EnvironmentID       string                      `json:"environmentId"`
	DeploymentID        string                      `json:"deploymentId"`
	DownstreamOverrides []domain.DownstreamOverride `json:"downstreamOverrides,omitempty"`
}

// Broadcaster pushes deployment status updates to live subscribers.
type Broadcaster interface {
	Broadcast(serviceID string, payload []byte)
}

// Service is the deployment tracker.
type Service struct {
	deployments repository.DeploymentRepository
	versions    repository.VersionRepository
	catalog     repository.ProjectRepository
	configs     configstore.Service
	engine      WorkflowEngine
	cache       *cache.Service
	hub         Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// New constructs a deployment tracker.
func New(deployments repository.DeploymentRepository, versions repository.VersionRepository, catalog repository.ProjectRepository, configs configstore.Service, engine WorkflowEngine, cacheSvc *cache.Service, hub Broadcaster, logger *slog.Logger) Service {
	if logger != nil {
		logger = logger.With("component", "deploy")
	}
	return Service{
		deployments: deployments,
		versions:    versions,
		catalog:     catalog,
		configs:     configs,
		engine:      engine,
		cache:       cacheSvc,
		hub:         hub,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateInput captures a deployment request. Proceed acknowledges the
// duplicate-target warning and turns the request into an explicit redeploy.
type CreateInput struct {
	ServiceID           string
	VersionID           string
	EnvironmentID       string
	DownstreamOverrides []domain.DownstreamOverride
	Proceed             bool
}

// Create registers a deployment and enqueues its workflow. Deploying the
// same (version, environment) pair again is rejected unless Proceed is set;
// an acknowledged redeploy gets subversionIndex = 1 + the prior maximum so
// listings can tell it apart from the original.
func (s Service) Create(ctx context.Context, input CreateInput) (*domain.Deployment, error) {
	version, err := s.versions.GetVersionByID(ctx, input.VersionID)
	if err != nil {
		return nil, err
	}
	if version.ServiceID != input.ServiceID {
		return nil, fmt.Errorf("%w: version %s does not belong to service %s", repository.ErrInvalidArgument, input.VersionID, input.ServiceID)
	}
	if _, err := s.catalog.GetEnvironmentByID(ctx, input.EnvironmentID); err != nil {
		return nil, err
	}

	existing, err := s.deployments.ListDeploymentsByTarget(ctx, input.VersionID, input.EnvironmentID)
	if err != nil {
		return nil, err
	}
	subversion := 0
	if len(existing) > 0 {
		if !input.Proceed {
			return nil, ErrDuplicateTarget
		}
		for _, prior := range existing {
			if prior.SubversionIndex >= subversion {
				subversion = prior.SubversionIndex + 1
			}
		}
	}

	deployment := &domain.Deployment{
		ID:                  uuid.NewString(),
		ServiceID:           input.ServiceID,
		VersionID:           input.VersionID,
		EnvironmentID:       input.EnvironmentID,
		Status:              domain.StatusNotStarted,
		SubversionIndex:     subversion,
		DownstreamOverrides: input.DownstreamOverrides,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.deployments.CreateDeployment(ctx, deployment); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.OnMutation(cache.MutationCreateDeployment, input.ServiceID)
	}

	workflowID, err := s.engine.Enqueue(ctx, EnqueueRequest{
		ServiceID:           input.ServiceID,
		VersionID:           input.VersionID,
		EnvironmentID:       input.EnvironmentID,
		DeploymentID:        deployment.ID,
		DownstreamOverrides: input.DownstreamOverrides,
	})
	if err != nil {
		completed := s.now().UTC()
		if updateErr := s.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
			DeploymentID: deployment.ID,
			Status:       domain.StatusError,
			CompletedAt:  &completed,
		}); updateErr != nil && s.logger != nil {
			s.logger.Error("failed to mark deployment errored", "deployment_id", deployment.ID, "error", updateErr)
		}
		if s.logger != nil {
			s.logger.Error("workflow enqueue failed", "deployment_id", deployment.ID, "error", err)
		}
		return nil, err
	}

	deployment.WorkflowID = &workflowID
	deployment.Status = domain.StatusPending
	if err := s.deployments.UpdateDeploymentStatus(ctx, domain.DeploymentStatusUpdate{
		DeploymentID: deployment.ID,
		Status:       domain.StatusPending,
		WorkflowID:   &workflowID,
	}); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("deployment created",
			"deployment_id", deployment.ID,
			"service_id", input.ServiceID,
			"version_id", input.VersionID,
			"environment_id", input.EnvironmentID,
			"subversion", subversion)
	}
	return deployment, nil
}

// Get returns one deployment.
func (s Service) Get(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	return s.deployments.GetDeploymentByID(ctx, deploymentID)
}

// ListByService returns a service's deployments, newest first.
func (s Service) ListByService(ctx context.Context, serviceID string, limit int) ([]domain.Deployment, error) {
	return s.deployments.ListDeploymentsByService(ctx, serviceID, limit)
}

// StatusReport bundles a deployment with its derived step views and summary.
type StatusReport struct {
	Deployment domain.Deployment `json:"deployment"`
	Steps      []StepView        `json:"steps"`
	Summary    Summary           `json:"summary"`
}

// PollStatus fetches workflow step records, derives the canonical step
// views and aggregate status, and persists status transitions. A terminal
// deployment is returned as-is without touching the engine; further polls
// never change it. Reaching SUCCESS reconciles the service's deployed
// config hash with the deployed version's.
func (s Service) PollStatus(ctx context.Context, deploymentID string) (*StatusReport, error) {
	deployment, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if deployment.Status.Terminal() {
		views := deriveSteps(deployment.WorkflowID != nil, nil)
		if deployment.WorkflowID != nil {
			if reported, stepsErr := s.engine.Steps(ctx, *deployment.WorkflowID); stepsErr == nil {
				views = deriveSteps(true, reported)
			}
		}
		return &StatusReport{
			Deployment: *deployment,
			Steps:      views,
			Summary:    summarize(views, deployment.Status, s.now().UTC()),
		}, nil
	}

	if deployment.WorkflowID == nil {
		views := deriveSteps(false, nil)
		return &StatusReport{
			Deployment: *deployment,
			Steps:      views,
			Summary:    summarize(views, deployment.Status, s.now().UTC()),
		}, nil
	}

	reported, err := s.engine.Steps(ctx, *deployment.WorkflowID)
	if err != nil {
		return nil, err
	}
	views := deriveSteps(true, reported)
	status := aggregateStatus(views)
	if status == domain.StatusNotStarted {
		// The engine accepted the workflow but has not reported any steps
		// yet. Keep the recorded status; a poll never moves it backwards.
		status = deployment.Status
	}

	if status != deployment.Status {
		update := domain.DeploymentStatusUpdate{DeploymentID: deployment.ID, Status: status}
		if status.Terminal() {
			completed := s.now().UTC()
			update.CompletedAt = &completed
			deployment.CompletedAt = &completed
		}
		if err := s.deployments.UpdateDeploymentStatus(ctx, update); err != nil {
			return nil, err
		}
		deployment.Status = status
		if s.cache != nil {
			s.cache.OnMutation(cache.MutationDeploymentStatus, deployment.ServiceID)
		}
		if status == domain.StatusSuccess {
			if err := s.reconcileDeployed(ctx, deployment); err != nil && s.logger != nil {
				s.logger.Error("deployed hash reconciliation failed", "deployment_id", deployment.ID, "error", err)
			}
		}
	}

	return &StatusReport{
		Deployment: *deployment,
		Steps:      views,
		Summary:    summarize(views, deployment.Status, s.now().UTC()),
	}, nil
}

// reconcileDeployed records the deployed version's config hash as the
// service's deployed checkpoint once the workflow has succeeded.
func (s Service) reconcileDeployed(ctx context.Context, deployment *domain.Deployment) error {
	version, err := s.versions.GetVersionByID(ctx, deployment.VersionID)
	if err != nil {
		return err
	}
	return s.configs.ReconcileDeployed(ctx, deployment.ServiceID, version.ConfigHash)
}
