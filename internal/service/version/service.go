// Package version owns the append-only, monotonically labeled snapshots of
// a service's full spec. Versions are created only by explicit publish and
// never mutated afterwards.
package version

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shiplane/shiplane/internal/cache"
	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
	"github.com/shiplane/shiplane/internal/service/configstore"
	"github.com/shiplane/shiplane/internal/service/snapshot"
)

var (
	// ErrNotDrifted means head and deployed hashes match; there is nothing
	// to publish.
	ErrNotDrifted = errors.New("version: configuration has not changed since last publish")
	// ErrNoPorts means the service declares no ports; a version without at
	// least one port is not publishable.
	ErrNoPorts = errors.New("version: at least one port is required to publish")
)

// Service implements the version store.
type Service struct {
	versions  repository.VersionRepository
	services  repository.ProjectRepository
	variables repository.VariableRepository
	configs   configstore.Service
	cache     *cache.Service
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a version service.
func New(versions repository.VersionRepository, services repository.ProjectRepository, variables repository.VariableRepository, configs configstore.Service, cacheSvc *cache.Service, logger *slog.Logger) Service {
	if logger != nil {
		logger = logger.With("component", "version")
	}
	return Service{
		versions:  versions,
		services:  services,
		variables: variables,
		configs:   configs,
		cache:     cacheSvc,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns a service's versions, newest first.
func (s Service) List(ctx context.Context, serviceID string, limit int) ([]domain.ServiceVersion, error) {
	return s.versions.ListVersionsByService(ctx, serviceID, limit)
}

// Get returns one version by ID.
func (s Service) Get(ctx context.Context, versionID string) (*domain.ServiceVersion, error) {
	return s.versions.GetVersionByID(ctx, versionID)
}

// Publish freezes the current full spec into a new immutable version. It is
// allowed only when the configuration has drifted since the last publish and
// at least one port is declared. Publishing does not touch the deployed
// hash; that is reconciled only by a successful deployment.
func (s Service) Publish(ctx context.Context, serviceID string) (*domain.ServiceVersion, error) {
	drifted, err := s.configs.IsDrifted(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !drifted {
		return nil, ErrNotDrifted
	}
	ports, err := s.configs.Ports(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, ErrNoPorts
	}

	service, err := s.services.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	entries, err := s.configs.Entries(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	variables, err := s.variables.ListVariables(ctx, domain.ScopeService, serviceID)
	if err != nil {
		return nil, err
	}
	specJSON, err := snapshot.BuildFull(*service, entries, variables).Encode()
	if err != nil {
		return nil, err
	}

	existing, err := s.versions.ListVersionsByService(ctx, serviceID, 0)
	if err != nil {
		return nil, err
	}
	label := NextLabel(existing)

	headValue, err := s.configs.Value(ctx, serviceID, domain.ConfigKeyHeadHash)
	if err != nil {
		return nil, err
	}
	configHash := ""
	if headValue != nil {
		configHash = *headValue
	}

	record := &domain.ServiceVersion{
		ID:           uuid.NewString(),
		ServiceID:    serviceID,
		VersionLabel: label,
		ConfigHash:   configHash,
		SpecJSON:     specJSON,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.versions.CreateVersion(ctx, record); err != nil {
		return nil, err
	}
	if err := s.configs.SetVersionLabel(ctx, serviceID, label); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.OnMutation(cache.MutationPublishVersion, serviceID)
	}
	if s.logger != nil {
		s.logger.Info("version published", "service_id", serviceID, "label", label, "hash", configHash)
	}
	return record, nil
}

// NextLabel computes the next version label: "v" + (max numeric suffix + 1),
// minimum 1. Labels that do not parse are ignored.
func NextLabel(existing []domain.ServiceVersion) string {
	max := 0
	for _, v := range existing {
		n, ok := parseLabel(v.VersionLabel)
		if ok && n > max {
			max = n
		}
	}
	return "v" + strconv.Itoa(max+1)
}

func parseLabel(label string) (int, bool) {
	trimmed := strings.TrimPrefix(label, "v")
	if trimmed == label {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
