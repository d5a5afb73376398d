package diff

import (
	"bytes"
	"context"
	"sort"

	"log/slog"

	"github.com/shiplane/shiplane/internal/cache"
	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
	"github.com/shiplane/shiplane/internal/service/configstore"
	"github.com/shiplane/shiplane/internal/service/snapshot"
)

// Service answers the validateNewServiceVersion query: the diff between the
// latest published version and the live snapshot, plus the labels of any
// prior version whose snapshot is identical to the current one.
type Service struct {
	versions  repository.VersionRepository
	services  repository.ProjectRepository
	variables repository.VariableRepository
	configs   configstore.Service
	cache     *cache.Service
	logger    *slog.Logger
}

// New constructs a diff service.
func New(versions repository.VersionRepository, services repository.ProjectRepository, variables repository.VariableRepository, configs configstore.Service, cacheSvc *cache.Service, logger *slog.Logger) Service {
	if logger != nil {
		logger = logger.With("component", "diff")
	}
	return Service{
		versions:  versions,
		services:  services,
		variables: variables,
		configs:   configs,
		cache:     cacheSvc,
		logger:    logger,
	}
}

// Validate computes the publish-review diff for a service.
func (s Service) Validate(ctx context.Context, serviceID string) (Result, error) {
	cacheKey := cache.Key{Query: cache.QueryPublishDiff, Param: serviceID}
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			if result, ok := cached.(Result); ok {
				return result, nil
			}
		}
	}

	current, err := s.liveSnapshot(ctx, serviceID)
	if err != nil {
		return Result{}, err
	}
	history, err := s.versions.ListVersionsByService(ctx, serviceID, 0)
	if err != nil {
		return Result{}, err
	}

	var previous *snapshot.Full
	if len(history) > 0 {
		decoded, err := snapshot.DecodeFull(history[0].SpecJSON)
		if err != nil {
			return Result{}, err
		}
		previous = &decoded
	}

	result := Compare(previous, current)
	result.MatchingVersionLabels, err = matchingLabels(history, current)
	if err != nil {
		return Result{}, err
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, result)
	}
	return result, nil
}

// matchingLabels returns labels of prior versions whose stored snapshot is
// byte-identical to the current one after normalization. Used to warn
// against publishing a no-op duplicate.
func matchingLabels(history []domain.ServiceVersion, current snapshot.Full) ([]string, error) {
	currentRaw, err := current.Encode()
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0)
	for _, v := range history {
		decoded, err := snapshot.DecodeFull(v.SpecJSON)
		if err != nil {
			// Tolerate an undecodable historical snapshot; it cannot match.
			continue
		}
		stored, err := decoded.Encode()
		if err != nil {
			continue
		}
		if bytes.Equal(stored, currentRaw) {
			labels = append(labels, v.VersionLabel)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

func (s Service) liveSnapshot(ctx context.Context, serviceID string) (snapshot.Full, error) {
	service, err := s.services.GetServiceByID(ctx, serviceID)
	if err != nil {
		return snapshot.Full{}, err
	}
	entries, err := s.configs.Entries(ctx, serviceID)
	if err != nil {
		return snapshot.Full{}, err
	}
	variables, err := s.variables.ListVariables(ctx, domain.ScopeService, serviceID)
	if err != nil {
		return snapshot.Full{}, err
	}
	return snapshot.BuildFull(*service, entries, variables), nil
}
