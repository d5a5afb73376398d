// Package configstore owns per-service configuration entries and the two
// hash checkpoints used for drift detection: head_config_hash (current
// desired state) and deployed_config_hash (last reconciled state).
package configstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/shiplane/shiplane/internal/cache"
	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
	"github.com/shiplane/shiplane/internal/service/snapshot"
)

const upsertRetryDelay = 50 * time.Millisecond

var errKeyRequired = fmt.Errorf("%w: config key required", repository.ErrInvalidArgument)

// Service coordinates config entry writes and drift bookkeeping.
type Service struct {
	configs   repository.ConfigRepository
	variables repository.VariableRepository
	cache     *cache.Service
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a config store service.
func New(configs repository.ConfigRepository, variables repository.VariableRepository, cacheSvc *cache.Service, logger *slog.Logger) Service {
	if logger != nil {
		logger = logger.With("component", "configstore")
	}
	return Service{
		configs:   configs,
		variables: variables,
		cache:     cacheSvc,
		logger:    logger,
		now:       time.Now,
	}
}

// Entries lists all config entries for a service.
func (s Service) Entries(ctx context.Context, serviceID string) ([]domain.ServiceConfigEntry, error) {
	return s.configs.ListConfigEntries(ctx, serviceID)
}

// Value returns the value of one key, or nil if the key is unset.
func (s Service) Value(ctx context.Context, serviceID, key string) (*string, error) {
	entry, err := s.configs.GetConfigEntry(ctx, serviceID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entry.Value, nil
}

// UpsertEntry validates and writes one config entry, then recomputes the
// head hash so drift detection stays fresh. A nil value clears the key.
func (s Service) UpsertEntry(ctx context.Context, serviceID, key string, value *string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errKeyRequired
	}
	if err := validateValue(key, value); err != nil {
		return err
	}
	if err := s.writeEntry(ctx, serviceID, key, value); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.OnMutation(cache.MutationUpsertConfigEntry, serviceID)
	}
	if snapshot.SystemKey(key) {
		return nil
	}
	if _, err := s.RecomputeHead(ctx, serviceID); err != nil {
		return err
	}
	return nil
}

// writeEntry implements the update-then-create-with-retry protocol: try to
// update a known row first; on a miss or duplicate-key failure, refetch and
// retry the update once; create only if no entry exists after the refetch.
// Two concurrent writers racing to create the same key resolve in one retry
// round-trip without locking.
func (s Service) writeEntry(ctx context.Context, serviceID, key string, value *string) error {
	existing, err := s.configs.GetConfigEntry(ctx, serviceID, key)
	if err == nil {
		updateErr := s.configs.UpdateConfigEntry(ctx, existing.ID, value)
		if updateErr == nil {
			return nil
		}
		if !errors.Is(updateErr, repository.ErrNotFound) {
			return updateErr
		}
		// Row vanished between read and write; fall through to the
		// refetch path below.
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	backoff := retry.WithMaxRetries(1, retry.NewConstant(upsertRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		refetched, err := s.configs.GetConfigEntry(ctx, serviceID, key)
		if err == nil {
			return s.configs.UpdateConfigEntry(ctx, refetched.ID, value)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		entry := &domain.ServiceConfigEntry{
			ID:        uuid.NewString(),
			ServiceID: serviceID,
			Key:       key,
			Value:     value,
			CreatedAt: s.now().UTC(),
		}
		createErr := s.configs.CreateConfigEntry(ctx, entry)
		if errors.Is(createErr, repository.ErrConflict) {
			// Lost the create race; the refetch on the next attempt
			// will find the winner's row and update it.
			if s.logger != nil {
				s.logger.Warn("config entry create conflict", "service_id", serviceID, "key", key)
			}
			return retry.RetryableError(createErr)
		}
		return createErr
	})
}

// RecomputeHead re-fetches the service's config and scoped variables, runs
// the canonicalizer and hasher, and upserts head_config_hash. It must run
// after every mutation of a variable, secret, source descriptor, port list
// or downstream list.
func (s Service) RecomputeHead(ctx context.Context, serviceID string) (string, error) {
	entries, err := s.configs.ListConfigEntries(ctx, serviceID)
	if err != nil {
		return "", err
	}
	variables, err := s.variables.ListVariables(ctx, domain.ScopeService, serviceID)
	if err != nil {
		return "", err
	}
	hash := snapshot.Hash(snapshot.Build(entries, variables).Canonical())
	if err := s.writeEntry(ctx, serviceID, domain.ConfigKeyHeadHash, &hash); err != nil {
		return "", err
	}
	if s.logger != nil {
		s.logger.Debug("head hash recomputed", "service_id", serviceID, "hash", hash)
	}
	return hash, nil
}

// IsDrifted reports whether the head configuration diverges from the last
// deployed one. Both checkpoints absent means no drift.
func (s Service) IsDrifted(ctx context.Context, serviceID string) (bool, error) {
	head, err := s.Value(ctx, serviceID, domain.ConfigKeyHeadHash)
	if err != nil {
		return false, err
	}
	deployed, err := s.Value(ctx, serviceID, domain.ConfigKeyDeployedHash)
	if err != nil {
		return false, err
	}
	headHash := ""
	if head != nil {
		headHash = *head
	}
	deployedHash := ""
	if deployed != nil {
		deployedHash = *deployed
	}
	if headHash == "" && deployedHash == "" {
		return false, nil
	}
	return headHash != deployedHash, nil
}

// ReconcileDeployed records the config hash of a successfully deployed
// version as the deployed checkpoint. Called by the deployment tracker when
// a deployment reaches SUCCESS, never at creation time.
func (s Service) ReconcileDeployed(ctx context.Context, serviceID, configHash string) error {
	if err := s.writeEntry(ctx, serviceID, domain.ConfigKeyDeployedHash, &configHash); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.OnMutation(cache.MutationDeploymentStatus, serviceID)
	}
	return nil
}

// SetVersionLabel records the service's current version label.
func (s Service) SetVersionLabel(ctx context.Context, serviceID, label string) error {
	return s.writeEntry(ctx, serviceID, domain.ConfigKeyVersion, &label)
}

// Ports parses the service's declared port list. An unset key yields an
// empty list.
func (s Service) Ports(ctx context.Context, serviceID string) ([]domain.PortMapping, error) {
	value, err := s.Value(ctx, serviceID, domain.ConfigKeyPorts)
	if err != nil {
		return nil, err
	}
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	return ParsePorts(*value)
}
