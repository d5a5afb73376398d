// Package variables manages scoped environment variables and secrets.
// Secret plaintext is write-only: every read path redacts the value and
// exposes only its length.
package variables

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shiplane/shiplane/internal/cache"
	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
	"github.com/shiplane/shiplane/internal/service/configstore"
)

var (
	errKeyRequired      = fmt.Errorf("%w: variable key required", repository.ErrInvalidArgument)
	errScopeInvalid     = fmt.Errorf("%w: unknown variable scope", repository.ErrInvalidArgument)
	errResourceRequired = fmt.Errorf("%w: resource id required", repository.ErrInvalidArgument)
)

// Service coordinates variable and secret writes with drift bookkeeping.
type Service struct {
	variables repository.VariableRepository
	configs   configstore.Service
	cache     *cache.Service
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a variables service.
func New(variables repository.VariableRepository, configs configstore.Service, cacheSvc *cache.Service, logger *slog.Logger) Service {
	if logger != nil {
		logger = logger.With("component", "variables")
	}
	return Service{
		variables: variables,
		configs:   configs,
		cache:     cacheSvc,
		logger:    logger,
		now:       time.Now,
	}
}

// WriteInput captures a variable or secret create/update request.
type WriteInput struct {
	Scope      domain.VariableScope
	ResourceID string
	Key        string
	Value      string
	Secret     bool
}

// List returns the variables of one scope with secrets redacted, sorted by
// key for stable display.
func (s Service) List(ctx context.Context, scope domain.VariableScope, resourceID string) ([]domain.Variable, error) {
	if !scope.Valid() {
		return nil, errScopeInvalid
	}
	vars, err := s.variables.ListVariables(ctx, scope, resourceID)
	if err != nil {
		return nil, err
	}
	for i := range vars {
		if vars[i].Secret {
			vars[i].Value = ""
		}
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Key < vars[j].Key })
	return vars, nil
}

// Create adds a variable or secret. Keys are unique per (scope, resourceId).
func (s Service) Create(ctx context.Context, input WriteInput) (*domain.Variable, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	variable := &domain.Variable{
		ID:          uuid.NewString(),
		Scope:       input.Scope,
		ResourceID:  input.ResourceID,
		Key:         strings.TrimSpace(input.Key),
		Value:       input.Value,
		Secret:      input.Secret,
		ValueLength: len(input.Value),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.variables.CreateVariable(ctx, variable); err != nil {
		return nil, err
	}
	if err := s.afterWrite(ctx, input.Scope, input.ResourceID); err != nil {
		return nil, err
	}
	out := *variable
	if out.Secret {
		out.Value = ""
	}
	return &out, nil
}

// Update replaces a variable's value. For secrets the stored length is
// refreshed along with the plaintext.
func (s Service) Update(ctx context.Context, variableID, value string) (*domain.Variable, error) {
	existing, err := s.variables.GetVariable(ctx, variableID)
	if err != nil {
		return nil, err
	}
	existing.Value = value
	existing.ValueLength = len(value)
	existing.UpdatedAt = s.now().UTC()
	if err := s.variables.UpdateVariable(ctx, existing); err != nil {
		return nil, err
	}
	if err := s.afterWrite(ctx, existing.Scope, existing.ResourceID); err != nil {
		return nil, err
	}
	out := *existing
	if out.Secret {
		out.Value = ""
	}
	return &out, nil
}

// Delete removes a variable or secret.
func (s Service) Delete(ctx context.Context, variableID string) error {
	existing, err := s.variables.GetVariable(ctx, variableID)
	if err != nil {
		return err
	}
	if err := s.variables.DeleteVariable(ctx, variableID); err != nil {
		return err
	}
	return s.afterWrite(ctx, existing.Scope, existing.ResourceID)
}

// afterWrite keeps drift detection fresh: service-scoped mutations recompute
// the head hash immediately, and the mutation's cache contract is applied.
func (s Service) afterWrite(ctx context.Context, scope domain.VariableScope, resourceID string) error {
	if s.cache != nil {
		s.cache.OnMutation(cache.MutationWriteVariable, resourceID)
	}
	if scope != domain.ScopeService {
		return nil
	}
	if _, err := s.configs.RecomputeHead(ctx, resourceID); err != nil {
		return err
	}
	return nil
}

func validateInput(input WriteInput) error {
	if !input.Scope.Valid() {
		return errScopeInvalid
	}
	if strings.TrimSpace(input.ResourceID) == "" {
		return errResourceRequired
	}
	if strings.TrimSpace(input.Key) == "" {
		return errKeyRequired
	}
	return nil
}
