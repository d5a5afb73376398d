package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProjectRepository    = (*Repository)(nil)
	_ repository.ConfigRepository     = (*Repository)(nil)
	_ repository.VariableRepository   = (*Repository)(nil)
	_ repository.VersionRepository    = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
)

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, slug, name, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, project.ID, project.Slug, project.Name, project.OwnerID, project.CreatedAt, project.UpdatedAt)
	return mapPgError(err)
}

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	const query = `SELECT id, slug, name, owner_id, created_at, updated_at FROM projects WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, projectID)
	var project domain.Project
	if err := row.Scan(&project.ID, &project.Slug, &project.Name, &project.OwnerID, &project.CreatedAt, &project.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// ListEnvironmentsByProject returns environments ordered by position.
func (r *Repository) ListEnvironmentsByProject(ctx context.Context, projectID string) ([]domain.Environment, error) {
	const query = `SELECT id, project_id, slug, name, environment_type, protected, position, created_at, updated_at
		FROM environments WHERE project_id = $1 ORDER BY position ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envs := make([]domain.Environment, 0)
	for rows.Next() {
		var env domain.Environment
		if err := rows.Scan(
			&env.ID,
			&env.ProjectID,
			&env.Slug,
			&env.Name,
			&env.EnvironmentType,
			&env.Protected,
			&env.Position,
			&env.CreatedAt,
			&env.UpdatedAt,
		); err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

// GetEnvironmentByID loads a single environment.
func (r *Repository) GetEnvironmentByID(ctx context.Context, environmentID string) (*domain.Environment, error) {
	const query = `SELECT id, project_id, slug, name, environment_type, protected, position, created_at, updated_at
		FROM environments WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, environmentID)
	var env domain.Environment
	if err := row.Scan(
		&env.ID,
		&env.ProjectID,
		&env.Slug,
		&env.Name,
		&env.EnvironmentType,
		&env.Protected,
		&env.Position,
		&env.CreatedAt,
		&env.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &env, nil
}

// CreateEnvironment inserts a new environment record.
func (r *Repository) CreateEnvironment(ctx context.Context, environment *domain.Environment) error {
	const query = `INSERT INTO environments (id, project_id, slug, name, environment_type, protected, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		environment.ID,
		environment.ProjectID,
		environment.Slug,
		environment.Name,
		environment.EnvironmentType,
		environment.Protected,
		environment.Position,
		environment.CreatedAt,
		environment.UpdatedAt,
	)
	return mapPgError(err)
}

// CreateService inserts a service.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service) error {
	const query = `INSERT INTO services (id, project_id, slug, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, service.ID, service.ProjectID, service.Slug, service.Name, service.CreatedAt, service.UpdatedAt)
	return mapPgError(err)
}

// GetServiceByID fetches a service by identifier.
func (r *Repository) GetServiceByID(ctx context.Context, serviceID string) (*domain.Service, error) {
	const query = `SELECT id, project_id, slug, name, created_at, updated_at FROM services WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, serviceID)
	var service domain.Service
	if err := row.Scan(&service.ID, &service.ProjectID, &service.Slug, &service.Name, &service.CreatedAt, &service.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &service, nil
}

// ListServicesByProject returns services for the provided project.
func (r *Repository) ListServicesByProject(ctx context.Context, projectID string) ([]domain.Service, error) {
	const query = `SELECT id, project_id, slug, name, created_at, updated_at
		FROM services WHERE project_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		var service domain.Service
		if err := rows.Scan(&service.ID, &service.ProjectID, &service.Slug, &service.Name, &service.CreatedAt, &service.UpdatedAt); err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	return services, rows.Err()
}

// ListConfigEntries returns all configuration entries for a service ordered by key.
func (r *Repository) ListConfigEntries(ctx context.Context, serviceID string) ([]domain.ServiceConfigEntry, error) {
	const query = `SELECT id, service_id, key, value, created_at, updated_at
		FROM service_config_entries WHERE service_id = $1 ORDER BY key ASC`
	rows, err := r.pool.Query(ctx, query, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ServiceConfigEntry, 0)
	for rows.Next() {
		var (
			entry domain.ServiceConfigEntry
			value sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.ServiceID, &entry.Key, &value, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		if value.Valid {
			v := value.String
			entry.Value = &v
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetConfigEntry fetches a single configuration entry by service and key.
func (r *Repository) GetConfigEntry(ctx context.Context, serviceID, key string) (*domain.ServiceConfigEntry, error) {
	const query = `SELECT id, service_id, key, value, created_at, updated_at
		FROM service_config_entries WHERE service_id = $1 AND key = $2`
	row := r.pool.QueryRow(ctx, query, serviceID, key)
	var (
		entry domain.ServiceConfigEntry
		value sql.NullString
	)
	if err := row.Scan(&entry.ID, &entry.ServiceID, &entry.Key, &value, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if value.Valid {
		v := value.String
		entry.Value = &v
	}
	return &entry, nil
}

// CreateConfigEntry inserts a configuration entry. The unique index on
// (service_id, key) surfaces concurrent creates as ErrConflict.
func (r *Repository) CreateConfigEntry(ctx context.Context, entry *domain.ServiceConfigEntry) error {
	const query = `INSERT INTO service_config_entries (id, service_id, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.ServiceID,
		entry.Key,
		stringPtrToNil(entry.Value),
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	return mapPgError(err)
}

// UpdateConfigEntry replaces the value of an existing entry.
func (r *Repository) UpdateConfigEntry(ctx context.Context, entryID string, value *string) error {
	const query = `UPDATE service_config_entries SET value = $2, updated_at = NOW() WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, entryID, stringPtrToNil(value))
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListVariables returns variables for a scoped resource ordered by key.
func (r *Repository) ListVariables(ctx context.Context, scope domain.VariableScope, resourceID string) ([]domain.Variable, error) {
	const query = `SELECT id, scope, resource_id, key, value, secret, value_length, created_at, updated_at
		FROM variables WHERE scope = $1 AND resource_id = $2 ORDER BY key ASC`
	rows, err := r.pool.Query(ctx, query, string(scope), resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vars := make([]domain.Variable, 0)
	for rows.Next() {
		var variable domain.Variable
		if err := rows.Scan(
			&variable.ID,
			&variable.Scope,
			&variable.ResourceID,
			&variable.Key,
			&variable.Value,
			&variable.Secret,
			&variable.ValueLength,
			&variable.CreatedAt,
			&variable.UpdatedAt,
		); err != nil {
			return nil, err
		}
		vars = append(vars, variable)
	}
	return vars, rows.Err()
}

// GetVariable fetches a variable by identifier.
func (r *Repository) GetVariable(ctx context.Context, variableID string) (*domain.Variable, error) {
	const query = `SELECT id, scope, resource_id, key, value, secret, value_length, created_at, updated_at
		FROM variables WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, variableID)
	var variable domain.Variable
	if err := row.Scan(
		&variable.ID,
		&variable.Scope,
		&variable.ResourceID,
		&variable.Key,
		&variable.Value,
		&variable.Secret,
		&variable.ValueLength,
		&variable.CreatedAt,
		&variable.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &variable, nil
}

// CreateVariable inserts a variable.
func (r *Repository) CreateVariable(ctx context.Context, variable *domain.Variable) error {
	const query = `INSERT INTO variables (id, scope, resource_id, key, value, secret, value_length, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		variable.ID,
		string(variable.Scope),
		variable.ResourceID,
		variable.Key,
		variable.Value,
		variable.Secret,
		variable.ValueLength,
		variable.CreatedAt,
		variable.UpdatedAt,
	)
	return mapPgError(err)
}

// UpdateVariable replaces the stored value and metadata of a variable.
func (r *Repository) UpdateVariable(ctx context.Context, variable *domain.Variable) error {
	const query = `UPDATE variables
		SET value = $2, secret = $3, value_length = $4, updated_at = NOW()
		WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, variable.ID, variable.Value, variable.Secret, variable.ValueLength)
	if err != nil {
		return mapPgError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteVariable removes a variable.
func (r *Repository) DeleteVariable(ctx context.Context, variableID string) error {
	const query = `DELETE FROM variables WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, variableID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateVersion inserts an immutable version snapshot. The unique index on
// (service_id, version_label) guards concurrent publishes.
func (r *Repository) CreateVersion(ctx context.Context, version *domain.ServiceVersion) error {
	const query = `INSERT INTO service_versions (id, service_id, version_label, config_hash, spec_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		version.ID,
		version.ServiceID,
		version.VersionLabel,
		version.ConfigHash,
		version.SpecJSON,
		version.CreatedAt,
	)
	return mapPgError(err)
}

// GetVersionByID fetches a version snapshot.
func (r *Repository) GetVersionByID(ctx context.Context, versionID string) (*domain.ServiceVersion, error) {
	const query = `SELECT id, service_id, version_label, config_hash, spec_json, created_at
		FROM service_versions WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, versionID)
	var version domain.ServiceVersion
	if err := row.Scan(
		&version.ID,
		&version.ServiceID,
		&version.VersionLabel,
		&version.ConfigHash,
		&version.SpecJSON,
		&version.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &version, nil
}

// ListVersionsByService returns the most recent versions for a service.
func (r *Repository) ListVersionsByService(ctx context.Context, serviceID string, limit int) ([]domain.ServiceVersion, error) {
	const query = `SELECT id, service_id, version_label, config_hash, spec_json, created_at
		FROM service_versions WHERE service_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, serviceID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]domain.ServiceVersion, 0)
	for rows.Next() {
		var version domain.ServiceVersion
		if err := rows.Scan(
			&version.ID,
			&version.ServiceID,
			&version.VersionLabel,
			&version.ConfigHash,
			&version.SpecJSON,
			&version.CreatedAt,
		); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// CreateDeployment inserts a deployment record.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	overrides, err := json.Marshal(deployment.DownstreamOverrides)
	if err != nil {
		return err
	}
	const query = `INSERT INTO deployments (id, service_id, version_id, environment_id, workflow_id, status, subversion_index, downstream_overrides, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.pool.Exec(ctx, query,
		deployment.ID,
		deployment.ServiceID,
		deployment.VersionID,
		deployment.EnvironmentID,
		stringPtrToNil(deployment.WorkflowID),
		string(deployment.Status),
		deployment.SubversionIndex,
		overrides,
		deployment.CreatedAt,
		deployment.CompletedAt,
		deployment.UpdatedAt,
	)
	return mapPgError(err)
}

// GetDeploymentByID fetches a deployment by identifier.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	const query = `SELECT id, service_id, version_id, environment_id, workflow_id, status, subversion_index, downstream_overrides, created_at, completed_at, updated_at
		FROM deployments WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, deploymentID)
	deployment, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return deployment, nil
}

// ListDeploymentsByService fetches recent deployments for a service.
func (r *Repository) ListDeploymentsByService(ctx context.Context, serviceID string, limit int) ([]domain.Deployment, error) {
	const query = `SELECT id, service_id, version_id, environment_id, workflow_id, status, subversion_index, downstream_overrides, created_at, completed_at, updated_at
		FROM deployments WHERE service_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, serviceID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		deployment, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *deployment)
	}
	return deployments, rows.Err()
}

// ListDeploymentsByTarget fetches every deployment of a version into an
// environment, newest subversion first.
func (r *Repository) ListDeploymentsByTarget(ctx context.Context, versionID, environmentID string) ([]domain.Deployment, error) {
	const query = `SELECT id, service_id, version_id, environment_id, workflow_id, status, subversion_index, downstream_overrides, created_at, completed_at, updated_at
		FROM deployments WHERE version_id = $1 AND environment_id = $2 ORDER BY subversion_index DESC`
	rows, err := r.pool.Query(ctx, query, versionID, environmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		deployment, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *deployment)
	}
	return deployments, rows.Err()
}

// UpdateDeploymentStatus updates deployment status.
func (r *Repository) UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error {
	const query = `UPDATE deployments
		SET status = $2,
			workflow_id = COALESCE($3, workflow_id),
			completed_at = COALESCE($4, completed_at),
			updated_at = NOW()
		WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query,
		update.DeploymentID,
		string(update.Status),
		stringPtrToNil(update.WorkflowID),
		update.CompletedAt,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (*domain.Deployment, error) {
	var (
		deployment  domain.Deployment
		workflowID  sql.NullString
		status      string
		overrides   []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&deployment.ID,
		&deployment.ServiceID,
		&deployment.VersionID,
		&deployment.EnvironmentID,
		&workflowID,
		&status,
		&deployment.SubversionIndex,
		&overrides,
		&deployment.CreatedAt,
		&completedAt,
		&deployment.UpdatedAt,
	); err != nil {
		return nil, err
	}
	deployment.Status = domain.StepStatus(status)
	if workflowID.Valid {
		value := workflowID.String
		deployment.WorkflowID = &value
	}
	if completedAt.Valid {
		value := completedAt.Time
		deployment.CompletedAt = &value
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &deployment.DownstreamOverrides); err != nil {
			return nil, err
		}
	}
	return &deployment, nil
}

func stringPtrToNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as
// LIMIT ALL. Callers pass 0 to mean unbounded.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrConflict
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}
