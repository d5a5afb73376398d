package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shiplane/shiplane/internal/cache"
	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
	"github.com/shiplane/shiplane/internal/service/configstore"
)

type fakeDeployRepo struct {
	mu          sync.Mutex
	deployments map[string]*domain.Deployment
	updateCalls int
}

func newFakeDeployRepo() *fakeDeployRepo {
	return &fakeDeployRepo{deployments: make(map[string]*domain.Deployment)}
}

func (f *fakeDeployRepo) CreateDeployment(_ context.Context, d *domain.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *d
	f.deployments[d.ID] = &copied
	return nil
}

func (f *fakeDeployRepo) GetDeploymentByID(_ context.Context, id string) (*domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (f *fakeDeployRepo) ListDeploymentsByService(_ context.Context, serviceID string, _ int) ([]domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Deployment
	for _, d := range f.deployments {
		if d.ServiceID == serviceID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDeployRepo) ListDeploymentsByTarget(_ context.Context, versionID, environmentID string) ([]domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Deployment
	for _, d := range f.deployments {
		if d.VersionID == versionID && d.EnvironmentID == environmentID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDeployRepo) UpdateDeploymentStatus(_ context.Context, update domain.DeploymentStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	d, ok := f.deployments[update.DeploymentID]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = update.Status
	if update.WorkflowID != nil {
		d.WorkflowID = update.WorkflowID
	}
	if update.CompletedAt != nil {
		d.CompletedAt = update.CompletedAt
	}
	return nil
}

type fakeVersionRepo struct {
	versions map[string]*domain.ServiceVersion
}

func (f *fakeVersionRepo) CreateVersion(_ context.Context, _ *domain.ServiceVersion) error {
	return nil
}

func (f *fakeVersionRepo) GetVersionByID(_ context.Context, id string) (*domain.ServiceVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeVersionRepo) ListVersionsByService(_ context.Context, _ string, _ int) ([]domain.ServiceVersion, error) {
	return nil, nil
}

type fakeCatalogRepo struct{}

func (fakeCatalogRepo) CreateProject(_ context.Context, _ *domain.Project) error { return nil }
func (fakeCatalogRepo) GetProjectByID(_ context.Context, _ string) (*domain.Project, error) {
	return nil, repository.ErrNotFound
}
func (fakeCatalogRepo) ListEnvironmentsByProject(_ context.Context, _ string) ([]domain.Environment, error) {
	return nil, nil
}
func (fakeCatalogRepo) GetEnvironmentByID(_ context.Context, id string) (*domain.Environment, error) {
	return &domain.Environment{ID: id, ProjectID: "proj-1", Slug: "prod", Name: "Production"}, nil
}
func (fakeCatalogRepo) CreateEnvironment(_ context.Context, _ *domain.Environment) error { return nil }
func (fakeCatalogRepo) CreateService(_ context.Context, _ *domain.Service) error         { return nil }
func (fakeCatalogRepo) GetServiceByID(_ context.Context, _ string) (*domain.Service, error) {
	return nil, repository.ErrNotFound
}
func (fakeCatalogRepo) ListServicesByProject(_ context.Context, _ string) ([]domain.Service, error) {
	return nil, nil
}

type fakeEngine struct {
	mu         sync.Mutex
	enqueueErr error
	workflowID string
	steps      []domain.WorkflowStep
	stepsErr   error
	stepsCalls int
}

func (f *fakeEngine) Enqueue(_ context.Context, _ EnqueueRequest) (string, error) {
	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}
	if f.workflowID == "" {
		return "wf-1", nil
	}
	return f.workflowID, nil
}

func (f *fakeEngine) Steps(_ context.Context, _ string) ([]domain.WorkflowStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepsCalls++
	if f.stepsErr != nil {
		return nil, f.stepsErr
	}
	out := make([]domain.WorkflowStep, len(f.steps))
	copy(out, f.steps)
	return out, nil
}

func (f *fakeEngine) setSteps(steps []domain.WorkflowStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = steps
}

type memConfigRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.ServiceConfigEntry
	seq     int
}

func (m *memConfigRepo) ListConfigEntries(_ context.Context, serviceID string) ([]domain.ServiceConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ServiceConfigEntry
	for _, e := range m.entries {
		if e.ServiceID == serviceID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memConfigRepo) GetConfigEntry(_ context.Context, serviceID, key string) (*domain.ServiceConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[serviceID+"/"+key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memConfigRepo) CreateConfigEntry(_ context.Context, entry *domain.ServiceConfigEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*domain.ServiceConfigEntry)
	}
	copied := *entry
	m.entries[entry.ServiceID+"/"+entry.Key] = &copied
	return nil
}

func (m *memConfigRepo) UpdateConfigEntry(_ context.Context, entryID string, value *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == entryID {
			e.Value = value
			return nil
		}
	}
	return repository.ErrNotFound
}

type emptyVariableRepo struct{}

func (emptyVariableRepo) ListVariables(_ context.Context, _ domain.VariableScope, _ string) ([]domain.Variable, error) {
	return nil, nil
}
func (emptyVariableRepo) GetVariable(_ context.Context, _ string) (*domain.Variable, error) {
	return nil, repository.ErrNotFound
}
func (emptyVariableRepo) CreateVariable(_ context.Context, _ *domain.Variable) error { return nil }
func (emptyVariableRepo) UpdateVariable(_ context.Context, _ *domain.Variable) error { return nil }
func (emptyVariableRepo) DeleteVariable(_ context.Context, _ string) error           { return nil }

type testEnv struct {
	deployments *fakeDeployRepo
	versions    *fakeVersionRepo
	engine      *fakeEngine
	configRepo  *memConfigRepo
	svc         Service
}

func newTestEnv() *testEnv {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	configRepo := &memConfigRepo{entries: make(map[string]*domain.ServiceConfigEntry)}
	configs := configstore.New(configRepo, emptyVariableRepo{}, cache.New(), log)
	env := &testEnv{
		deployments: newFakeDeployRepo(),
		versions: &fakeVersionRepo{versions: map[string]*domain.ServiceVersion{
			"ver-1": {ID: "ver-1", ServiceID: "svc-1", VersionLabel: "v1", ConfigHash: "hash-v1"},
		}},
		engine:     &fakeEngine{},
		configRepo: configRepo,
	}
	env.svc = New(env.deployments, env.versions, fakeCatalogRepo{}, configs, env.engine, cache.New(), nil, log)
	return env
}

func createDeployment(t *testing.T, env *testEnv, proceed bool) *domain.Deployment {
	t.Helper()
	deployment, err := env.svc.Create(context.Background(), CreateInput{
		ServiceID:     "svc-1",
		VersionID:     "ver-1",
		EnvironmentID: "env-1",
		Proceed:       proceed,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return deployment
}

func TestCreateFirstDeploymentHasSubversionZero(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	if deployment.SubversionIndex != 0 {
		t.Fatalf("expected subversion 0, got %d", deployment.SubversionIndex)
	}
	if deployment.Status != domain.StatusPending {
		t.Fatalf("expected PENDING after enqueue, got %s", deployment.Status)
	}
	if deployment.WorkflowID == nil || *deployment.WorkflowID != "wf-1" {
		t.Fatalf("expected workflow id wf-1, got %v", deployment.WorkflowID)
	}
}

func TestCreateDuplicateTargetRejectedWithoutProceed(t *testing.T) {
	env := newTestEnv()
	createDeployment(t, env, false)

	_, err := env.svc.Create(context.Background(), CreateInput{
		ServiceID:     "svc-1",
		VersionID:     "ver-1",
		EnvironmentID: "env-1",
	})
	if !errors.Is(err, ErrDuplicateTarget) {
		t.Fatalf("expected ErrDuplicateTarget, got %v", err)
	}
}

func TestCreateWithProceedIncrementsSubversion(t *testing.T) {
	env := newTestEnv()
	createDeployment(t, env, false)

	second := createDeployment(t, env, true)
	if second.SubversionIndex != 1 {
		t.Fatalf("expected subversion 1, got %d", second.SubversionIndex)
	}
	third := createDeployment(t, env, true)
	if third.SubversionIndex != 2 {
		t.Fatalf("expected subversion 2, got %d", third.SubversionIndex)
	}
}

func TestCreateDifferentEnvironmentIsIndependent(t *testing.T) {
	env := newTestEnv()
	createDeployment(t, env, false)

	other, err := env.svc.Create(context.Background(), CreateInput{
		ServiceID:     "svc-1",
		VersionID:     "ver-1",
		EnvironmentID: "env-2",
	})
	if err != nil {
		t.Fatalf("deploy to a different environment must not need proceed: %v", err)
	}
	if other.SubversionIndex != 0 {
		t.Fatalf("expected subversion 0 for a fresh pair, got %d", other.SubversionIndex)
	}
}

func TestCreateEnqueueFailureMarksError(t *testing.T) {
	env := newTestEnv()
	env.engine.enqueueErr = errors.New("engine unreachable")

	_, err := env.svc.Create(context.Background(), CreateInput{
		ServiceID:     "svc-1",
		VersionID:     "ver-1",
		EnvironmentID: "env-1",
	})
	if err == nil {
		t.Fatal("expected enqueue error to surface")
	}
	deployments, _ := env.deployments.ListDeploymentsByService(context.Background(), "svc-1", 0)
	if len(deployments) != 1 {
		t.Fatalf("expected the failed deployment to be recorded, got %d", len(deployments))
	}
	if deployments[0].Status != domain.StatusError {
		t.Fatalf("expected ERROR status, got %s", deployments[0].Status)
	}
	if deployments[0].CompletedAt == nil {
		t.Fatal("errored deployment must carry a completion time")
	}
}

func TestCreateRejectsVersionOfAnotherService(t *testing.T) {
	env := newTestEnv()
	env.versions.versions["ver-2"] = &domain.ServiceVersion{ID: "ver-2", ServiceID: "svc-other"}

	_, err := env.svc.Create(context.Background(), CreateInput{
		ServiceID:     "svc-1",
		VersionID:     "ver-2",
		EnvironmentID: "env-1",
	})
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func runningSteps(now time.Time) []domain.WorkflowStep {
	started := now.Add(-time.Minute)
	return []domain.WorkflowStep{
		{FunctionName: "VALIDATE_SERVICE_CONFIG", Status: domain.StatusSuccess, StartedAt: &started, CompletedAt: &now},
		{FunctionName: "provision_environment", Status: domain.StatusRunning, StartedAt: &now},
	}
}

func successSteps(now time.Time) []domain.WorkflowStep {
	started := now.Add(-time.Minute)
	steps := make([]domain.WorkflowStep, 0, len(deploySteps))
	for _, spec := range deploySteps {
		steps = append(steps, domain.WorkflowStep{
			FunctionName: spec.FunctionName,
			Status:       domain.StatusSuccess,
			StartedAt:    &started,
			CompletedAt:  &now,
		})
	}
	return steps
}

func TestPollStatusDerivesRunning(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	env.engine.setSteps(runningSteps(time.Now().UTC()))

	report, err := env.svc.PollStatus(context.Background(), deployment.ID)
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if report.Deployment.Status != domain.StatusRunning {
		t.Fatalf("expected RUNNING, got %s", report.Deployment.Status)
	}
	if len(report.Steps) != len(deploySteps) {
		t.Fatalf("expected %d canonical steps, got %d", len(deploySteps), len(report.Steps))
	}
	// Upper-cased function name from the engine still matches.
	if report.Steps[0].Status != domain.StatusSuccess {
		t.Fatalf("expected first step SUCCESS, got %s", report.Steps[0].Status)
	}
	if report.Steps[2].Status != domain.StatusNotStarted {
		t.Fatalf("unreported step of a started workflow must be NOT_STARTED, got %s", report.Steps[2].Status)
	}
}

func TestPollStatusSuccessReconcilesDeployedHash(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	env.engine.setSteps(successSteps(time.Now().UTC()))

	report, err := env.svc.PollStatus(context.Background(), deployment.ID)
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if report.Deployment.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", report.Deployment.Status)
	}
	if report.Deployment.CompletedAt == nil {
		t.Fatal("terminal deployment must carry completion time")
	}

	entry, err := env.configRepo.GetConfigEntry(context.Background(), "svc-1", domain.ConfigKeyDeployedHash)
	if err != nil {
		t.Fatalf("deployed hash lookup failed: %v", err)
	}
	if entry.Value == nil || *entry.Value != "hash-v1" {
		t.Fatalf("expected deployed hash hash-v1, got %v", entry.Value)
	}
}

func TestPollStatusTerminalIsIdempotent(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	env.engine.setSteps(successSteps(time.Now().UTC()))

	if _, err := env.svc.PollStatus(context.Background(), deployment.ID); err != nil {
		t.Fatalf("first poll failed: %v", err)
	}
	updatesAfterTerminal := env.deployments.updateCalls

	report, err := env.svc.PollStatus(context.Background(), deployment.ID)
	if err != nil {
		t.Fatalf("second poll failed: %v", err)
	}
	if report.Deployment.Status != domain.StatusSuccess {
		t.Fatalf("terminal status changed to %s", report.Deployment.Status)
	}
	if env.deployments.updateCalls != updatesAfterTerminal {
		t.Fatal("polling a terminal deployment must not write status updates")
	}
}

func TestPollStatusKeepsPendingBeforeEngineReports(t *testing.T) {
	env := newTestEnv()
	deployment := createDeployment(t, env, false)
	updatesAfterCreate := env.deployments.updateCalls

	// The engine has the workflow but has not reported any steps yet.
	report, err := env.svc.PollStatus(context.Background(), deployment.ID)
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	if report.Deployment.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", report.Deployment.Status)
	}
	for _, step := range report.Steps {
		if step.Status != domain.StatusNotStarted {
			t.Fatalf("step %s: expected NOT_STARTED for enqueued workflow, got %s", step.FunctionName, step.Status)
		}
	}
	if env.deployments.updateCalls != updatesAfterCreate {
		t.Fatal("an empty step report must not write a status update")
	}
}

func TestPollStatusWithoutWorkflowShowsSkipped(t *testing.T) {
	env := newTestEnv()
	deployment := &domain.Deployment{
		ID:        "dep-raw",
		ServiceID: "svc-1",
		VersionID: "ver-1",
		Status:    domain.StatusNotStarted,
	}
	if err := env.deployments.CreateDeployment(context.Background(), deployment); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	report, err := env.svc.PollStatus(context.Background(), "dep-raw")
	if err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}
	for _, step := range report.Steps {
		if step.Status != domain.StatusSkipped {
			t.Fatalf("expected SKIPPED for never-started workflow, got %s", step.Status)
		}
	}
	if env.engine.stepsCalls != 0 {
		t.Fatal("no workflow id means no engine call")
	}
}
