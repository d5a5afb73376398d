package deploy

import (
	"testing"
	"time"

	"github.com/shiplane/shiplane/internal/domain"
)

func TestDeriveStepsSkippedWhenWorkflowNeverStarted(t *testing.T) {
	views := deriveSteps(false, nil)
	for _, view := range views {
		if view.Status != domain.StatusSkipped {
			t.Fatalf("step %s: expected SKIPPED, got %s", view.FunctionName, view.Status)
		}
	}
}

func TestDeriveStepsNotStartedWhenEngineReportsNothingYet(t *testing.T) {
	views := deriveSteps(true, nil)
	for _, view := range views {
		if view.Status != domain.StatusNotStarted {
			t.Fatalf("step %s: expected NOT_STARTED for enqueued workflow, got %s", view.FunctionName, view.Status)
		}
	}
}

func TestDeriveStepsNotStartedWhenWorkflowStarted(t *testing.T) {
	now := time.Now().UTC()
	views := deriveSteps(true, []domain.WorkflowStep{
		{FunctionName: "validate_service_config", Status: domain.StatusSuccess, StartedAt: &now, CompletedAt: &now},
	})
	if views[0].Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS for reported step, got %s", views[0].Status)
	}
	for _, view := range views[1:] {
		if view.Status != domain.StatusNotStarted {
			t.Fatalf("step %s: expected NOT_STARTED, got %s", view.FunctionName, view.Status)
		}
	}
}

func TestDeriveStepsMatchesCaseInsensitively(t *testing.T) {
	views := deriveSteps(true, []domain.WorkflowStep{
		{FunctionName: "Rollout_Version", Status: domain.StatusRunning},
	})
	for _, view := range views {
		if view.FunctionName == "rollout_version" {
			if view.Status != domain.StatusRunning {
				t.Fatalf("expected RUNNING, got %s", view.Status)
			}
			return
		}
	}
	t.Fatal("rollout_version step missing from canonical list")
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []domain.StepStatus
		want     domain.StepStatus
	}{
		{"error wins", []domain.StepStatus{domain.StatusSuccess, domain.StatusError, domain.StatusRunning}, domain.StatusError},
		{"running", []domain.StepStatus{domain.StatusSuccess, domain.StatusRunning}, domain.StatusRunning},
		{"pending", []domain.StepStatus{domain.StatusSuccess, domain.StatusPending}, domain.StatusPending},
		{"partial success is pending", []domain.StepStatus{domain.StatusSuccess, domain.StatusNotStarted}, domain.StatusPending},
		{"untouched", []domain.StepStatus{domain.StatusNotStarted, domain.StatusNotStarted}, domain.StatusNotStarted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			views := make([]StepView, len(tc.statuses))
			for i, status := range tc.statuses {
				views[i] = StepView{Status: status}
			}
			if got := aggregateStatus(views); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestAggregateStatusAllSuccess(t *testing.T) {
	views := make([]StepView, 3)
	for i := range views {
		views[i] = StepView{Status: domain.StatusSuccess}
	}
	if got := aggregateStatus(views); got != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", got)
	}
}

func TestSummarizeRunningDurationGrows(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	views := []StepView{
		{Status: domain.StatusSuccess, StartedAt: &started},
		{Status: domain.StatusRunning},
	}

	nowA := started.Add(30 * time.Second)
	nowB := started.Add(90 * time.Second)
	a := summarize(views, domain.StatusRunning, nowA)
	b := summarize(views, domain.StatusRunning, nowB)
	if a.Duration != 30*time.Second {
		t.Fatalf("expected 30s, got %s", a.Duration)
	}
	if b.Duration != 90*time.Second {
		t.Fatalf("expected live duration to grow, got %s", b.Duration)
	}
	if a.FinishedAt != nil {
		t.Fatal("running summary must not have a finish time")
	}
}

func TestSummarizeTerminalUsesMaxCompletion(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mid := started.Add(20 * time.Second)
	end := started.Add(45 * time.Second)
	views := []StepView{
		{Status: domain.StatusSuccess, StartedAt: &started, CompletedAt: &mid},
		{Status: domain.StatusSuccess, StartedAt: &mid, CompletedAt: &end},
	}
	summary := summarize(views, domain.StatusSuccess, end.Add(time.Hour))
	if summary.FinishedAt == nil || !summary.FinishedAt.Equal(end) {
		t.Fatalf("expected finish at %s, got %v", end, summary.FinishedAt)
	}
	if summary.Duration != 45*time.Second {
		t.Fatalf("expected 45s, got %s", summary.Duration)
	}
}

func TestSummarizeNoStartTimes(t *testing.T) {
	summary := summarize(deriveSteps(false, nil), domain.StatusNotStarted, time.Now())
	if summary.StartedAt != nil || summary.Duration != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}
