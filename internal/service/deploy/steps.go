package deploy

import (
	"strings"
	"time"

	"github.com/shiplane/shiplane/internal/domain"
)

// StepSpec describes one expected step of the deploy workflow. The list is
// fixed and ordered; the workflow engine reports progress against it.
type StepSpec struct {
	Label        string `json:"label"`
	FunctionName string `json:"functionName"`
	Description  string `json:"description"`
}

// deploySteps is the canonical ordered step list for a deployment.
var deploySteps = []StepSpec{
	{Label: "Validate", FunctionName: "validate_service_config", Description: "Validate the version's configuration and ports"},
	{Label: "Provision", FunctionName: "provision_environment", Description: "Prepare the target environment"},
	{Label: "Configure", FunctionName: "apply_environment_variables", Description: "Apply variables and secrets"},
	{Label: "Rollout", FunctionName: "rollout_version", Description: "Roll the version out to the environment"},
	{Label: "Verify", FunctionName: "verify_health", Description: "Verify the rollout is healthy"},
	{Label: "Route", FunctionName: "update_routing", Description: "Switch traffic to the new rollout"},
}

// StepView is one canonical step joined with whatever the workflow engine
// reported for it.
type StepView struct {
	StepSpec
	Status      domain.StepStatus `json:"status"`
	Output      *string           `json:"output,omitempty"`
	Error       *string           `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// Summary aggregates step timing for display. While any step is still
// running the end time is "now", so the duration grows live.
type Summary struct {
	Status     domain.StepStatus `json:"status"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// deriveSteps joins reported workflow steps onto the canonical list.
// Matching is by case-insensitive function name. A canonical step the
// workflow has not reported yet renders NOT_STARTED whenever a workflow
// exists, even before the engine has reported anything. SKIPPED is reserved
// for deployments with no workflow recorded at all.
func deriveSteps(hasWorkflow bool, reported []domain.WorkflowStep) []StepView {
	byName := make(map[string]domain.WorkflowStep, len(reported))
	for _, step := range reported {
		byName[strings.ToLower(step.FunctionName)] = step
	}

	views := make([]StepView, 0, len(deploySteps))
	for _, spec := range deploySteps {
		view := StepView{StepSpec: spec, Status: domain.StatusNotStarted}
		if !hasWorkflow {
			view.Status = domain.StatusSkipped
		}
		if step, ok := byName[strings.ToLower(spec.FunctionName)]; ok {
			view.Status = step.Status
			view.Output = step.Output
			view.Error = step.Error
			view.StartedAt = step.StartedAt
			view.CompletedAt = step.CompletedAt
		}
		views = append(views, view)
	}
	return views
}

// aggregateStatus folds step statuses into one deployment status.
func aggregateStatus(views []StepView) domain.StepStatus {
	sawSuccess := 0
	sawReported := 0
	running := false
	pending := false
	for _, view := range views {
		switch view.Status {
		case domain.StatusError:
			return domain.StatusError
		case domain.StatusSuccess:
			sawSuccess++
			sawReported++
		case domain.StatusRunning:
			running = true
			sawReported++
		case domain.StatusPending:
			pending = true
			sawReported++
		}
	}
	if sawSuccess == len(views) && len(views) > 0 {
		return domain.StatusSuccess
	}
	if running {
		return domain.StatusRunning
	}
	if pending || sawReported > 0 {
		return domain.StatusPending
	}
	return domain.StatusNotStarted
}

// summarize computes start, end and duration across the derived steps.
func summarize(views []StepView, status domain.StepStatus, now time.Time) Summary {
	summary := Summary{Status: status}
	for _, view := range views {
		if view.StartedAt != nil && (summary.StartedAt == nil || view.StartedAt.Before(*summary.StartedAt)) {
			start := *view.StartedAt
			summary.StartedAt = &start
		}
	}
	if summary.StartedAt == nil {
		return summary
	}
	if status.Terminal() {
		for _, view := range views {
			if view.CompletedAt != nil && (summary.FinishedAt == nil || view.CompletedAt.After(*summary.FinishedAt)) {
				end := *view.CompletedAt
				summary.FinishedAt = &end
			}
		}
	}
	end := now
	if summary.FinishedAt != nil {
		end = *summary.FinishedAt
	}
	summary.Duration = end.Sub(*summary.StartedAt)
	return summary
}

// Steps exposes the canonical step list, e.g. for rendering an empty
// deployment timeline.
func Steps() []StepSpec {
	out := make([]StepSpec, len(deploySteps))
	copy(out, deploySteps)
	return out
}
