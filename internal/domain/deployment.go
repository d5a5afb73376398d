package domain

import (
	"fmt"
	"strings"
	"time"
)

// StepStatus is the closed set of workflow step and deployment states.
// Unknown wire values are rejected at the boundary, never defaulted.
type StepStatus string

const (
	StatusNotStarted StepStatus = "NOT_STARTED"
	StatusPending    StepStatus = "PENDING"
	StatusRunning    StepStatus = "RUNNING"
	StatusSuccess    StepStatus = "SUCCESS"
	StatusError      StepStatus = "ERROR"
	// StatusSkipped is derived locally for canonical steps of a workflow that
	// never started; it is not a valid wire value.
	StatusSkipped StepStatus = "SKIPPED"
)

// ParseStepStatus normalizes a wire status string. Matching is
// case-insensitive and common aliases map onto the canonical set.
func ParseStepStatus(raw string) (StepStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NOT_STARTED":
		return StatusNotStarted, nil
	case "PENDING", "QUEUED":
		return StatusPending, nil
	case "RUNNING":
		return StatusRunning, nil
	case "SUCCESS", "SUCCEEDED":
		return StatusSuccess, nil
	case "ERROR", "FAILED", "FAILURE":
		return StatusError, nil
	}
	return "", fmt.Errorf("unknown step status %q", raw)
}

// Terminal reports whether the status can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// StepDisplay holds presentation attributes for a step status.
type StepDisplay struct {
	Label string
	Icon  string
	Color string
}

// Display returns presentation attributes. The mapping is total over the
// closed status set.
func (s StepStatus) Display() StepDisplay {
	switch s {
	case StatusPending:
		return StepDisplay{Label: "Pending", Icon: "clock", Color: "yellow"}
	case StatusRunning:
		return StepDisplay{Label: "Running", Icon: "spinner", Color: "blue"}
	case StatusSuccess:
		return StepDisplay{Label: "Succeeded", Icon: "check", Color: "green"}
	case StatusError:
		return StepDisplay{Label: "Failed", Icon: "cross", Color: "red"}
	case StatusSkipped:
		return StepDisplay{Label: "Skipped", Icon: "dash", Color: "gray"}
	default:
		return StepDisplay{Label: "Not started", Icon: "circle", Color: "gray"}
	}
}

// Deployment is one attempt to realize a ServiceVersion in an Environment,
// tracked through an asynchronous multi-step workflow. SubversionIndex is 0
// for the first deployment of a (versionID, environmentID) pair and
// increments on explicit redeploy-with-override; it never decreases.
type Deployment struct {
	ID                  string
	ServiceID           string
	VersionID           string
	EnvironmentID       string
	WorkflowID          *string
	Status              StepStatus
	SubversionIndex     int
	DownstreamOverrides []DownstreamOverride
	CreatedAt           time.Time
	CompletedAt         *time.Time
	UpdatedAt           time.Time
}

// DeploymentStatusUpdate captures mutable fields for a deployment.
type DeploymentStatusUpdate struct {
	DeploymentID string
	Status       StepStatus
	WorkflowID   *string
	CompletedAt  *time.Time
}

// WorkflowStep is one step of a deployment workflow as reported by the
// workflow engine. Steps are derived from polling and never persisted.
type WorkflowStep struct {
	FunctionID   string
	FunctionName string
	Status       StepStatus
	Output       *string
	Error        *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
