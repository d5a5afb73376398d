package domain

import "time"

// VariableScope identifies which resource a variable or secret belongs to.
type VariableScope string

const (
	ScopeProject     VariableScope = "project"
	ScopeEnvironment VariableScope = "environment"
	ScopeService     VariableScope = "service"
)

// Valid reports whether the scope is one of the known values.
func (s VariableScope) Valid() bool {
	switch s {
	case ScopeProject, ScopeEnvironment, ScopeService:
		return true
	}
	return false
}

// Variable is a key/value pair scoped to a project, environment or service.
// For secrets the plaintext is write-only: after creation only ValueLength is
// retained for display and for drift/diff comparison.
type Variable struct {
	ID          string
	Scope       VariableScope
	ResourceID  string
	Key         string
	Value       string
	Secret      bool
	ValueLength int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
