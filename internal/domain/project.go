package domain

import "time"

// Project groups services and environments.
type Project struct {
	ID        string
	Slug      string
	Name      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Environment represents a deployment context such as dev/staging/prod.
// Environments own no deployment history; deployments only reference them.
type Environment struct {
	ID              string
	ProjectID       string
	Slug            string
	Name            string
	EnvironmentType string
	Protected       bool
	Position        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
