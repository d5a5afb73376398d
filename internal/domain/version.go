package domain

import "time"

// ServiceVersion is an immutable, labeled snapshot of a service's full spec,
// created only by an explicit publish. SpecJSON is frozen at publish time and
// used afterwards purely for historical diffing and display.
type ServiceVersion struct {
	ID           string
	ServiceID    string
	VersionLabel string
	ConfigHash   string
	SpecJSON     []byte
	CreatedAt    time.Time
}
