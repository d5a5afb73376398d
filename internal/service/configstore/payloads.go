package configstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shiplane/shiplane/internal/domain"
	"github.com/shiplane/shiplane/internal/repository"
)

// ParsePorts validates and parses the serialized "ports" payload. The shape
// is strict: unknown fields, non-TCP protocols, out-of-range or duplicate
// container ports are all rejected.
func ParsePorts(raw string) ([]domain.PortMapping, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	var ports []domain.PortMapping
	if err := decoder.Decode(&ports); err != nil {
		return nil, fmt.Errorf("%w: ports payload: %v", repository.ErrInvalidArgument, err)
	}
	seen := make(map[int]struct{}, len(ports))
	for _, port := range ports {
		if port.ContainerPort < 1 || port.ContainerPort > 65535 {
			return nil, fmt.Errorf("%w: container port %d out of range", repository.ErrInvalidArgument, port.ContainerPort)
		}
		if port.Protocol != "TCP" {
			return nil, fmt.Errorf("%w: unsupported protocol %q", repository.ErrInvalidArgument, port.Protocol)
		}
		if _, dup := seen[port.ContainerPort]; dup {
			return nil, fmt.Errorf("%w: duplicate container port %d", repository.ErrInvalidArgument, port.ContainerPort)
		}
		seen[port.ContainerPort] = struct{}{}
	}
	return ports, nil
}

// ParseDownstream validates and parses the "downstream_services" payload.
func ParseDownstream(raw string) ([]domain.DownstreamRef, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	var refs []domain.DownstreamRef
	if err := decoder.Decode(&refs); err != nil {
		return nil, fmt.Errorf("%w: downstream payload: %v", repository.ErrInvalidArgument, err)
	}
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref.ServiceID) == "" {
			return nil, fmt.Errorf("%w: downstream service id required", repository.ErrInvalidArgument)
		}
		if _, dup := seen[ref.ServiceID]; dup {
			return nil, fmt.Errorf("%w: duplicate downstream service %s", repository.ErrInvalidArgument, ref.ServiceID)
		}
		seen[ref.ServiceID] = struct{}{}
	}
	return refs, nil
}

// validateValue rejects malformed payloads for keys with structured values
// before anything reaches the store.
func validateValue(key string, value *string) error {
	if value == nil {
		return nil
	}
	switch key {
	case domain.ConfigKeyPorts:
		_, err := ParsePorts(*value)
		return err
	case domain.ConfigKeyDownstreamServices:
		_, err := ParseDownstream(*value)
		return err
	case domain.ConfigKeySourceType:
		if *value != domain.SourceTypeDocker && *value != domain.SourceTypeGit {
			return fmt.Errorf("%w: source type must be docker or git", repository.ErrInvalidArgument)
		}
	}
	return nil
}
