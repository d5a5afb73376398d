// Package snapshot builds deterministic serializations of a service's
// desired configuration. The canonical form is the hash input used for
// drift detection; the full snapshot is the frozen copy stored on a
// published version.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/shiplane/shiplane/internal/domain"
)

// GitSource describes a git-backed service source.
type GitSource struct {
	Type string `json:"type"`
	Org  string `json:"org"`
	Repo string `json:"repo"`
}

// EnvVar is a key/value pair inside a canonical spec.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SecretMeta carries the only secret attributes that ever leave the store.
type SecretMeta struct {
	Key         string `json:"key"`
	ValueLength int    `json:"valueLength"`
}

// Spec is the ordered canonical object. Field order is load-bearing:
// encoding/json emits struct fields in declaration order, so identical
// logical configurations always serialize identically.
type Spec struct {
	SourceType  string       `json:"sourceType"`
	DockerImage string       `json:"dockerImage"`
	Git         *GitSource   `json:"git"`
	EnvVars     []EnvVar     `json:"envVars"`
	Secrets     []SecretMeta `json:"secrets"`
}

// Build assembles a canonical Spec from config entries and service-scoped
// variables. Insertion order of the inputs does not matter; env vars and
// secrets are sorted ascending by key.
func Build(entries []domain.ServiceConfigEntry, variables []domain.Variable) Spec {
	values := configValues(entries)

	spec := Spec{SourceType: values[domain.ConfigKeySourceType]}
	switch spec.SourceType {
	case domain.SourceTypeDocker:
		spec.DockerImage = values[domain.ConfigKeyDockerImage]
	case domain.SourceTypeGit:
		spec.Git = &GitSource{
			Type: values[domain.ConfigKeyGitType],
			Org:  values[domain.ConfigKeyGitOrg],
			Repo: values[domain.ConfigKeyGitRepo],
		}
	}

	spec.EnvVars = make([]EnvVar, 0)
	spec.Secrets = make([]SecretMeta, 0)
	for _, v := range variables {
		if v.Secret {
			spec.Secrets = append(spec.Secrets, SecretMeta{Key: v.Key, ValueLength: v.ValueLength})
			continue
		}
		spec.EnvVars = append(spec.EnvVars, EnvVar{Key: v.Key, Value: v.Value})
	}
	sort.Slice(spec.EnvVars, func(i, j int) bool { return spec.EnvVars[i].Key < spec.EnvVars[j].Key })
	sort.Slice(spec.Secrets, func(i, j int) bool { return spec.Secrets[i].Key < spec.Secrets[j].Key })
	return spec
}

// Canonical serializes the Spec deterministically.
func (s Spec) Canonical() string {
	payload, err := json.Marshal(s)
	if err != nil {
		// Spec contains only marshalable fields; keep the signature pure.
		panic(err)
	}
	return string(payload)
}

// Hash returns the hex SHA-256 digest of a canonical string. This is a drift
// fingerprint, not a security boundary.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// systemKeys are config entries excluded from snapshots and diffs: they are
// bookkeeping, not user-meaningful configuration.
var systemKeys = map[string]struct{}{
	domain.ConfigKeyHeadHash:     {},
	domain.ConfigKeyDeployedHash: {},
	domain.ConfigKeyVersion:      {},
}

// SystemKey reports whether a config key is internal bookkeeping.
func SystemKey(key string) bool {
	_, ok := systemKeys[key]
	return ok
}

// Full is the complete spec frozen onto a published version: service
// identity plus user-meaningful config, variables and secret metadata.
// Maps marshal with sorted keys, so the serialized form is deterministic.
type Full struct {
	ServiceID   string            `json:"serviceId"`
	ServiceName string            `json:"serviceName"`
	Config      map[string]string `json:"config"`
	Variables   map[string]string `json:"variables"`
	Secrets     map[string]int    `json:"secrets"`
}

// BuildFull assembles the full snapshot for a service.
func BuildFull(service domain.Service, entries []domain.ServiceConfigEntry, variables []domain.Variable) Full {
	full := Full{
		ServiceID:   service.ID,
		ServiceName: service.Name,
		Config:      make(map[string]string),
		Variables:   make(map[string]string),
		Secrets:     make(map[string]int),
	}
	for _, entry := range entries {
		if entry.Value == nil || SystemKey(entry.Key) {
			continue
		}
		full.Config[entry.Key] = *entry.Value
	}
	for _, v := range variables {
		if v.Secret {
			full.Secrets[v.Key] = v.ValueLength
			continue
		}
		full.Variables[v.Key] = v.Value
	}
	return full
}

// Encode serializes the full snapshot for storage in a version record.
func (f Full) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFull parses a stored version snapshot.
func DecodeFull(raw []byte) (Full, error) {
	var full Full
	if err := json.Unmarshal(raw, &full); err != nil {
		return Full{}, err
	}
	if full.Config == nil {
		full.Config = make(map[string]string)
	}
	if full.Variables == nil {
		full.Variables = make(map[string]string)
	}
	if full.Secrets == nil {
		full.Secrets = make(map[string]int)
	}
	return full, nil
}

func configValues(entries []domain.ServiceConfigEntry) map[string]string {
	values := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.Value == nil {
			continue
		}
		values[entry.Key] = *entry.Value
	}
	return values
}
