// Package diff compares spec snapshots section-by-section and key-by-key.
// Its result gates publishing and backs the version review screen.
package diff

import (
	"encoding/json"

	"github.com/shiplane/shiplane/internal/service/snapshot"
)

// SectionChanges flags changed keys within one section.
type SectionChanges struct {
	Keys   map[string]bool `json:"keys"`
	Master bool            `json:"master"`
}

// SectionDiff carries the raw serialized blobs for display alongside the
// change flags.
type SectionDiff struct {
	Previous json.RawMessage `json:"previous"`
	Current  json.RawMessage `json:"current"`
	Changed  SectionChanges  `json:"changed"`
}

// Overall aggregates the section masters.
type Overall struct {
	Master bool `json:"master"`
}

// Result is the full diff between a previous version snapshot and the
// current live snapshot.
type Result struct {
	Config                SectionDiff `json:"config"`
	Variables             SectionDiff `json:"variables"`
	Secrets               SectionDiff `json:"secrets"`
	Overall               Overall     `json:"overall"`
	MatchingVersionLabels []string    `json:"matchingVersionLabels"`
}

// Compare diffs the current snapshot against a previous one. A nil previous
// means no version exists yet: every current key counts as changed.
// Comparison covers user-meaningful fields only; internal bookkeeping keys
// never appear. Secrets are compared by value length, never plaintext.
func Compare(previous *snapshot.Full, current snapshot.Full) Result {
	prev := snapshot.Full{
		Config:    map[string]string{},
		Variables: map[string]string{},
		Secrets:   map[string]int{},
	}
	if previous != nil {
		prev = *previous
	}

	result := Result{
		Config:    diffStrings(prev.Config, current.Config),
		Variables: diffStrings(prev.Variables, current.Variables),
		Secrets:   diffLengths(prev.Secrets, current.Secrets),
	}
	result.Overall.Master = result.Config.Changed.Master ||
		result.Variables.Changed.Master ||
		result.Secrets.Changed.Master
	return result
}

func diffStrings(previous, current map[string]string) SectionDiff {
	keys := make(map[string]bool)
	for key := range previous {
		if snapshot.SystemKey(key) {
			continue
		}
		currentValue, ok := current[key]
		keys[key] = !ok || currentValue != previous[key]
	}
	for key := range current {
		if snapshot.SystemKey(key) {
			continue
		}
		if _, seen := keys[key]; seen {
			continue
		}
		// Present now, absent before.
		keys[key] = true
	}
	return buildSection(previous, current, keys)
}

func diffLengths(previous, current map[string]int) SectionDiff {
	keys := make(map[string]bool)
	for key, prevLen := range previous {
		currentLen, ok := current[key]
		keys[key] = !ok || currentLen != prevLen
	}
	for key := range current {
		if _, seen := keys[key]; seen {
			continue
		}
		keys[key] = true
	}
	return buildSection(previous, current, keys)
}

func buildSection(previous, current any, keys map[string]bool) SectionDiff {
	master := false
	for _, changed := range keys {
		if changed {
			master = true
			break
		}
	}
	prevRaw, _ := json.Marshal(previous)
	currentRaw, _ := json.Marshal(current)
	return SectionDiff{
		Previous: prevRaw,
		Current:  currentRaw,
		Changed:  SectionChanges{Keys: keys, Master: master},
	}
}
