// Package migrate upgrades versioned on-disk documents step by step.
// config.toml and the JSON key/value store each have a [Schema] with its
// own version line.
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Step rewrites a document from the previous version to Version.
type Step struct {
	Version     int
	Description string
	Apply       func(doc []byte) ([]byte, error)
}

// Schema is the version line of one document kind.
type Schema struct {
	// Name labels the document in logs and errors ("config", "store").
	Name string
	// Current is the version written by this build.
	Current int
	// Steps are kept sorted by Version.
	Steps []Step
}

// Config is the schema of config.toml. Version 2 replaced bare threshold
// values with {value, enabled} tables.
var Config = &Schema{Name: "config", Current: 2}

// Store is the schema of store.json.
var Store = &Schema{Name: "store", Current: 1}

// Register adds a step. Registering the same version twice panics.
func (s *Schema) Register(step Step) {
	i, found := slices.BinarySearchFunc(s.Steps, step.Version, func(st Step, v int) int {
		return cmp.Compare(st.Version, v)
	})
	if found {
		panic(fmt.Sprintf("migrate: %s already has a step to v%d (%q)", s.Name, step.Version, s.Steps[i].Description))
	}
	s.Steps = slices.Insert(s.Steps, i, step)
}

// Pending returns the steps a document at version still has to go through.
func (s *Schema) Pending(version int) []Step {
	var out []Step
	for _, st := range s.Steps {
		if st.Version > version {
			out = append(out, st)
		}
	}
	return out
}

// Outdated reports whether a document at version is older than Current.
// Documents from a newer build are not outdated; callers decide how to
// treat them.
func (s *Schema) Outdated(version int) bool {
	return version < s.Current
}

// Upgrade applies every pending step in order. It returns the rewritten
// document and the version it reached; on failure the version is the last
// one that succeeded and the document is nil.
func (s *Schema) Upgrade(doc []byte, from int) ([]byte, int, error) {
	version := from
	for _, st := range s.Pending(from) {
		slog.Info("upgrading document", "schema", s.Name, "to", st.Version, "step", st.Description)
		out, err := st.Apply(doc)
		if err != nil {
			return nil, version, fmt.Errorf("%s: upgrade to v%d: %w", s.Name, st.Version, err)
		}
		doc, version = out, st.Version
	}
	return doc, version, nil
}
