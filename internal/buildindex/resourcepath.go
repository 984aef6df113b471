// Package buildindex implements the persistent build-graph database (spec
// component C6): the resource DAG, per-node source hashes, and the
// (context_hash, source_hash) -> [CompiledResource] cache, backed by
// modernc.org/sqlite (the teacher's pure-Go SQLite driver choice, see
// internal/store/sqlite_bm25.go).
package buildindex

import (
	"strings"

	"github.com/forgecore/forge/internal/ferr"
)

// Step is one (type, optional name) hop in a resource path.
type Step struct {
	Type string
	Name string
}

// ResourcePathID identifies a graph node: a source resource, or a resource
// derived from it by a chain of transforms. The last step's (from_type,
// to_type) names the compiler transform that produced it.
type ResourcePathID struct {
	steps []Step
}

// NewResourcePathID builds a path from its steps; the first step names the
// source resource.
func NewResourcePathID(steps ...Step) ResourcePathID {
	return ResourcePathID{steps: append([]Step(nil), steps...)}
}

// IsDerived reports whether this path names a transform output rather than
// a bare source resource.
func (p ResourcePathID) IsDerived() bool { return len(p.steps) > 1 }

// SourceResource returns the path's first step alone, identifying the
// underlying source resource this path is ultimately derived from.
func (p ResourcePathID) SourceResource() ResourcePathID {
	if len(p.steps) == 0 {
		return p
	}
	return ResourcePathID{steps: p.steps[:1]}
}

// Parent returns the path with its last step removed, and true, or the
// zero value and false if p has no parent (it is already a source
// resource). This is the implicit chain-parent edge every derived node
// depends on.
func (p ResourcePathID) Parent() (ResourcePathID, bool) {
	if len(p.steps) <= 1 {
		return ResourcePathID{}, false
	}
	return ResourcePathID{steps: p.steps[:len(p.steps)-1]}, true
}

// LastTransform returns the (from_type, to_type) pair the last step
// represents, and true, or ("", "", false) if p is not derived.
func (p ResourcePathID) LastTransform() (from, to string, ok bool) {
	if len(p.steps) < 2 {
		return "", "", false
	}
	return p.steps[len(p.steps)-2].Type, p.steps[len(p.steps)-1].Type, true
}

// String formats p as a stable, parseable, lexicographically orderable
// token: steps joined by '|', each step "type:name".
func (p ResourcePathID) String() string {
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		parts[i] = s.Type + ":" + s.Name
	}
	return strings.Join(parts, "|")
}

// Less reports whether p sorts before other under the deterministic
// lexicographic tie-break EvaluationOrder relies on.
func (p ResourcePathID) Less(other ResourcePathID) bool {
	return p.String() < other.String()
}

// ParseResourcePathID parses a token produced by String.
func ParseResourcePathID(s string) (ResourcePathID, error) {
	if s == "" {
		return ResourcePathID{}, ferr.New(ferr.CodeCorruptedTree, "empty resource path id")
	}
	rawSteps := strings.Split(s, "|")
	steps := make([]Step, len(rawSteps))
	for i, raw := range rawSteps {
		idx := strings.IndexByte(raw, ':')
		if idx < 0 {
			return ResourcePathID{}, ferr.New(ferr.CodeCorruptedTree, "malformed resource path id step: "+raw)
		}
		steps[i] = Step{Type: raw[:idx], Name: raw[idx+1:]}
	}
	return ResourcePathID{steps: steps}, nil
}
