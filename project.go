// Package agent holds the core data model for the decision agent: the
// in-memory project snapshot, the listing/diff types produced and
// consumed by source providers, and the evaluator contract.
//
// Construction and refresh orchestration live in the libagent package;
// concrete source providers live in the provider package.
package agent

import (
	"context"
	"encoding/json"

	"github.com/decisionhub/agent/bundle"
)

// Project is one loaded decision project.
//
// A Project is immutable after publication: refreshes replace the
// stored pointer, they never mutate a published value.
type Project struct {
	// Evaluator runs decisions from this project's catalog.
	Evaluator Evaluator
	// Catalog is the read-only decision catalog the project was
	// built from.
	Catalog *bundle.Catalog
	// ContentHash is the opaque revision identifier reported by the
	// source provider (typically an ETag), or nil for local sources.
	ContentHash []byte
}

// ProjectData is one entry of a provider listing.
type ProjectData struct {
	Key         string
	ContentHash []byte
}

// Op is the kind of change described by a ProjectDiff.
type Op int

const (
	// OpCreated indicates a key present remotely but not in the
	// snapshot.
	OpCreated Op = iota
	// OpUpdated indicates a key whose remote content hash differs
	// from the stored one.
	OpUpdated
	// OpRemoved indicates a key present in the snapshot but gone
	// remotely.
	OpRemoved
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpUpdated:
		return "updated"
	case OpRemoved:
		return "removed"
	}
	return "invalid"
}

// ProjectDiff is one change between a provider listing and the current
// snapshot.
type ProjectDiff struct {
	Op  Op
	Key string
}

// EvalOptions are passed through to the evaluator on every call.
type EvalOptions struct {
	Trace    bool
	MaxDepth int
}

// Evaluator evaluates a named decision against a caller-supplied
// context document.
//
// The decision engine itself is opaque to this module; implementations
// may keep thread-local state for the duration of a single Evaluate
// call and are therefore always invoked on a pinned worker (see the
// eval package).
type Evaluator interface {
	Evaluate(ctx context.Context, key string, input json.RawMessage, opts EvalOptions) (json.RawMessage, error)
}

// EvaluatorFactory builds an Evaluator over a loaded catalog. It is
// called once per successful bundle load.
type EvaluatorFactory func(*bundle.Catalog) Evaluator

// JSONError is implemented by evaluator errors that carry a JSON body
// which should be returned to the caller verbatim.
type JSONError interface {
	error
	JSON() json.RawMessage
}
