// Package eval contains the evaluation side of the agent: a default
// catalog-backed evaluator and the pinned worker pool evaluations run
// on.
//
// The decision engine proper is out of scope for this module; any
// engine can be plugged in through agent.EvaluatorFactory. The default
// evaluator resolves the decision by lowercased path and echoes the
// caller's context as the result, which is enough for wiring, tests,
// and pass-through decision models.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/bundle"
)

var _ agent.Evaluator = (*Engine)(nil)

// EvaluationError is an evaluator failure whose JSON form is returned
// to HTTP callers verbatim.
type EvaluationError struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

// Error implements error.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %s: %s", e.Type, e.Message)
}

// JSON implements agent.JSONError.
func (e *EvaluationError) JSON() json.RawMessage {
	b, err := json.Marshal(e)
	if err != nil {
		return json.RawMessage(`{"type":"internal"}`)
	}
	return b
}

// Engine is the default pass-through evaluator.
type Engine struct {
	cat *bundle.Catalog
}

// New returns an Engine over cat.
func New(cat *bundle.Catalog) *Engine {
	return &Engine{cat: cat}
}

// Result is the evaluation payload produced by Engine.
type Result struct {
	Performance string                     `json:"performance"`
	Result      json.RawMessage            `json:"result"`
	Trace       map[string]json.RawMessage `json:"trace,omitempty"`
}

// Evaluate resolves key in the catalog and evaluates input against it.
// It implements agent.Evaluator.
func (e *Engine) Evaluate(ctx context.Context, key string, input json.RawMessage, opts agent.EvalOptions) (json.RawMessage, error) {
	start := time.Now()
	if _, ok := e.cat.Load(key); !ok {
		return nil, &EvaluationError{
			Type:    "NodeNotFound",
			Key:     key,
			Message: fmt.Sprintf("decision %q does not exist in this project", key),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := Result{
		Performance: time.Since(start).String(),
		Result:      input,
	}
	if opts.Trace {
		out.Trace = map[string]json.RawMessage{}
	}
	b, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("eval: unable to serialize result: %w", err)
	}
	return b, nil
}
