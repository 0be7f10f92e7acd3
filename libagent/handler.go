package libagent

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"runtime"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/bundle"
	"github.com/decisionhub/agent/eval"
	"github.com/decisionhub/agent/internal/jsonerr"
)

const (
	// MaxBodySize caps an evaluation request body.
	maxBodySize = 16 << 20
	// MaxEvalDepth bounds nested decision invocations.
	maxEvalDepth = 10
)

// HTTP is the agent's HTTP API.
//
// Evaluations run on a fixed pool of thread-pinned workers sized to
// the machine, never on the serving goroutine.
type HTTP struct {
	*http.ServeMux
	agent *Agent
	pool  *eval.Pool
}

// NewHTTP returns the API handler over a.
func NewHTTP(a *Agent) *HTTP {
	h := &HTTP{
		ServeMux: http.NewServeMux(),
		agent:    a,
		pool:     eval.NewPool(runtime.NumCPU()),
	}
	h.HandleFunc("POST /api/projects/{project}/evaluate/{key...}", h.evaluate)
	h.HandleFunc("GET /api/projects/{project}", h.project)
	h.HandleFunc("GET /api/health", h.health)
	h.HandleFunc("GET /api/version", h.version)
	return h
}

// Close stops the evaluation workers.
func (h *HTTP) Close() {
	h.pool.Close()
}

func (h *HTTP) health(w http.ResponseWriter, _ *http.Request) {
	io.WriteString(w, "healthy")
}

func (h *HTTP) version(w http.ResponseWriter, _ *http.Request) {
	v := os.Getenv("SERVICE_VERSION")
	if v == "" {
		v = "unknown"
	}
	io.WriteString(w, v)
}

// ProjectInfo is the release identity served by the project route. It
// deliberately exposes nothing else from the manifest; access tokens
// in particular never leave the process.
type ProjectInfo struct {
	ProjectID      string `json:"projectId"`
	ProjectKey     string `json:"projectKey"`
	ReleaseID      string `json:"releaseId"`
	ReleaseVersion string `json:"releaseVersion"`
}

func (h *HTTP) project(w http.ResponseWriter, r *http.Request) {
	proj, ok := h.agent.Project(r.PathValue("project"))
	if !ok {
		jsonerr.Error(w, &jsonerr.Response{
			Code:    "not-found",
			Message: "Project not found",
		}, http.StatusNotFound)
		return
	}
	rd := proj.Catalog.ReleaseData()
	if rd == nil {
		jsonerr.Error(w, &jsonerr.Response{
			Code:    "no-release-data",
			Message: "Project data not available",
		}, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(ProjectInfo{
		ProjectID:      rd.Project.ID,
		ProjectKey:     rd.Project.Key,
		ReleaseID:      rd.Release.ID,
		ReleaseVersion: rd.Release.Version,
	})
}

func (h *HTTP) evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := zlog.ContextWithValues(r.Context(),
		"component", "libagent/HTTP.evaluate")
	key := r.PathValue("key")
	ctx, span := tracer.Start(ctx, "HTTP.evaluate",
		trace.WithAttributes(
			attribute.String("params.project", r.PathValue("project")),
			attribute.String("params.key", key)))
	defer span.End()

	proj, ok := h.agent.Project(r.PathValue("project"))
	if !ok {
		jsonerr.Error(w, &jsonerr.Response{
			Code:    "not-found",
			Message: "Project not found",
		}, http.StatusNotFound)
		return
	}
	if rd := proj.Catalog.ReleaseData(); rd != nil {
		span.SetAttributes(
			attribute.String("release.id", rd.Release.ID),
			attribute.String("release.version", rd.Release.Version),
			attribute.String("project.id", rd.Project.ID),
			attribute.String("project.key", rd.Project.Key))
	}
	if !proj.Catalog.CanAccess(r.Header.Get("X-Access-Token")) {
		jsonerr.Error(w, &jsonerr.Response{
			Code:    "unauthorized",
			Message: "Invalid X-Access-Token Header",
		}, http.StatusUnauthorized)
		return
	}

	var req struct {
		Context json.RawMessage `json:"context"`
		Trace   bool            `json:"trace"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		jsonerr.Error(w, &jsonerr.Response{
			Code:    "bad-request",
			Message: "unable to deserialize request body: " + err.Error(),
		}, http.StatusBadRequest)
		return
	}

	res, err := h.pool.Do(ctx, func() (json.RawMessage, error) {
		return proj.Evaluator.Evaluate(ctx, key, req.Context, agent.EvalOptions{
			Trace:    req.Trace,
			MaxDepth: maxEvalDepth,
		})
	})
	evaluateCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("error", err != nil)))
	if err != nil {
		span.RecordError(err)
		// Evaluator errors carrying a JSON body go out verbatim;
		// everything else, panics included, is reported uniformly.
		var je agent.JSONError
		if errors.As(err, &je) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadRequest)
			w.Write(je.JSON())
			return
		}
		zlog.Error(ctx).
			Str("key", key).
			Err(err).
			Msg("evaluation failed")
		jsonerr.Error(w, &jsonerr.Response{
			Code:    "evaluation-failed",
			Message: err.Error(),
		}, http.StatusBadRequest)
		return
	}

	out, err := withDetails(res, proj.Catalog, key)
	if err != nil {
		zlog.Error(ctx).
			Str("key", key).
			Err(err).
			Msg("unable to serialize evaluation result")
		jsonerr.Error(w, &jsonerr.Response{
			Code:    "internal",
			Message: "unable to serialize evaluation result",
		}, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(out)
}

// WithDetails grafts a "details" block naming the release and decision
// version onto the evaluator's result object.
func withDetails(res json.RawMessage, cat *bundle.Catalog, key string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(res, &m); err != nil {
		return nil, err
	}
	d := struct {
		ReleaseID string `json:"releaseId,omitempty"`
		VersionID string `json:"versionId,omitempty"`
	}{}
	if rd := cat.ReleaseData(); rd != nil {
		d.ReleaseID = rd.Release.ID
	}
	if v, ok := cat.Version(key); ok {
		d.VersionID = v
	}
	b, err := json.Marshal(&d)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[string]json.RawMessage, 1)
	}
	m["details"] = b
	return json.Marshal(m)
}
