package libagent

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/quay/zlog"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/bundle"
	"github.com/decisionhub/agent/eval"
)

const (
	openManifest = `{
		"project": {"id": "sample-id", "key": "sample"},
		"release": {"id": "rel-1", "version": "1.0.0"}
	}`
	securedManifest = `{
		"project": {"id": "secured-id", "key": "secured"},
		"accessTokens": ["secret"],
		"release": {"id": "rel-2", "version": "1.0.0"}
	}`
)

func testCatalog(t *testing.T, manifest string) *bundle.Catalog {
	t.Helper()
	fsys := fstest.MapFS{
		"sample-small.json": &fstest.MapFile{
			Data: []byte(`{"meta": {"versionId": "v1"}, "nodes": []}`),
		},
	}
	if manifest != "" {
		fsys[bundle.ManifestName] = &fstest.MapFile{Data: []byte(manifest)}
	}
	cat, err := bundle.FromFS(zlog.Test(context.Background(), t), fsys)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func testProject(t *testing.T, manifest string) *agent.Project {
	t.Helper()
	cat := testCatalog(t, manifest)
	return &agent.Project{Evaluator: eval.New(cat), Catalog: cat}
}

// StaticSource publishes a fixed set of projects on every load.
type staticSource struct {
	projects map[string]*agent.Project
	refresh  bool
	err      error
}

func (s *staticSource) LoadData(_ context.Context, store *agent.Store) ([]agent.ProjectDiff, error) {
	if s.err != nil {
		return nil, s.err
	}
	var diff []agent.ProjectDiff
	for k, p := range s.projects {
		store.Insert(k, p)
		diff = append(diff, agent.ProjectDiff{Op: agent.OpCreated, Key: k})
	}
	return diff, nil
}

func (s *staticSource) ShouldRefresh() bool { return s.refresh }

func TestNew(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	src := &staticSource{projects: map[string]*agent.Project{
		"Sample": testProject(t, openManifest),
	}}

	a, err := New(ctx, Options{Source: src})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)

	if _, ok := a.Project("Sample"); !ok {
		t.Error("lookup by key failed")
	}
	if _, ok := a.Project("sample-id"); !ok {
		t.Error("lookup by release project id failed")
	}
	if _, ok := a.Project("SAMPLE-ID"); !ok {
		t.Error("release project id lookup is not case-insensitive")
	}
	if _, ok := a.Project("missing"); ok {
		t.Error("lookup of unknown identifier succeeded")
	}
}

func TestNewLoadFailure(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	want := errors.New("backend unavailable")
	_, err := New(ctx, Options{Source: &staticSource{err: want}})
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want wrapped %v", err, want)
	}
}

func TestOptionsParse(t *testing.T) {
	src := &staticSource{}
	tt := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"Defaults", Options{Source: src}, true},
		{"TooFast", Options{Source: src, PollInterval: 100 * time.Millisecond}, false},
		{"NoSource", Options{}, false},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.parse()
			if (err == nil) != tc.ok {
				t.Fatalf("got %v, want ok=%v", err, tc.ok)
			}
			if tc.ok && tc.opts.PollInterval == 0 {
				t.Error("poll interval not defaulted")
			}
		})
	}
}

func TestNextAlignedDelay(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tt := []struct {
		name     string
		now      time.Time
		interval time.Duration
		want     time.Duration
	}{
		{"MidInterval", base.Add(2500 * time.Millisecond), 5 * time.Second, 2500 * time.Millisecond},
		{"OnBoundary", base.Add(5 * time.Second), 5 * time.Second, 5 * time.Second},
		{"MinuteAlign", base.Add(30 * time.Second), time.Minute, 30 * time.Second},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextAlignedDelay(tc.now, tc.interval); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
