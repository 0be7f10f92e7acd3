// Package provider implements the source backends projects are
// mirrored from.
//
// Five variants exist: local zip archives, local unpacked directories,
// S3-compatible object stores, Azure blob containers, and Google Cloud
// Storage buckets. All of them implement Provider.
package provider

import (
	"bytes"
	"context"
	"sync"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/bundle"
	"github.com/decisionhub/agent/eval"
)

// Provider enumerates and fetches project bundles from one backend.
type Provider interface {
	// LoadData lists the backend, diffs the listing against the
	// store, fetches changed bundles, and publishes the results. The
	// returned diff holds only the changes actually applied.
	LoadData(ctx context.Context, store *agent.Store) ([]agent.ProjectDiff, error)
	// ShouldRefresh reports whether the backend needs periodic
	// re-listing. Local backends are loaded once and report false.
	ShouldRefresh() bool
}

// FetchConcurrency caps in-flight bundle downloads per refresh.
const fetchConcurrency = 100

// RefreshKeys returns the keys that need a fetch: every created or
// updated entry of diff.
func refreshKeys(diff []agent.ProjectDiff) []string {
	keys := make([]string, 0, len(diff))
	for _, d := range diff {
		switch d.Op {
		case agent.OpCreated, agent.OpUpdated:
			keys = append(keys, d.Key)
		}
	}
	return keys
}

// FetchAll downloads the named bundles with bounded parallelism.
// Per-key failures are logged and skipped; they never fail the
// refresh.
func fetchAll(ctx context.Context, keys []string, fetch func(context.Context, string) (*agent.Project, error)) map[string]*agent.Project {
	var mu sync.Mutex
	out := make(map[string]*agent.Project, len(keys))
	var eg errgroup.Group
	eg.SetLimit(fetchConcurrency)
	for _, key := range keys {
		key := key
		eg.Go(func() error {
			p, err := fetch(ctx, key)
			if err != nil {
				zlog.Error(ctx).
					Str("key", key).
					Err(err).
					Msg("unable to fetch project bundle, skipping")
				return nil
			}
			mu.Lock()
			out[key] = p
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()
	return out
}

// FilterListing drops entries whose post-strip key is empty and
// entries whose content hash is known to be poisoned.
func filterListing(ctx context.Context, in []agent.ProjectData) []agent.ProjectData {
	out := in[:0]
	for _, d := range in {
		if d.Key == "" {
			continue
		}
		if Poisoned().HasFailed(d.ContentHash) {
			zlog.Debug(ctx).
				Str("key", d.Key).
				Msg("skipping listing entry with poisoned content hash")
			continue
		}
		out = append(out, d)
	}
	return out
}

// ProjectFromZip runs the bundle loader over downloaded archive bytes.
// A malformed bundle records its hash in the poisoned registry.
func projectFromZip(ctx context.Context, b []byte, hash []byte, password string, factory agent.EvaluatorFactory) (*agent.Project, error) {
	cat, err := bundle.FromZip(ctx, bytes.NewReader(b), int64(len(b)), password)
	if err != nil {
		if hash != nil {
			Poisoned().Insert(hash)
			zlog.Warn(ctx).
				Str("hash", string(hash)).
				Msg("recorded poisoned bundle")
		}
		return nil, err
	}
	return newProject(cat, hash, factory), nil
}

func newProject(cat *bundle.Catalog, hash []byte, factory agent.EvaluatorFactory) *agent.Project {
	if factory == nil {
		factory = func(c *bundle.Catalog) agent.Evaluator { return eval.New(c) }
	}
	return &agent.Project{
		Evaluator:   factory(cat),
		Catalog:     cat,
		ContentHash: hash,
	}
}
