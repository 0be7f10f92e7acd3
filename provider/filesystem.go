package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quay/zlog"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/bundle"
)

// FilesystemConfig configures the unpacked-directory provider.
type FilesystemConfig struct {
	// Root is the directory whose immediate subdirectories are
	// treated as unpacked project bundles. Defaults to "data".
	Root string
	// Evaluator builds evaluators over loaded catalogs; nil selects
	// the default engine.
	Evaluator agent.EvaluatorFactory
}

// Filesystem serves projects from unpacked directories. Each
// subdirectory of the root is one project keyed by its name. Like the
// Zip provider it carries no content hashes and loads once.
type Filesystem struct {
	root    string
	factory agent.EvaluatorFactory
}

var _ Provider = (*Filesystem)(nil)

// NewFilesystem returns a Filesystem provider over cfg.Root.
func NewFilesystem(cfg FilesystemConfig) (*Filesystem, error) {
	root := cfg.Root
	if root == "" {
		root = "data"
	}
	return &Filesystem{
		root:    root,
		factory: cfg.Evaluator,
	}, nil
}

// ShouldRefresh implements Provider.
func (*Filesystem) ShouldRefresh() bool { return false }

// LoadData implements Provider.
func (p *Filesystem) LoadData(ctx context.Context, store *agent.Store) ([]agent.ProjectDiff, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "provider/Filesystem.LoadData",
		"provider", "filesystem")

	ents, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("provider: unable to read %q: %w", p.root, err)
	}

	var diff []agent.ProjectDiff
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		key := e.Name()
		cat, err := bundle.FromFS(ctx, os.DirFS(filepath.Join(p.root, key)))
		if err != nil {
			zlog.Error(ctx).
				Str("key", key).
				Err(err).
				Msg("unable to load project directory, skipping")
			continue
		}
		store.Insert(key, newProject(cat, nil, p.factory))
		diff = append(diff, agent.ProjectDiff{Op: agent.OpCreated, Key: key})
	}
	return diff, nil
}
