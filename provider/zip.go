package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quay/zlog"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/bundle"
)

// ZipConfig configures the local-archive provider.
type ZipConfig struct {
	// Root is the directory scanned for "*.zip" bundles. Defaults to
	// "data".
	Root string
	// Password decrypts encrypted bundle entries.
	Password string
	// Evaluator builds evaluators over loaded catalogs; nil selects
	// the default engine.
	Evaluator agent.EvaluatorFactory
}

// Zip serves projects from a local directory of zip archives. The scan
// is one level deep; the key is the filename without the ".zip"
// suffix. Local bundles carry no content hash and are loaded once.
type Zip struct {
	root     string
	password string
	factory  agent.EvaluatorFactory
}

var _ Provider = (*Zip)(nil)

// NewZip returns a Zip provider over cfg.Root.
func NewZip(cfg ZipConfig) (*Zip, error) {
	root := cfg.Root
	if root == "" {
		root = "data"
	}
	return &Zip{
		root:     root,
		password: cfg.Password,
		factory:  cfg.Evaluator,
	}, nil
}

// ShouldRefresh implements Provider.
func (*Zip) ShouldRefresh() bool { return false }

// LoadData implements Provider.
func (z *Zip) LoadData(ctx context.Context, store *agent.Store) ([]agent.ProjectDiff, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "provider/Zip.LoadData",
		"provider", "zip")

	ents, err := os.ReadDir(z.root)
	if err != nil {
		return nil, fmt.Errorf("provider: unable to read %q: %w", z.root, err)
	}

	var diff []agent.ProjectDiff
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".zip")
		p, err := z.load(ctx, filepath.Join(z.root, e.Name()))
		if err != nil {
			zlog.Error(ctx).
				Str("key", key).
				Err(err).
				Msg("unable to load project bundle, skipping")
			continue
		}
		store.Insert(key, p)
		diff = append(diff, agent.ProjectDiff{Op: agent.OpCreated, Key: key})
	}
	return diff, nil
}

func (z *Zip) load(ctx context.Context, name string) (*agent.Project, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	cat, err := bundle.FromZip(ctx, f, fi.Size(), z.password)
	if err != nil {
		return nil, err
	}
	return newProject(cat, nil, z.factory), nil
}
