package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/quay/zlog"
)

// FromFS parses an unpacked project bundle rooted at fsys.
//
// The layout is the same as the zip form: ".config/project.json" is
// the optional release manifest, everything else under ".config" is
// ignored, and every other regular file must parse as a decision
// document or the whole bundle fails.
func FromFS(ctx context.Context, fsys fs.FS) (*Catalog, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "bundle/FromFS")

	c := &Catalog{content: make(map[string]*DecisionContent)}
	if b, err := fs.ReadFile(fsys, ManifestName); err == nil {
		var rd ReleaseData
		if err := json.Unmarshal(b, &rd); err != nil {
			zlog.Debug(ctx).Err(err).Msg("unable to parse release manifest")
		} else {
			c.release = &rd
		}
	}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == ConfigPrefix {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("unable to read %q: %w", p, err)
		}
		var dc DecisionContent
		if err := json.Unmarshal(b, &dc); err != nil {
			return fmt.Errorf("decision %q: %w", p, err)
		}
		key := strings.ToLower(p)
		if _, collide := c.content[key]; collide {
			zlog.Warn(ctx).
				Str("key", key).
				Msg("decision paths collide after lowercasing, last one wins")
		}
		c.content[key] = &dc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	return c, nil
}
