package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/quay/zlog"
	"github.com/yeka/zip"
)

// FromZip parses a zipped project bundle.
//
// Encrypted entries are decrypted with the supplied password; bundles
// may freely mix encrypted and plaintext entries. A parse failure on
// any decision entry fails the whole bundle. Directories, non-regular
// files, and entries whose name escapes the archive root are skipped.
func FromZip(ctx context.Context, ra io.ReaderAt, size int64, password string) (*Catalog, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "bundle/FromZip")
	z, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("bundle: unable to open archive: %w", err)
	}

	c := &Catalog{content: make(map[string]*DecisionContent, len(z.File))}
	for _, f := range z.File {
		fi := f.FileInfo()
		if fi.IsDir() || !fi.Mode().IsRegular() {
			continue
		}
		name, ok := enclosedName(f.Name)
		if !ok {
			zlog.Warn(ctx).
				Str("name", f.Name).
				Msg("skipping entry escaping the archive root")
			continue
		}
		if f.IsEncrypted() && password != "" {
			f.SetPassword(password)
		}
		if name == ManifestName {
			c.release = readManifest(ctx, f)
			continue
		}
		if firstComponent(name) == ConfigPrefix {
			continue
		}

		b, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("bundle: unable to read %q: %w", name, err)
		}
		var d DecisionContent
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("bundle: decision %q: %w", name, err)
		}
		key := strings.ToLower(name)
		if _, collide := c.content[key]; collide {
			zlog.Warn(ctx).
				Str("key", key).
				Msg("decision paths collide after lowercasing, last one wins")
		}
		c.content[key] = &d
	}
	return c, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ReadManifest returns the parsed release manifest, or nil when the
// entry is unreadable or malformed. A bad manifest is "no release
// data", not a bundle failure.
func readManifest(ctx context.Context, f *zip.File) *ReleaseData {
	b, err := readEntry(f)
	if err != nil {
		zlog.Debug(ctx).Err(err).Msg("unable to read release manifest")
		return nil
	}
	var rd ReleaseData
	if err := json.Unmarshal(b, &rd); err != nil {
		zlog.Debug(ctx).Err(err).Msg("unable to parse release manifest")
		return nil
	}
	return &rd
}

// EnclosedName normalizes an in-archive name and reports whether it
// stays inside the archive root.
func enclosedName(name string) (string, bool) {
	p := path.Clean(name)
	if p == "." || !fs.ValidPath(p) {
		return "", false
	}
	return p, true
}

func firstComponent(p string) string {
	if i := strings.IndexByte(p, '/'); i != -1 {
		return p[:i]
	}
	return p
}
