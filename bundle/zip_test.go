package bundle

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/quay/zlog"
	"github.com/yeka/zip"
)

const sampleManifest = `{
	"version": "1",
	"project": {"id": "sample-project", "key": "sample"},
	"accessTokens": ["a", "b"],
	"release": {"id": "rel-1", "version": "1.0.0"}
}`

// MakeZip builds an in-memory archive. Entries whose name is found in
// encrypted are AES-encrypted with the password.
func makeZip(t *testing.T, entries map[string]string, password string, encrypted ...string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	enc := make(map[string]bool, len(encrypted))
	for _, n := range encrypted {
		enc[n] = true
	}
	for name, body := range entries {
		var (
			f   io.Writer
			err error
		)
		if enc[name] {
			f, err = w.Encrypt(name, password, zip.AES256Encryption)
		} else {
			f, err = w.Create(name)
		}
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestFromZip(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	ra := makeZip(t, map[string]string{
		".config/project.json":    sampleManifest,
		".config/notes.txt":       `not json at all`,
		"Sample-Small.json":       `{"meta": {"versionId": "v17"}, "nodes": []}`,
		"First Level/Nested.json": `{"nodes": [{"id": 1}]}`,
		"../escape.json":          `{"nodes": []}`,
	}, "")

	c, err := FromZip(ctx, ra, ra.Size(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Len(), 2; got != want {
		t.Errorf("got %d decisions, want %d", got, want)
	}
	if _, ok := c.Load("SAMPLE-small.json"); !ok {
		t.Error("case-insensitive lookup failed")
	}
	if _, ok := c.Load("first level/nested.json"); !ok {
		t.Error("nested decision missing")
	}
	if _, ok := c.Load(".config/project.json"); ok {
		t.Error("manifest exposed as a decision")
	}
	if _, ok := c.Load(".config/notes.txt"); ok {
		t.Error("reserved prefix exposed as a decision")
	}
	if _, ok := c.Load("../escape.json"); ok {
		t.Error("escaping entry exposed as a decision")
	}

	if v, ok := c.Version("sample-small.json"); !ok || v != "v17" {
		t.Errorf("got version %q, %v; want %q, true", v, ok, "v17")
	}
	if _, ok := c.Version("first level/nested.json"); ok {
		t.Error("unexpected version on decision without meta")
	}

	rd := c.ReleaseData()
	if rd == nil {
		t.Fatal("missing release data")
	}
	if got, want := rd.Project.ID, "sample-project"; got != want {
		t.Errorf("got project id %q, want %q", got, want)
	}
	if got, want := rd.Release.Version, "1.0.0"; got != want {
		t.Errorf("got release version %q, want %q", got, want)
	}
}

func TestFromZipEncrypted(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	const password = `hunter2`
	// Mixed bundle: one encrypted entry, one plaintext.
	ra := makeZip(t, map[string]string{
		".config/project.json": sampleManifest,
		"secret.json":          `{"meta": {"versionId": "v1"}, "nodes": []}`,
		"open.json":            `{"nodes": []}`,
	}, password, "secret.json", ".config/project.json")

	c, err := FromZip(ctx, ra, ra.Size(), password)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Load("secret.json"); !ok {
		t.Error("encrypted decision missing")
	}
	if _, ok := c.Load("open.json"); !ok {
		t.Error("plaintext decision missing")
	}
	if c.ReleaseData() == nil {
		t.Error("missing release data from encrypted manifest")
	}
}

func TestFromZipMalformedDecision(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	ra := makeZip(t, map[string]string{
		"good.json": `{"nodes": []}`,
		"bad.json":  `{"nodes":`,
	}, "")

	if _, err := FromZip(ctx, ra, ra.Size(), ""); err == nil {
		t.Fatal("want error for malformed decision, got nil")
	} else if !strings.Contains(err.Error(), "bad.json") {
		t.Errorf("error does not name the offending entry: %v", err)
	}
}

func TestFromZipMalformedManifest(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	ra := makeZip(t, map[string]string{
		".config/project.json": `{"project":`,
		"d.json":               `{"nodes": []}`,
	}, "")

	c, err := FromZip(ctx, ra, ra.Size(), "")
	if err != nil {
		t.Fatal(err)
	}
	if c.ReleaseData() != nil {
		t.Error("malformed manifest should yield no release data")
	}
	if _, ok := c.Load("d.json"); !ok {
		t.Error("decision missing")
	}
}

func TestFromZipCaseCollision(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	ra := makeZip(t, map[string]string{
		"Decision.json": `{"which": "upper"}`,
		"decision.json": `{"which": "lower"}`,
	}, "")

	c, err := FromZip(ctx, ra, ra.Size(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Len(), 1; got != want {
		t.Errorf("got %d decisions, want %d", got, want)
	}
	// Last archive entry wins; either survivor is acceptable, but
	// exactly one must be resolvable.
	if _, ok := c.Load("DECISION.JSON"); !ok {
		t.Error("colliding key not resolvable")
	}
}
