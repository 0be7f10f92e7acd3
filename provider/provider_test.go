package provider

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/yeka/zip"
)

// ManifestFor renders a minimal release manifest for a project id.
func manifestFor(id string) string {
	return fmt.Sprintf(`{
		"project": {"id": %[1]q, "key": %[1]q},
		"release": {"id": "rel-%[1]s", "version": "1.0.0"}
	}`, id)
}

// MakeBundle builds an in-memory zip bundle.
func makeBundle(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range entries {
		f, err := w.Create(name)
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
	return buf.Bytes()
}

// SampleBundle is a loadable project bundle with one decision.
func sampleBundle(t *testing.T, id string) []byte {
	t.Helper()
	return makeBundle(t, map[string]string{
		".config/project.json": manifestFor(id),
		"sample-small.json":    `{"meta": {"versionId": "v1"}, "nodes": []}`,
	})
}
