package provider

import "testing"

func TestRegistry(t *testing.T) {
	var r Registry
	if r.HasFailed([]byte("h1")) {
		t.Error("empty registry reported a failure")
	}
	if r.HasFailed(nil) {
		t.Error("nil hash reported as failed")
	}
	r.Insert([]byte("h1"))
	if !r.HasFailed([]byte("h1")) {
		t.Error("inserted hash not reported as failed")
	}
	if r.HasFailed([]byte("h2")) {
		t.Error("unrelated hash reported as failed")
	}
	// Duplicate inserts are harmless.
	r.Insert([]byte("h1"))
	if !r.HasFailed([]byte("h1")) {
		t.Error("hash lost after duplicate insert")
	}
	if r.HasFailed(nil) {
		t.Error("nil hash reported as failed")
	}
}
