package bundle

import (
	"encoding/json"
	"fmt"
)

// ReleaseData is the release manifest parsed from ".config/project.json".
type ReleaseData struct {
	// Version is the optional bundle format version.
	Version string `json:"version,omitempty"`
	// Project identifies the project this bundle was released from.
	Project ReleaseProject `json:"project"`
	// AccessTokens is the ordered list of tokens allowed to evaluate
	// this project. Absent means the project is open.
	AccessTokens []string `json:"accessTokens,omitempty"`
	// Release identifies the specific release.
	Release Release `json:"release"`
}

// ReleaseProject is the project identity block of a release manifest.
type ReleaseProject struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Release is the release identity block of a release manifest.
type Release struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// DecisionContent is one decision document. The document schema is
// opaque to this module except for the optional "meta" block.
type DecisionContent struct {
	// Meta is the parsed top-level "meta" block, if present.
	Meta DecisionMeta
	// Content is the document verbatim.
	Content json.RawMessage
}

// DecisionMeta is the recognized portion of a decision's "meta" block.
type DecisionMeta struct {
	VersionID string `json:"versionId"`
}

// UnmarshalJSON implements json.Unmarshaler. The document must be a
// JSON object; everything outside "meta" is kept verbatim.
func (d *DecisionContent) UnmarshalJSON(b []byte) error {
	var probe struct {
		Meta DecisionMeta `json:"meta"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return fmt.Errorf("bundle: invalid decision document: %w", err)
	}
	d.Meta = probe.Meta
	d.Content = append(d.Content[:0], b...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d *DecisionContent) MarshalJSON() ([]byte, error) {
	if d.Content == nil {
		return []byte("null"), nil
	}
	return d.Content, nil
}
