// Package bundle turns project bundles into read-only decision
// catalogs.
//
// A bundle is either a zip archive (optionally with per-entry
// symmetric encryption) or an unpacked directory with the same layout.
// Regular files are parsed as decision documents and stored under
// their lowercased in-bundle path; the reserved ".config" directory is
// never exposed as a decision and may carry the release manifest at
// ".config/project.json".
package bundle

import "strings"

// ConfigPrefix is the reserved directory never exposed as a decision
// key.
const ConfigPrefix = ".config"

// ManifestName is the in-bundle path of the release manifest.
const ManifestName = ".config/project.json"

// Catalog is one project's immutable decision catalog plus optional
// release metadata.
type Catalog struct {
	release *ReleaseData
	content map[string]*DecisionContent
}

// Load returns the decision stored under key. Lookup is
// case-insensitive: the key is lowercased first.
func (c *Catalog) Load(key string) (*DecisionContent, bool) {
	d, ok := c.content[strings.ToLower(key)]
	return d, ok
}

// Len reports the number of decisions in the catalog.
func (c *Catalog) Len() int {
	return len(c.content)
}

// ReleaseData returns the release manifest, or nil when the bundle
// carried none.
func (c *Catalog) ReleaseData() *ReleaseData {
	return c.release
}

// Version returns the versionId recorded in the decision's meta block,
// if any.
func (c *Catalog) Version(path string) (string, bool) {
	d, ok := c.content[strings.ToLower(path)]
	if !ok || d.Meta.VersionID == "" {
		return "", false
	}
	return d.Meta.VersionID, true
}

// CanAccess reports whether the supplied token may evaluate this
// project.
//
// A catalog without release data is open: every token is accepted.
// With release data present the token must byte-equal one of the
// release's access tokens, so an empty token list denies everything,
// the empty token included.
func (c *Catalog) CanAccess(token string) bool {
	if c.release == nil {
		return true
	}
	for _, t := range c.release.AccessTokens {
		if t == token {
			return true
		}
	}
	return false
}
