// Package prefix handles the optional key prefix configured on
// remote source providers.
package prefix

import "strings"

// Prefix is an optional key prefix, normalized to end with a slash
// when present. The zero value is the absent prefix.
type Prefix struct {
	s string
}

// New returns a Prefix for s. An empty s yields the absent prefix;
// anything else is normalized to end with "/".
func New(s string) Prefix {
	if s == "" {
		return Prefix{}
	}
	if !strings.HasSuffix(s, "/") {
		s += "/"
	}
	return Prefix{s: s}
}

// Strip removes the prefix from target if present, otherwise returns
// target unchanged.
func (p Prefix) Strip(target string) string {
	if p.s == "" {
		return target
	}
	return strings.TrimPrefix(target, p.s)
}

// Prepend returns the prefix followed by target.
func (p Prefix) Prepend(target string) string {
	if p.s == "" {
		return target
	}
	return p.s + target
}

// String reports the normalized prefix, or "" when absent.
func (p Prefix) String() string {
	return p.s
}
