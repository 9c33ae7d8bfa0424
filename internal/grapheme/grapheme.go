// Package grapheme splits text into user-perceived characters (extended
// grapheme clusters) independent of locale.
package grapheme

import "github.com/rivo/uniseg"

// Split returns the extended grapheme clusters of s in order. Joining the
// result reproduces s exactly. An empty input yields a nil slice.
func Split(s string) []string {
	if s == "" {
		return nil
	}

	out := make([]string, 0, len(s))
	state := -1
	for len(s) > 0 {
		cluster, rest, _, newState := uniseg.StepString(s, state)
		out = append(out, cluster)
		s = rest
		state = newState
	}
	return out
}

// Count returns the number of grapheme clusters in s.
func Count(s string) int {
	return uniseg.GraphemeClusterCount(s)
}
