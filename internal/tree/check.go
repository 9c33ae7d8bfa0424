package tree

import (
	"context"
	"fmt"
	"sort"
)

// Check validates every sibling set in the collection, including writes
// staged in this session, and returns the first inconsistency found.
func (s *Session) Check(ctx context.Context) error {
	all, err := s.tree.coll.All(ctx)
	if err != nil {
		return fmt.Errorf("tree: loading %s: %w", s.name(), err)
	}

	groups := make(map[string][]*Node)
	seen := make(map[string]bool, len(all))
	for _, n := range all {
		seen[n.ID] = true
		if s.deleted[n.ID] {
			continue
		}
		if cached, ok := s.nodes[n.ID]; ok {
			n = cached
		}
		groups[n.ParentID] = append(groups[n.ParentID], n)
	}
	for id, n := range s.nodes {
		if !seen[id] && !s.deleted[id] {
			groups[n.ParentID] = append(groups[n.ParentID], n)
		}
	}

	parents := make([]string, 0, len(groups))
	for p := range groups {
		parents = append(parents, p)
	}
	sort.Strings(parents)

	for _, p := range parents {
		if _, err := s.tree.order.sort(s.name(), groups[p]); err != nil {
			return err
		}
	}
	return nil
}
