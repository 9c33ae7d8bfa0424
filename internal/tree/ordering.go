package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Paintersrp/lifelog/internal/fracindex"
)

// Ordering is the sibling-position encoding used by a collection. The two
// implementations, OrderKey and LinkedList, satisfy the same navigation and
// mutation contract.
type Ordering interface {
	Name() string

	// sort returns siblings in position order or an InconsistencyError.
	sort(collection string, siblings []*Node) ([]*Node, error)
	// place positions n under parentID between prev and next (either may be
	// nil) and stages any neighbor writes. The caller stages n itself.
	place(ctx context.Context, s *Session, n *Node, parentID string, prev, next *Node) error
	// detach removes n from its sibling sequence, staging neighbor writes.
	detach(ctx context.Context, s *Session, prev, n, next *Node) error
}

var (
	// OrderKey positions siblings with fractional-index keys. Only the moved
	// node's key is rewritten.
	OrderKey Ordering = orderKey{}
	// LinkedList positions siblings with prevId/nextId pointers. Moving a
	// node rewrites its old and new neighbors.
	LinkedList Ordering = linkedList{}
)

// ParseOrdering maps a configuration name to an Ordering.
func ParseOrdering(name string) (Ordering, error) {
	switch name {
	case "", "order-key", "orderkey":
		return OrderKey, nil
	case "linked-list", "linkedlist":
		return LinkedList, nil
	}
	return nil, fmt.Errorf("%w: unknown ordering %q", ErrInvalidArgument, name)
}

type orderKey struct{}

func (orderKey) Name() string { return "order-key" }

func (orderKey) sort(collection string, siblings []*Node) ([]*Node, error) {
	out := append([]*Node(nil), siblings...)
	for _, n := range out {
		if n.Order == "" {
			return nil, inconsistent(collection, "missing order key", n)
		}
		if err := fracindex.Validate(n.Order); err != nil {
			return nil, inconsistent(collection, "malformed order key: "+err.Error(), n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	for i := 1; i < len(out); i++ {
		if out[i-1].Order == out[i].Order {
			return nil, inconsistent(collection, "duplicate order key "+out[i].Order, out[i-1], out[i])
		}
	}
	return out, nil
}

func (orderKey) place(_ context.Context, s *Session, n *Node, parentID string, prev, next *Node) error {
	var lo, hi string
	if prev != nil {
		lo = prev.Order
	}
	if next != nil {
		hi = next.Order
	}
	key, err := fracindex.KeyBetween(lo, hi)
	if err != nil {
		if errors.Is(err, fracindex.ErrExhausted) {
			return fmt.Errorf("tree: placing %s: %w", n.ID, err)
		}
		return inconsistent(s.tree.coll.Name(), "cannot generate key between neighbors: "+err.Error(), prev, next)
	}
	n.ParentID = parentID
	n.Order = key
	return nil
}

func (orderKey) detach(context.Context, *Session, *Node, *Node, *Node) error {
	return nil
}

type linkedList struct{}

func (linkedList) Name() string { return "linked-list" }

func (linkedList) sort(collection string, siblings []*Node) ([]*Node, error) {
	if len(siblings) == 0 {
		return nil, nil
	}

	byID := make(map[string]*Node, len(siblings))
	var heads, tails []*Node
	for _, n := range siblings {
		byID[n.ID] = n
		if n.PrevID == "" {
			heads = append(heads, n)
		}
		if n.NextID == "" {
			tails = append(tails, n)
		}
	}
	if len(heads) != 1 {
		if len(heads) == 0 {
			return nil, inconsistent(collection, "no first sibling", siblings...)
		}
		return nil, inconsistent(collection, "multiple first siblings", heads...)
	}
	if len(tails) != 1 {
		if len(tails) == 0 {
			return nil, inconsistent(collection, "no last sibling", siblings...)
		}
		return nil, inconsistent(collection, "multiple last siblings", tails...)
	}

	out := make([]*Node, 0, len(siblings))
	visited := make(map[string]bool, len(siblings))
	cur := heads[0]
	for {
		visited[cur.ID] = true
		out = append(out, cur)
		if cur.NextID == "" {
			break
		}
		next, ok := byID[cur.NextID]
		if !ok {
			return nil, inconsistent(collection, "next sibling "+cur.NextID+" missing or under another parent", cur)
		}
		if next.PrevID != cur.ID {
			return nil, inconsistent(collection, "asymmetric sibling link", cur, next)
		}
		if visited[next.ID] {
			return nil, inconsistent(collection, "sibling cycle", cur, next)
		}
		cur = next
	}

	if len(out) != len(siblings) {
		stray := make([]*Node, 0, len(siblings)-len(out))
		for _, n := range siblings {
			if !visited[n.ID] {
				stray = append(stray, n)
			}
		}
		return nil, inconsistent(collection, "siblings unreachable from first sibling", stray...)
	}
	return out, nil
}

func (linkedList) place(_ context.Context, s *Session, n *Node, parentID string, prev, next *Node) error {
	n.ParentID = parentID
	n.PrevID = ""
	n.NextID = ""
	if prev != nil {
		n.PrevID = prev.ID
		prev.NextID = n.ID
		if err := s.put(prev, false); err != nil {
			return err
		}
	}
	if next != nil {
		n.NextID = next.ID
		next.PrevID = n.ID
		if err := s.put(next, false); err != nil {
			return err
		}
	}
	return nil
}

func (linkedList) detach(_ context.Context, s *Session, prev, n, next *Node) error {
	if prev != nil {
		prev.NextID = n.NextID
		if err := s.put(prev, false); err != nil {
			return err
		}
	}
	if next != nil {
		next.PrevID = n.PrevID
		if err := s.put(next, false); err != nil {
			return err
		}
	}
	n.PrevID = ""
	n.NextID = ""
	return nil
}
