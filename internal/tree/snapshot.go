package tree

import (
	"context"

	"github.com/Paintersrp/lifelog/internal/docstore"
)

// snapshot is a read-only Collection over a fixed set of nodes.
type snapshot struct {
	name     string
	byID     map[string]*Node
	children map[string][]*Node
	all      []*Node
}

func newSnapshot(name string, nodes []*Node) *snapshot {
	s := &snapshot{
		name:     name,
		byID:     make(map[string]*Node, len(nodes)),
		children: make(map[string][]*Node),
		all:      nodes,
	}
	for _, n := range nodes {
		s.byID[n.ID] = n
		s.children[n.ParentID] = append(s.children[n.ParentID], n)
	}
	return s
}

func (s *snapshot) Name() string { return s.name }

func (s *snapshot) Get(_ context.Context, id string) (*Node, error) {
	return s.byID[id], nil
}

func (s *snapshot) Children(_ context.Context, parentID string) ([]*Node, error) {
	return s.children[parentID], nil
}

func (s *snapshot) All(context.Context) ([]*Node, error) { return s.all, nil }

// Rows flattens a set of documents already read from the tree's collection,
// such as a subscription snapshot, without going back to the store. Ordering
// and cycle detection are the same as Flatten from the root.
func (t *Tree) Rows(ctx context.Context, docs []docstore.Document) ([]Row, error) {
	nodes, err := DecodeAll(docs)
	if err != nil {
		return nil, err
	}
	view := New(newSnapshot(t.Name(), nodes), t.order)
	return view.Session(nil).Flatten(ctx, "")
}
