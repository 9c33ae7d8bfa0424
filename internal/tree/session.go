package tree

import (
	"context"
	"fmt"
)

// Collection is read access to the committed nodes of one collection.
type Collection interface {
	Name() string
	// Get returns nil, nil when the node does not exist.
	Get(ctx context.Context, id string) (*Node, error)
	// Children returns the committed children of parentID in any order.
	Children(ctx context.Context, parentID string) ([]*Node, error)
	All(ctx context.Context) ([]*Node, error)
}

// Sink receives the writes produced by a mutation. A node may be put more
// than once within a batch; the last write wins. reindex is set when the
// node's text is new or changed.
type Sink interface {
	Put(n *Node, reindex bool) error
	Delete(n *Node) error
}

// Tree binds a collection to its sibling ordering.
type Tree struct {
	coll  Collection
	order Ordering
}

// New returns a Tree over coll using the given ordering.
func New(coll Collection, order Ordering) *Tree {
	if order == nil {
		order = OrderKey
	}
	return &Tree{coll: coll, order: order}
}

// Name returns the collection name.
func (t *Tree) Name() string { return t.coll.Name() }

// Ordering returns the sibling encoding in use.
func (t *Tree) Ordering() Ordering { return t.order }

// Session opens a view of the tree. Writes are forwarded to sink; a nil sink
// gives a read-only session. Sessions are not safe for concurrent use and
// should not outlive the batch they belong to.
func (t *Tree) Session(sink Sink) *Session {
	return &Session{
		tree:    t,
		sink:    sink,
		nodes:   make(map[string]*Node),
		missing: make(map[string]bool),
		deleted: make(map[string]bool),
	}
}

// Session is an identity map over the committed collection plus the writes
// staged through it.
type Session struct {
	tree    *Tree
	sink    Sink
	nodes   map[string]*Node
	missing map[string]bool
	deleted map[string]bool
}

func (s *Session) name() string { return s.tree.coll.Name() }

// get returns the session's copy of the node, or nil when it does not exist.
func (s *Session) get(ctx context.Context, id string) (*Node, error) {
	if id == "" || s.deleted[id] || s.missing[id] {
		return nil, nil
	}
	if n, ok := s.nodes[id]; ok {
		return n, nil
	}
	n, err := s.tree.coll.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("tree: loading %s/%s: %w", s.name(), id, err)
	}
	if n == nil {
		s.missing[id] = true
		return nil, nil
	}
	s.nodes[id] = n
	return n, nil
}

// resolve returns the session's copy of n, failing when it does not exist.
func (s *Session) resolve(ctx context.Context, n *Node) (*Node, error) {
	if n == nil || n.ID == "" {
		return nil, fmt.Errorf("%w: missing node", ErrInvalidArgument)
	}
	cur, err := s.get(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, inconsistent(s.name(), "node not found", n)
	}
	return cur, nil
}

// children returns parentID's children as seen by this session, merging
// committed rows with staged moves, inserts and deletes, unsorted.
func (s *Session) children(ctx context.Context, parentID string) ([]*Node, error) {
	committed, err := s.tree.coll.Children(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("tree: loading children of %q in %s: %w", parentID, s.name(), err)
	}

	seen := make(map[string]bool, len(committed))
	out := make([]*Node, 0, len(committed))
	for _, c := range committed {
		seen[c.ID] = true
		if s.deleted[c.ID] {
			continue
		}
		cached, ok := s.nodes[c.ID]
		if !ok {
			s.nodes[c.ID] = c
			delete(s.missing, c.ID)
			out = append(out, c)
			continue
		}
		if cached.ParentID == parentID {
			out = append(out, cached)
		}
	}
	for id, n := range s.nodes {
		if seen[id] || s.deleted[id] || n.ParentID != parentID {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// siblings returns parentID's children in position order.
func (s *Session) siblings(ctx context.Context, parentID string) ([]*Node, error) {
	kids, err := s.children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return s.tree.order.sort(s.name(), kids)
}

// locate resolves n and returns its ordered sibling set and index within it.
func (s *Session) locate(ctx context.Context, n *Node) (*Node, []*Node, int, error) {
	cur, err := s.resolve(ctx, n)
	if err != nil {
		return nil, nil, 0, err
	}
	sibs, err := s.siblings(ctx, cur.ParentID)
	if err != nil {
		return nil, nil, 0, err
	}
	for i, sib := range sibs {
		if sib.ID == cur.ID {
			return cur, sibs, i, nil
		}
	}
	return nil, nil, 0, inconsistent(s.name(), "node missing from its parent's children", cur)
}

func (s *Session) writable() error {
	if s.sink == nil {
		return ErrReadOnly
	}
	return nil
}

func (s *Session) put(n *Node, reindex bool) error {
	if err := s.writable(); err != nil {
		return err
	}
	s.nodes[n.ID] = n
	delete(s.missing, n.ID)
	delete(s.deleted, n.ID)
	if err := s.sink.Put(n, reindex); err != nil {
		return fmt.Errorf("tree: staging %s: %w", n.ID, err)
	}
	return nil
}

func (s *Session) delete(n *Node) error {
	if err := s.writable(); err != nil {
		return err
	}
	delete(s.nodes, n.ID)
	s.deleted[n.ID] = true
	if err := s.sink.Delete(n); err != nil {
		return fmt.Errorf("tree: staging delete of %s: %w", n.ID, err)
	}
	return nil
}

func at(sibs []*Node, i int) *Node {
	if i < 0 || i >= len(sibs) {
		return nil
	}
	return sibs[i]
}
