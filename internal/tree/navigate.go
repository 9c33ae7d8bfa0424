package tree

import "context"

// Get returns the node with id, or nil when it does not exist.
func (s *Session) Get(ctx context.Context, id string) (*Node, error) {
	n, err := s.get(ctx, id)
	return n.clone(), err
}

// Children returns parentID's children in position order. An empty parentID
// lists the roots.
func (s *Session) Children(ctx context.Context, parentID string) ([]*Node, error) {
	sibs, err := s.siblings(ctx, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, len(sibs))
	for i, n := range sibs {
		out[i] = n.clone()
	}
	return out, nil
}

// Prev returns the sibling immediately before n, or nil.
func (s *Session) Prev(ctx context.Context, n *Node) (*Node, error) {
	p, err := s.prev(ctx, n)
	return p.clone(), err
}

// Next returns the sibling immediately after n, or nil.
func (s *Session) Next(ctx context.Context, n *Node) (*Node, error) {
	nx, err := s.next(ctx, n)
	return nx.clone(), err
}

// Parent returns n's parent, or nil for a root. A parent that lives outside
// this collection is reported as nil as well.
func (s *Session) Parent(ctx context.Context, n *Node) (*Node, error) {
	p, err := s.parent(ctx, n)
	return p.clone(), err
}

// FirstChild returns n's first child, or nil.
func (s *Session) FirstChild(ctx context.Context, n *Node) (*Node, error) {
	c, err := s.firstChild(ctx, n)
	return c.clone(), err
}

// LastChild returns n's last child, or nil.
func (s *Session) LastChild(ctx context.Context, n *Node) (*Node, error) {
	c, err := s.lastChild(ctx, n)
	return c.clone(), err
}

// BottomInclusive follows last-child links from n down to a leaf and returns
// it. A childless n is its own bottom.
func (s *Session) BottomInclusive(ctx context.Context, n *Node) (*Node, error) {
	b, err := s.bottomInclusive(ctx, n)
	return b.clone(), err
}

// BottomExclusive is like BottomInclusive but returns nil for a childless n.
func (s *Session) BottomExclusive(ctx context.Context, n *Node) (*Node, error) {
	last, err := s.lastChild(ctx, n)
	if err != nil || last == nil {
		return nil, err
	}
	b, err := s.bottomInclusive(ctx, last)
	return b.clone(), err
}

// Above returns the node rendered just before n when the tree is flattened
// depth first: the bottom of the previous sibling, else the parent.
func (s *Session) Above(ctx context.Context, n *Node) (*Node, error) {
	prev, err := s.prev(ctx, n)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		b, err := s.bottomInclusive(ctx, prev)
		return b.clone(), err
	}
	p, err := s.parent(ctx, n)
	return p.clone(), err
}

// Below returns the node rendered just after n when the tree is flattened
// depth first: the first child, else the next sibling of n or of its nearest
// ancestor that has one.
func (s *Session) Below(ctx context.Context, n *Node) (*Node, error) {
	first, err := s.firstChild(ctx, n)
	if err != nil {
		return nil, err
	}
	if first != nil {
		return first.clone(), nil
	}

	cur, err := s.resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for cur != nil {
		if seen[cur.ID] {
			return nil, inconsistent(s.name(), "parent cycle", cur)
		}
		seen[cur.ID] = true

		next, err := s.next(ctx, cur)
		if err != nil {
			return nil, err
		}
		if next != nil {
			return next.clone(), nil
		}
		if cur, err = s.parent(ctx, cur); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// Row is one line of a flattened tree.
type Row struct {
	Node  *Node
	Depth int
}

// Flatten lists the subtree under parentID in depth-first order, which is
// the order Above and Below walk.
func (s *Session) Flatten(ctx context.Context, parentID string) ([]Row, error) {
	var rows []Row
	seen := map[string]bool{}
	var walk func(parentID string, depth int) error
	walk = func(parentID string, depth int) error {
		sibs, err := s.siblings(ctx, parentID)
		if err != nil {
			return err
		}
		for _, n := range sibs {
			if seen[n.ID] {
				return inconsistent(s.name(), "parent cycle", n)
			}
			seen[n.ID] = true
			rows = append(rows, Row{Node: n.clone(), Depth: depth})
			if err := walk(n.ID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(parentID, 0); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Session) prev(ctx context.Context, n *Node) (*Node, error) {
	_, sibs, i, err := s.locate(ctx, n)
	if err != nil {
		return nil, err
	}
	return at(sibs, i-1), nil
}

func (s *Session) next(ctx context.Context, n *Node) (*Node, error) {
	_, sibs, i, err := s.locate(ctx, n)
	if err != nil {
		return nil, err
	}
	return at(sibs, i+1), nil
}

func (s *Session) parent(ctx context.Context, n *Node) (*Node, error) {
	cur, err := s.resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	if cur.ParentID == "" {
		return nil, nil
	}
	return s.get(ctx, cur.ParentID)
}

func (s *Session) firstChild(ctx context.Context, n *Node) (*Node, error) {
	cur, err := s.resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	kids, err := s.siblings(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	return at(kids, 0), nil
}

func (s *Session) lastChild(ctx context.Context, n *Node) (*Node, error) {
	cur, err := s.resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	kids, err := s.siblings(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	return at(kids, len(kids)-1), nil
}

func (s *Session) bottomInclusive(ctx context.Context, n *Node) (*Node, error) {
	cur, err := s.resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for {
		if seen[cur.ID] {
			return nil, inconsistent(s.name(), "parent cycle", cur)
		}
		seen[cur.ID] = true

		last, err := s.lastChild(ctx, cur)
		if err != nil {
			return nil, err
		}
		if last == nil {
			return cur, nil
		}
		cur = last
	}
}
