package tree

import (
	"context"
	"fmt"
)

// validateNew rejects nodes that cannot be inserted. It runs before any
// write is staged.
func (s *Session) validateNew(ctx context.Context, n *Node) error {
	if err := s.writable(); err != nil {
		return err
	}
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w: node id is required", ErrInvalidArgument)
	}
	existing, err := s.get(ctx, n.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: node %s already exists in %s", ErrInvalidArgument, n.ID, s.name())
	}
	return nil
}

func (s *Session) insert(ctx context.Context, n *Node, parentID string, prev, next *Node) error {
	staged := &Node{ID: n.ID, Text: n.Text}
	if err := s.tree.order.place(ctx, s, staged, parentID, prev, next); err != nil {
		return err
	}
	if err := s.put(staged, true); err != nil {
		return err
	}
	*n = *staged
	return nil
}

// AddSingle inserts n as the only child of parentID. It fails with
// ErrInvalidArgument when the parent already has children.
func (s *Session) AddSingle(ctx context.Context, parentID string, n *Node) error {
	if err := s.validateNew(ctx, n); err != nil {
		return err
	}
	kids, err := s.siblings(ctx, parentID)
	if err != nil {
		return err
	}
	if len(kids) > 0 {
		return fmt.Errorf("%w: %q already has children", ErrInvalidArgument, parentID)
	}
	return s.insert(ctx, n, parentID, nil, nil)
}

// AddPrevSibling inserts n directly before base.
func (s *Session) AddPrevSibling(ctx context.Context, base, n *Node) error {
	if err := s.validateNew(ctx, n); err != nil {
		return err
	}
	cur, sibs, i, err := s.locate(ctx, base)
	if err != nil {
		return err
	}
	return s.insert(ctx, n, cur.ParentID, at(sibs, i-1), cur)
}

// AddNextSibling inserts n directly after base.
func (s *Session) AddNextSibling(ctx context.Context, base, n *Node) error {
	if err := s.validateNew(ctx, n); err != nil {
		return err
	}
	cur, sibs, i, err := s.locate(ctx, base)
	if err != nil {
		return err
	}
	return s.insert(ctx, n, cur.ParentID, cur, at(sibs, i+1))
}

// AppendChild inserts n as the last child of parentID.
func (s *Session) AppendChild(ctx context.Context, parentID string, n *Node) error {
	if err := s.validateNew(ctx, n); err != nil {
		return err
	}
	kids, err := s.siblings(ctx, parentID)
	if err != nil {
		return err
	}
	return s.insert(ctx, n, parentID, at(kids, len(kids)-1), nil)
}

// move detaches cur from its current position and places it under parentID
// between prev and next.
func (s *Session) move(ctx context.Context, cur *Node, sibs []*Node, i int, parentID string, prev, next *Node) error {
	order := s.tree.order
	if err := order.detach(ctx, s, at(sibs, i-1), cur, at(sibs, i+1)); err != nil {
		return err
	}
	if err := order.place(ctx, s, cur, parentID, prev, next); err != nil {
		return err
	}
	return s.put(cur, false)
}

// Indent makes n the last child of its previous sibling. It does nothing
// when n is the first of its siblings.
func (s *Session) Indent(ctx context.Context, n *Node) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, sibs, i, err := s.locate(ctx, n)
	if err != nil {
		return err
	}
	if i == 0 {
		return nil
	}

	newParent := sibs[i-1]
	kids, err := s.siblings(ctx, newParent.ID)
	if err != nil {
		return err
	}
	return s.move(ctx, cur, sibs, i, newParent.ID, at(kids, len(kids)-1), nil)
}

// Dedent makes n the next sibling of its parent. It does nothing for roots
// and for nodes whose parent lives outside this collection.
func (s *Session) Dedent(ctx context.Context, n *Node) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, sibs, i, err := s.locate(ctx, n)
	if err != nil {
		return err
	}
	if cur.ParentID == "" {
		return nil
	}
	parent, err := s.get(ctx, cur.ParentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return nil
	}

	_, outer, j, err := s.locate(ctx, parent)
	if err != nil {
		return err
	}
	return s.move(ctx, cur, sibs, i, parent.ParentID, parent, at(outer, j+1))
}

// MovePrev swaps n with its previous sibling. It does nothing when n is
// already first.
func (s *Session) MovePrev(ctx context.Context, n *Node) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, sibs, i, err := s.locate(ctx, n)
	if err != nil {
		return err
	}
	if i == 0 {
		return nil
	}
	return s.move(ctx, cur, sibs, i, cur.ParentID, at(sibs, i-2), sibs[i-1])
}

// MoveNext swaps n with its next sibling. It does nothing when n is already
// last.
func (s *Session) MoveNext(ctx context.Context, n *Node) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, sibs, i, err := s.locate(ctx, n)
	if err != nil {
		return err
	}
	if i == len(sibs)-1 {
		return nil
	}
	return s.move(ctx, cur, sibs, i, cur.ParentID, sibs[i+1], at(sibs, i+2))
}

// Remove deletes n. A node that still has children is never removed; the
// call fails with a StructuralError wrapping ErrHasChildren and stages no
// writes.
func (s *Session) Remove(ctx context.Context, n *Node) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, sibs, i, err := s.locate(ctx, n)
	if err != nil {
		return err
	}
	kids, err := s.children(ctx, cur.ID)
	if err != nil {
		return err
	}
	if len(kids) > 0 {
		return &StructuralError{Op: "remove", Node: *cur, Err: ErrHasChildren}
	}

	if err := s.tree.order.detach(ctx, s, at(sibs, i-1), cur, at(sibs, i+1)); err != nil {
		return err
	}
	return s.delete(cur)
}

// SetText replaces n's text.
func (s *Session) SetText(ctx context.Context, n *Node, text string) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, err := s.resolve(ctx, n)
	if err != nil {
		return err
	}
	if cur.Text == text {
		return nil
	}
	cur.Text = text
	return s.put(cur, true)
}
