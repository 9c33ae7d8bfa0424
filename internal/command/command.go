// Package command maps named editor commands onto tree reads and batched
// tree mutations. It owns the cursor; key decoding lives with the caller.
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Paintersrp/lifelog/internal/tree"
	"github.com/Paintersrp/lifelog/internal/txn"
)

// Name identifies a command.
type Name string

const (
	NavigateUp   Name = "navigate-up"
	NavigateDown Name = "navigate-down"
	Indent       Name = "indent"
	Dedent       Name = "dedent"
	MoveUp       Name = "move-up"
	MoveDown     Name = "move-down"
	AddSibling   Name = "add-sibling"
	AddChild     Name = "add-child"
	Edit         Name = "edit"
	Remove       Name = "remove"
)

var names = []Name{NavigateUp, NavigateDown, Indent, Dedent, MoveUp, MoveDown, AddSibling, AddChild, Edit, Remove}

var (
	// ErrUnknown is returned for a command name that is not registered.
	ErrUnknown = errors.New("command: unknown command")
	// ErrNoCursor is returned by commands that act on the cursor node when
	// nothing is selected.
	ErrNoCursor = errors.New("command: no node selected")
)

// Names lists every command in a stable order.
func Names() []Name {
	return append([]Name(nil), names...)
}

// Parse validates a command name.
func Parse(s string) (Name, error) {
	for _, n := range names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, s)
}

// Structural reports whether the command reshapes the tree and so runs as a
// structural batch.
func (n Name) Structural() bool {
	switch n {
	case Indent, Dedent, MoveUp, MoveDown:
		return true
	}
	return false
}

// Outcome reports where the cursor ended up and how the batch went.
// Navigation commands always report Committed. Changed lists the nodes whose
// text index entries were written or removed.
type Outcome struct {
	Cursor  string
	Result  txn.Result
	Changed []string
}

// Dispatcher runs commands against one tree.
type Dispatcher struct {
	coord *txn.Coordinator
	tree  *tree.Tree
	newID func() string

	mu     sync.Mutex
	cursor string
}

// New returns a dispatcher with no cursor.
func New(coord *txn.Coordinator, t *tree.Tree, newID func() string) *Dispatcher {
	return &Dispatcher{coord: coord, tree: t, newID: newID}
}

// Cursor returns the selected node id.
func (d *Dispatcher) Cursor() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// SetCursor selects a node.
func (d *Dispatcher) SetCursor(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cursor = id
}

// Dispatch runs the named command. arg is the node text for add-sibling,
// add-child and edit, and is ignored otherwise. Inconsistency and invalid
// argument errors from the tree are returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, name Name, arg string) (Outcome, error) {
	cursor := d.Cursor()
	out := Outcome{Cursor: cursor, Result: txn.Committed}

	switch name {
	case NavigateUp, NavigateDown:
		next, err := d.navigate(ctx, cursor, name == NavigateUp)
		if err != nil {
			return out, err
		}
		out.Cursor = next
	case Indent, Dedent, MoveUp, MoveDown:
		if cursor == "" {
			return out, ErrNoCursor
		}
		res, err := d.coord.RunStructural(ctx, func(ctx context.Context, b *txn.Batch) error {
			s := b.Session(d.tree)
			n := &tree.Node{ID: cursor}
			switch name {
			case Indent:
				return s.Indent(ctx, n)
			case Dedent:
				return s.Dedent(ctx, n)
			case MoveUp:
				return s.MovePrev(ctx, n)
			default:
				return s.MoveNext(ctx, n)
			}
		})
		out.Result = res
		if err != nil {
			return out, err
		}
	case AddSibling, AddChild:
		id := d.newID()
		res, err := d.coord.RunBatch(ctx, func(ctx context.Context, b *txn.Batch) error {
			s := b.Session(d.tree)
			n := &tree.Node{ID: id, Text: arg}
			if name == AddChild || cursor == "" {
				return s.AppendChild(ctx, cursor, n)
			}
			return s.AddNextSibling(ctx, &tree.Node{ID: cursor}, n)
		})
		out.Result = res
		if err != nil {
			return out, err
		}
		if res == txn.Committed {
			out.Cursor = id
			out.Changed = []string{id}
		}
	case Edit:
		if cursor == "" {
			return out, ErrNoCursor
		}
		res, err := d.coord.RunBatch(ctx, func(ctx context.Context, b *txn.Batch) error {
			return b.Session(d.tree).SetText(ctx, &tree.Node{ID: cursor}, arg)
		})
		out.Result = res
		if err != nil {
			return out, err
		}
		if res == txn.Committed {
			out.Changed = []string{cursor}
		}
	case Remove:
		if cursor == "" {
			return out, ErrNoCursor
		}
		next, err := d.afterRemoval(ctx, cursor)
		if err != nil {
			return out, err
		}
		res, err := d.coord.RunBatch(ctx, func(ctx context.Context, b *txn.Batch) error {
			return b.Session(d.tree).Remove(ctx, &tree.Node{ID: cursor})
		})
		out.Result = res
		if err != nil {
			return out, err
		}
		if res == txn.Committed {
			out.Cursor = next
			out.Changed = []string{cursor}
		}
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknown, name)
	}

	d.SetCursor(out.Cursor)
	return out, nil
}

func (d *Dispatcher) navigate(ctx context.Context, cursor string, up bool) (string, error) {
	s := d.tree.Session(nil)
	if cursor == "" {
		rows, err := s.Flatten(ctx, "")
		if err != nil || len(rows) == 0 {
			return "", err
		}
		if up {
			return rows[len(rows)-1].Node.ID, nil
		}
		return rows[0].Node.ID, nil
	}

	cur := &tree.Node{ID: cursor}
	var (
		next *tree.Node
		err  error
	)
	if up {
		next, err = s.Above(ctx, cur)
	} else {
		next, err = s.Below(ctx, cur)
	}
	if err != nil || next == nil {
		return cursor, err
	}
	return next.ID, nil
}

// afterRemoval picks the node the cursor lands on once cursor is removed:
// the node above it, else its next sibling.
func (d *Dispatcher) afterRemoval(ctx context.Context, cursor string) (string, error) {
	s := d.tree.Session(nil)
	cur := &tree.Node{ID: cursor}
	above, err := s.Above(ctx, cur)
	if err != nil {
		return "", err
	}
	if above != nil {
		return above.ID, nil
	}
	next, err := s.Next(ctx, cur)
	if err != nil || next == nil {
		return "", err
	}
	return next.ID, nil
}
