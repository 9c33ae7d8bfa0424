// Package tree maintains ordered forests of list items (life-log entries,
// outline nodes, action-log items). Every node has a parent reference and a
// position among its siblings, encoded either as fractional order keys or as
// an explicit prev/next linked list. All reads and writes go through a
// Session so that a batch of mutations sees its own staged writes.
package tree

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Paintersrp/lifelog/internal/docstore"
)

// Node is a single list item. The JSON field names match documents written
// by every other lifelog client and must not change.
type Node struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId"`
	PrevID    string    `json:"prevId,omitempty"`
	NextID    string    `json:"nextId,omitempty"`
	Order     string    `json:"order,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// Encode converts the node into a store document.
func (n *Node) Encode() (docstore.Document, error) {
	return docstore.Encode(n.ID, n)
}

// Decode reads a node from a store document.
func Decode(doc docstore.Document) (*Node, error) {
	var n Node
	if err := doc.Decode(&n); err != nil {
		return nil, err
	}
	if n.ID == "" {
		n.ID = doc.ID
	}
	return &n, nil
}

var (
	// ErrInvalidArgument is returned before any write for malformed input
	// such as an empty or duplicate id.
	ErrInvalidArgument = errors.New("tree: invalid argument")

	// ErrHasChildren is the cause of a StructuralError raised when removing
	// a node that still has children.
	ErrHasChildren = errors.New("tree: node has children")

	// ErrReadOnly is returned by mutations on a session without a sink.
	ErrReadOnly = errors.New("tree: read-only session")

	// ErrInconsistent matches every InconsistencyError via errors.Is.
	ErrInconsistent = errors.New("tree: inconsistent")
)

// InconsistencyError reports stored data that violates the sibling
// invariants: dangling or asymmetric links, missing or duplicated boundary
// nodes, duplicated order keys. It is never repaired automatically.
type InconsistencyError struct {
	Collection string
	Reason     string
	Nodes      []Node
}

func (e *InconsistencyError) Error() string {
	ids := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		ids[i] = n.ID
	}
	return fmt.Sprintf("tree: inconsistent %s: %s [%s]", e.Collection, e.Reason, strings.Join(ids, ", "))
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}

func inconsistent(collection, reason string, nodes ...*Node) *InconsistencyError {
	e := &InconsistencyError{Collection: collection, Reason: reason}
	for _, n := range nodes {
		if n != nil {
			e.Nodes = append(e.Nodes, *n)
		}
	}
	return e
}

// StructuralError reports a mutation that would break the tree shape, such
// as removing a node that still has children.
type StructuralError struct {
	Op   string
	Node Node
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("tree: %s %s: %v", e.Op, e.Node.ID, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }
