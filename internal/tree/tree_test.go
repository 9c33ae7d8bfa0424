package tree

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Paintersrp/lifelog/internal/docstore"
)

const testCollection = "nodes"

type harness struct {
	t     testing.TB
	store *docstore.Memory
	tree  *Tree
}

func newHarness(t testing.TB, order Ordering) *harness {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	return &harness{t: t, store: store, tree: New(NewDocs(store, testCollection), order)}
}

// mutate runs fn in one batch and commits it only when fn succeeds.
func (h *harness) mutate(fn func(ctx context.Context, s *Session) error) error {
	ctx := context.Background()
	b := h.store.Batch()
	s := h.tree.Session(BatchSink{Batch: b, Collection: testCollection})
	if err := fn(ctx, s); err != nil {
		return err
	}
	return b.Commit(ctx)
}

func (h *harness) mustMutate(fn func(ctx context.Context, s *Session) error) {
	h.t.Helper()
	if err := h.mutate(fn); err != nil {
		h.t.Fatalf("mutation failed: %v", err)
	}
}

func (h *harness) node(id string) *Node {
	h.t.Helper()
	n, err := h.tree.Session(nil).Get(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Get(%s) returned error: %v", id, err)
	}
	if n == nil {
		h.t.Fatalf("node %s not found", id)
	}
	return n
}

// shape renders the forest as "a[b c] d".
func (h *harness) shape() string {
	h.t.Helper()
	s := h.tree.Session(nil)
	var render func(parentID string) string
	render = func(parentID string) string {
		kids, err := s.Children(context.Background(), parentID)
		if err != nil {
			h.t.Fatalf("Children(%q) returned error: %v", parentID, err)
		}
		parts := make([]string, len(kids))
		for i, k := range kids {
			parts[i] = k.ID
			if inner := render(k.ID); inner != "" {
				parts[i] += "[" + inner + "]"
			}
		}
		return strings.Join(parts, " ")
	}
	return render("")
}

func (h *harness) expectShape(want string) {
	h.t.Helper()
	if got := h.shape(); got != want {
		h.t.Fatalf("unexpected tree shape: got %q, want %q", got, want)
	}
	if err := h.tree.Session(nil).Check(context.Background()); err != nil {
		h.t.Fatalf("Check returned error: %v", err)
	}
}

// seed builds the forest described by pairs of (id, parent) in order.
func (h *harness) seed(pairs ...string) {
	h.t.Helper()
	h.mustMutate(func(ctx context.Context, s *Session) error {
		for i := 0; i < len(pairs); i += 2 {
			if err := s.AppendChild(ctx, pairs[i+1], &Node{ID: pairs[i], Text: pairs[i]}); err != nil {
				return err
			}
		}
		return nil
	})
}

func forEachOrdering(t *testing.T, fn func(t *testing.T, h *harness)) {
	for _, order := range []Ordering{OrderKey, LinkedList} {
		t.Run(order.Name(), func(t *testing.T) {
			fn(t, newHarness(t, order))
		})
	}
}

func TestInsertions(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.AddSingle(ctx, "", &Node{ID: "a"})
		})
		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.AddNextSibling(ctx, &Node{ID: "a"}, &Node{ID: "c"})
		})
		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.AddNextSibling(ctx, &Node{ID: "a"}, &Node{ID: "b"})
		})
		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.AddPrevSibling(ctx, &Node{ID: "a"}, &Node{ID: "z"})
		})
		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.AddSingle(ctx, "b", &Node{ID: "b1", Text: "child"})
		})
		h.expectShape("z a b[b1] c")

		if got := h.node("b1"); got.Text != "child" || got.ParentID != "b" {
			t.Fatalf("unexpected child %+v", got)
		}
	})
}

func TestInsertRejectsInvalidArguments(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.seed("a", "", "a1", "a")

		tests := []struct {
			name string
			fn   func(ctx context.Context, s *Session) error
		}{
			{"empty id", func(ctx context.Context, s *Session) error {
				return s.AddNextSibling(ctx, &Node{ID: "a"}, &Node{})
			}},
			{"nil node", func(ctx context.Context, s *Session) error {
				return s.AppendChild(ctx, "", nil)
			}},
			{"duplicate id", func(ctx context.Context, s *Session) error {
				return s.AddPrevSibling(ctx, &Node{ID: "a"}, &Node{ID: "a1"})
			}},
			{"single into populated parent", func(ctx context.Context, s *Session) error {
				return s.AddSingle(ctx, "a", &Node{ID: "x"})
			}},
		}
		for _, tt := range tests {
			err := h.mutate(tt.fn)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("%s: expected ErrInvalidArgument, got %v", tt.name, err)
			}
		}
		h.expectShape("a[a1]")
	})
}

func TestIndentAndDedent(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.seed("a", "", "b", "", "c", "", "a1", "a")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Indent(ctx, &Node{ID: "a"})
		})
		h.expectShape("a[a1] b c")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Indent(ctx, &Node{ID: "b"})
		})
		h.expectShape("a[a1 b] c")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Indent(ctx, &Node{ID: "b"})
		})
		h.expectShape("a[a1[b]] c")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Dedent(ctx, &Node{ID: "b"})
		})
		h.expectShape("a[a1 b] c")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Dedent(ctx, &Node{ID: "a1"})
		})
		h.expectShape("a[b] a1 c")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Dedent(ctx, &Node{ID: "c"})
		})
		h.expectShape("a[b] a1 c")
	})
}

func TestDedentIgnoresParentOutsideCollection(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.seed("x", "elsewhere")
		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Dedent(ctx, &Node{ID: "x"})
		})
		if got := h.node("x"); got.ParentID != "elsewhere" {
			t.Fatalf("expected node to stay under foreign parent, got %q", got.ParentID)
		}
		parent, err := h.tree.Session(nil).Parent(context.Background(), &Node{ID: "x"})
		if err != nil || parent != nil {
			t.Fatalf("expected nil parent for foreign reference, got %v err=%v", parent, err)
		}
	})
}

func TestIndentThenDedentRestoresParent(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.seed("p", "", "a", "p", "b", "p", "c", "p")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Indent(ctx, &Node{ID: "b"})
		})
		if got := h.node("b").ParentID; got != "a" {
			t.Fatalf("expected b under a, got %q", got)
		}
		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Dedent(ctx, &Node{ID: "b"})
		})
		if got := h.node("b").ParentID; got != "p" {
			t.Fatalf("expected b back under p, got %q", got)
		}
		h.expectShape("p[a b c]")
	})
}

func TestMoves(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.seed("a", "", "b", "", "c", "")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.MovePrev(ctx, &Node{ID: "c"})
		})
		h.expectShape("a c b")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.MovePrev(ctx, &Node{ID: "c"})
		})
		h.expectShape("c a b")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.MovePrev(ctx, &Node{ID: "c"})
		})
		h.expectShape("c a b")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.MoveNext(ctx, &Node{ID: "a"})
		})
		h.expectShape("c b a")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.MoveNext(ctx, &Node{ID: "a"})
		})
		h.expectShape("c b a")
	})
}

func TestOrderKeyRewritesOnlyMovedNode(t *testing.T) {
	h := newHarness(t, OrderKey)
	h.seed("a", "", "b", "", "c", "", "d", "")

	before := map[string]string{}
	for _, id := range []string{"a", "b", "c", "d"} {
		before[id] = h.node(id).Order
	}

	h.mustMutate(func(ctx context.Context, s *Session) error {
		return s.MovePrev(ctx, &Node{ID: "c"})
	})

	for _, id := range []string{"a", "b", "d"} {
		if got := h.node(id).Order; got != before[id] {
			t.Fatalf("order key of %s changed from %q to %q", id, before[id], got)
		}
	}
	moved := h.node("c").Order
	if !(before["a"] < moved && moved < before["b"]) {
		t.Fatalf("moved key %q not between %q and %q", moved, before["a"], before["b"])
	}
}

func TestRemove(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.seed("a", "", "b", "", "c", "", "b1", "b")

		err := h.mutate(func(ctx context.Context, s *Session) error {
			return s.Remove(ctx, &Node{ID: "b"})
		})
		var structural *StructuralError
		if !errors.As(err, &structural) || !errors.Is(err, ErrHasChildren) {
			t.Fatalf("expected StructuralError wrapping ErrHasChildren, got %v", err)
		}
		if structural.Node.ID != "b" {
			t.Fatalf("expected error to carry node b, got %q", structural.Node.ID)
		}
		h.expectShape("a b[b1] c")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			if err := s.Remove(ctx, &Node{ID: "b1"}); err != nil {
				return err
			}
			return s.Remove(ctx, &Node{ID: "b"})
		})
		h.expectShape("a c")

		h.mustMutate(func(ctx context.Context, s *Session) error {
			return s.Remove(ctx, &Node{ID: "a"})
		})
		h.expectShape("c")
	})
}

func TestNavigation(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		// a
		//   a1
		//     a1x
		//   a2
		// b
		h.seed("a", "", "b", "", "a1", "a", "a2", "a", "a1x", "a1")
		ctx := context.Background()
		s := h.tree.Session(nil)

		id := func(n *Node, err error) string {
			t.Helper()
			if err != nil {
				t.Fatalf("navigation returned error: %v", err)
			}
			if n == nil {
				return ""
			}
			return n.ID
		}
		ref := func(id string) *Node { return &Node{ID: id} }

		checks := []struct {
			name string
			got  string
			want string
		}{
			{"prev of a2", id(s.Prev(ctx, ref("a2"))), "a1"},
			{"prev of a", id(s.Prev(ctx, ref("a"))), ""},
			{"next of a", id(s.Next(ctx, ref("a"))), "b"},
			{"next of b", id(s.Next(ctx, ref("b"))), ""},
			{"parent of a1x", id(s.Parent(ctx, ref("a1x"))), "a1"},
			{"parent of a", id(s.Parent(ctx, ref("a"))), ""},
			{"first child of a", id(s.FirstChild(ctx, ref("a"))), "a1"},
			{"last child of a", id(s.LastChild(ctx, ref("a"))), "a2"},
			{"last child of b", id(s.LastChild(ctx, ref("b"))), ""},
			{"bottom inclusive of a", id(s.BottomInclusive(ctx, ref("a"))), "a2"},
			{"bottom inclusive of b", id(s.BottomInclusive(ctx, ref("b"))), "b"},
			{"bottom exclusive of a1", id(s.BottomExclusive(ctx, ref("a1"))), "a1x"},
			{"bottom exclusive of b", id(s.BottomExclusive(ctx, ref("b"))), ""},
			{"above a2", id(s.Above(ctx, ref("a2"))), "a1x"},
			{"above a1", id(s.Above(ctx, ref("a1"))), "a"},
			{"above b", id(s.Above(ctx, ref("b"))), "a2"},
			{"above a", id(s.Above(ctx, ref("a"))), ""},
			{"below a", id(s.Below(ctx, ref("a"))), "a1"},
			{"below a1x", id(s.Below(ctx, ref("a1x"))), "a2"},
			{"below a2", id(s.Below(ctx, ref("a2"))), "b"},
			{"below b", id(s.Below(ctx, ref("b"))), ""},
		}
		for _, c := range checks {
			if c.got != c.want {
				t.Fatalf("%s: got %q, want %q", c.name, c.got, c.want)
			}
		}

		rows, err := s.Flatten(ctx, "")
		if err != nil {
			t.Fatalf("Flatten returned error: %v", err)
		}
		var flat []string
		for _, r := range rows {
			flat = append(flat, strings.Repeat(">", r.Depth)+r.Node.ID)
		}
		if got := strings.Join(flat, " "); got != "a >a1 >>a1x >a2 b" {
			t.Fatalf("unexpected flatten order %q", got)
		}

		if _, err := s.Prev(ctx, ref("ghost")); !errors.Is(err, ErrInconsistent) {
			t.Fatalf("expected inconsistency for unknown node, got %v", err)
		}
	})
}

func TestBatchSeesItsOwnWrites(t *testing.T) {
	forEachOrdering(t, func(t *testing.T, h *harness) {
		h.mustMutate(func(ctx context.Context, s *Session) error {
			if err := s.AddSingle(ctx, "", &Node{ID: "a"}); err != nil {
				return err
			}
			if err := s.AddNextSibling(ctx, &Node{ID: "a"}, &Node{ID: "b"}); err != nil {
				return err
			}
			if err := s.AddNextSibling(ctx, &Node{ID: "b"}, &Node{ID: "c"}); err != nil {
				return err
			}
			if err := s.Indent(ctx, &Node{ID: "b"}); err != nil {
				return err
			}
			if err := s.Indent(ctx, &Node{ID: "c"}); err != nil {
				return err
			}
			return s.SetText(ctx, &Node{ID: "c"}, "third")
		})
		h.expectShape("a[b c]")
		if got := h.node("c").Text; got != "third" {
			t.Fatalf("unexpected text %q", got)
		}
	})
}

func TestReadOnlySession(t *testing.T) {
	h := newHarness(t, OrderKey)
	h.seed("a", "")
	s := h.tree.Session(nil)
	ctx := context.Background()

	if err := s.AppendChild(ctx, "", &Node{ID: "b"}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := s.Indent(ctx, &Node{ID: "a"}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := s.SetText(ctx, &Node{ID: "a"}, "x"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func writeRaw(t *testing.T, store docstore.Store, nodes ...Node) {
	t.Helper()
	b := store.Batch()
	for i := range nodes {
		doc, err := nodes[i].Encode()
		if err != nil {
			t.Fatalf("Encode returned error: %v", err)
		}
		b.Set(testCollection, doc)
	}
	if err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
}

func TestLinkedListInconsistencies(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  string
	}{
		{
			name:  "two heads",
			nodes: []Node{{ID: "a", NextID: "b"}, {ID: "b"}, {ID: "c"}},
			want:  "multiple first siblings",
		},
		{
			name:  "asymmetric link",
			nodes: []Node{{ID: "a", NextID: "b"}, {ID: "b", PrevID: "c"}, {ID: "c", NextID: "x"}},
			want:  "",
		},
		{
			name:  "dangling next",
			nodes: []Node{{ID: "a", NextID: "ghost"}, {ID: "b", PrevID: "a"}},
			want:  "missing or under another parent",
		},
		{
			name:  "no head",
			nodes: []Node{{ID: "a", PrevID: "b", NextID: "b"}, {ID: "b", PrevID: "a", NextID: "a"}},
			want:  "no first sibling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, LinkedList)
			writeRaw(t, h.store, tt.nodes...)

			_, err := h.tree.Session(nil).Children(context.Background(), "")
			var inc *InconsistencyError
			if !errors.As(err, &inc) || !errors.Is(err, ErrInconsistent) {
				t.Fatalf("expected InconsistencyError, got %v", err)
			}
			if len(inc.Nodes) == 0 {
				t.Fatalf("expected offending nodes in error")
			}
			if tt.want != "" && !strings.Contains(inc.Reason, tt.want) {
				t.Fatalf("unexpected reason %q, want %q", inc.Reason, tt.want)
			}

			err = h.mutate(func(ctx context.Context, s *Session) error {
				return s.AppendChild(ctx, "", &Node{ID: "new"})
			})
			if !errors.Is(err, ErrInconsistent) {
				t.Fatalf("expected mutation to surface inconsistency, got %v", err)
			}
		})
	}
}

func TestOrderKeyInconsistencies(t *testing.T) {
	h := newHarness(t, OrderKey)
	writeRaw(t, h.store, Node{ID: "a", Order: "a0"}, Node{ID: "b", Order: "a0"})

	err := h.tree.Session(nil).Check(context.Background())
	var inc *InconsistencyError
	if !errors.As(err, &inc) {
		t.Fatalf("expected InconsistencyError, got %v", err)
	}
	if len(inc.Nodes) != 2 {
		t.Fatalf("expected both nodes in error, got %+v", inc.Nodes)
	}
}

func TestOrderKeyRejectsMalformedKeys(t *testing.T) {
	for _, key := range []string{"a00", "0", "A00000000000000000000000000"} {
		h := newHarness(t, OrderKey)
		writeRaw(t, h.store, Node{ID: "a", Order: key})

		err := h.tree.Session(nil).Check(context.Background())
		var inc *InconsistencyError
		if !errors.As(err, &inc) || len(inc.Nodes) != 1 || inc.Nodes[0].ID != "a" {
			t.Fatalf("key %q: expected an inconsistency naming a, got %v", key, err)
		}
	}
}

func TestRowsFromDocuments(t *testing.T) {
	h := newHarness(t, OrderKey)
	writeRaw(t, h.store, Node{ID: "stale", Order: "a0"})

	var docs []docstore.Document
	for _, n := range []*Node{
		{ID: "c", ParentID: "a", Order: "a0"},
		{ID: "b", Order: "a1"},
		{ID: "a", Order: "a0"},
	} {
		doc, err := n.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		docs = append(docs, doc)
	}

	rows, err := h.tree.Rows(context.Background(), docs)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	var got []string
	for _, r := range rows {
		got = append(got, strings.Repeat(">", r.Depth)+r.Node.ID)
	}
	if strings.Join(got, " ") != "a >c b" {
		t.Fatalf("unexpected rows %v", got)
	}

	bad, _ := (&Node{ID: "d", Order: "a0"}).Encode()
	if _, err := h.tree.Rows(context.Background(), append(docs, bad)); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected duplicate order key to be reported, got %v", err)
	}
}

func TestParseOrdering(t *testing.T) {
	if o, err := ParseOrdering("linked-list"); err != nil || o != LinkedList {
		t.Fatalf("unexpected ordering %v err=%v", o, err)
	}
	if o, err := ParseOrdering(""); err != nil || o != OrderKey {
		t.Fatalf("expected order-key default, got %v err=%v", o, err)
	}
	if _, err := ParseOrdering("bogus"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
