package txn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/ngram"
	"github.com/Paintersrp/lifelog/internal/tree"
)

const nodes = "lifelogs"

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
}

func newTestCoordinator(t *testing.T, store docstore.Store, opts ...Option) (*Coordinator, *tree.Tree) {
	t.Helper()
	opts = append([]Option{WithNow(fixedNow), WithOrigin("test")}, opts...)
	c := New(store, opts...)
	return c, tree.New(tree.NewDocs(store, nodes), tree.OrderKey)
}

func TestRunBatchCommitsNodesIndexAndToken(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, tr := newTestCoordinator(t, store)
	ctx := context.Background()

	res, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).AddSingle(ctx, "", &tree.Node{ID: "n1", Text: "Hello"})
	})
	if err != nil || res != Committed {
		t.Fatalf("RunBatch = %v, %v", res, err)
	}
	if c.State() != Idle {
		t.Fatalf("expected coordinator to be idle after commit")
	}

	n, err := tr.Session(nil).Get(ctx, "n1")
	if err != nil || n == nil {
		t.Fatalf("expected committed node, got %v err=%v", n, err)
	}
	if !n.CreatedAt.Equal(fixedNow()) || !n.UpdatedAt.Equal(fixedNow()) {
		t.Fatalf("expected timestamps to be stamped, got %v / %v", n.CreatedAt, n.UpdatedAt)
	}

	doc, ok, err := store.Get(ctx, ngram.Collection, ngram.EntryID(nodes, "n1"))
	if err != nil || !ok {
		t.Fatalf("expected index entry, ok=%v err=%v", ok, err)
	}
	var entry ngram.Entry
	if err := doc.Decode(&entry); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if entry.NormalizedText != "hello" || !entry.NgramMap["he"] {
		t.Fatalf("unexpected index entry %+v", entry)
	}

	head, err := Head(ctx, store)
	if err != nil {
		t.Fatalf("Head returned error: %v", err)
	}
	if head == "" || head != c.Versions().Last() || !c.Versions().IsOwn(head) {
		t.Fatalf("unexpected head %q (last %q)", head, c.Versions().Last())
	}

	res, err = c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).SetText(ctx, &tree.Node{ID: "n1"}, "World")
	})
	if err != nil || res != Committed {
		t.Fatalf("second RunBatch = %v, %v", res, err)
	}
	second, _ := Head(ctx, store)
	if second <= head {
		t.Fatalf("expected token %q to sort after %q", second, head)
	}
	tokDoc, ok, err := store.Get(ctx, VersionCollection, second)
	if err != nil || !ok {
		t.Fatalf("expected token document, ok=%v err=%v", ok, err)
	}
	var tok Token
	if err := tokDoc.Decode(&tok); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if tok.Prev != head || tok.Origin != "test" {
		t.Fatalf("expected token linked to %q, got %+v", head, tok)
	}
}

func TestInsertIgnoresCallerCreatedAt(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, tr := newTestCoordinator(t, store)
	ctx := context.Background()

	forged := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).AddSingle(ctx, "", &tree.Node{ID: "n1", Text: "Hello", CreatedAt: forged})
	})
	if err != nil || res != Committed {
		t.Fatalf("RunBatch = %v, %v", res, err)
	}

	n, err := tr.Session(nil).Get(ctx, "n1")
	if err != nil || n == nil {
		t.Fatalf("expected committed node, got %v err=%v", n, err)
	}
	if !n.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("expected createdAt %v, got %v", fixedNow(), n.CreatedAt)
	}

	res, err = c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).SetText(ctx, &tree.Node{ID: "n1", CreatedAt: forged}, "World")
	})
	if err != nil || res != Committed {
		t.Fatalf("SetText RunBatch = %v, %v", res, err)
	}
	n, _ = tr.Session(nil).Get(ctx, "n1")
	if !n.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("expected createdAt to survive an edit, got %v", n.CreatedAt)
	}
}

func TestRemoveDeletesIndexEntry(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, tr := newTestCoordinator(t, store)
	ctx := context.Background()

	if _, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).AddSingle(ctx, "", &tree.Node{ID: "n1", Text: "bye now"})
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).Remove(ctx, &tree.Node{ID: "n1"})
	}); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if _, ok, _ := store.Get(ctx, ngram.Collection, ngram.EntryID(nodes, "n1")); ok {
		t.Fatalf("expected index entry to be deleted with the node")
	}
}

func TestConcurrentBatchesRunOnlyOne(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, _ := newTestCoordinator(t, store)
	ctx := context.Background()

	var counter atomic.Int32
	entered := make(chan struct{})
	proceed := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var first Result
	go func() {
		defer wg.Done()
		first, _ = c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
			counter.Add(1)
			close(entered)
			<-proceed
			return nil
		})
	}()

	<-entered
	if c.State() != InFlight {
		t.Fatalf("expected in-flight state while batch runs")
	}
	second, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		counter.Add(1)
		return nil
	})
	if err != nil || second != Dropped {
		t.Fatalf("expected second batch to be dropped, got %v, %v", second, err)
	}

	close(proceed)
	wg.Wait()
	if first != Committed {
		t.Fatalf("expected first batch to commit, got %v", first)
	}
	if counter.Load() != 1 {
		t.Fatalf("expected exactly one batch body to run, got %d", counter.Load())
	}
}

func TestQueuePolicyRunsBothBatches(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, _ := newTestCoordinator(t, store, WithPolicy(QueueWhenBusy))
	ctx := context.Background()

	var counter atomic.Int32
	entered := make(chan struct{})
	proceed := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
			counter.Add(1)
			close(entered)
			<-proceed
			return nil
		})
	}()
	<-entered
	go func() {
		defer wg.Done()
		res, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
			counter.Add(1)
			return nil
		})
		if err != nil || res != Committed {
			t.Errorf("queued batch = %v, %v", res, err)
		}
	}()

	close(proceed)
	wg.Wait()
	if counter.Load() != 2 {
		t.Fatalf("expected both batch bodies to run, got %d", counter.Load())
	}

	blocked := make(chan struct{})
	go func() {
		_, _ = c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
			close(blocked)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-blocked
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	res, err := c.RunBatch(short, func(ctx context.Context, b *Batch) error { return nil })
	if res != Dropped || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected queued batch to give up with its context, got %v, %v", res, err)
	}
	c.Abort()
}

func TestAbortBeforeCommit(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, tr := newTestCoordinator(t, store)
	ctx := context.Background()

	started := make(chan struct{})
	go func() {
		<-started
		if !c.Abort() {
			t.Errorf("expected Abort to find an in-flight batch")
		}
	}()

	res, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		if err := b.Session(tr).AddSingle(ctx, "", &tree.Node{ID: "lost"}); err != nil {
			return err
		}
		close(started)
		<-ctx.Done()
		return context.Cause(ctx)
	})
	if err != nil || res != Aborted {
		t.Fatalf("expected clean abort, got %v, %v", res, err)
	}
	if c.State() != Idle {
		t.Fatalf("expected idle state after abort")
	}
	if n, _ := tr.Session(nil).Get(ctx, "lost"); n != nil {
		t.Fatalf("aborted batch must not write")
	}
	if c.Abort() {
		t.Fatalf("expected Abort to be a no-op when idle")
	}
}

type gatedStore struct {
	*docstore.Memory
	started chan struct{}
	release chan struct{}
}

func (g *gatedStore) Batch() docstore.Batch {
	return &gatedBatch{Batch: g.Memory.Batch(), store: g}
}

type gatedBatch struct {
	docstore.Batch
	store *gatedStore
}

func (b *gatedBatch) Commit(ctx context.Context) error {
	close(b.store.started)
	<-b.store.release
	return b.Batch.Commit(ctx)
}

func TestAbortDuringCommitResolvesEarly(t *testing.T) {
	store := &gatedStore{Memory: docstore.NewMemory(), started: make(chan struct{}), release: make(chan struct{})}
	defer store.Close()
	c, tr := newTestCoordinator(t, store)
	ctx := context.Background()

	go func() {
		<-store.started
		c.Abort()
	}()

	res, err := c.RunStructural(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).AddSingle(ctx, "", &tree.Node{ID: "late"})
	})
	if err != nil || res != Aborted {
		t.Fatalf("expected early abort, got %v, %v", res, err)
	}
	if c.State() != InFlight || !c.Clock().Raised() {
		t.Fatalf("expected gate and clock held until the commit settles")
	}
	if again, _ := c.RunBatch(ctx, func(context.Context, *Batch) error { return nil }); again != Dropped {
		t.Fatalf("expected new batches to be dropped while commit settles, got %v", again)
	}

	close(store.release)
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatalf("coordinator never returned to idle")
		}
		time.Sleep(time.Millisecond)
	}
	if c.Clock().Raised() {
		t.Fatalf("expected clock to be lowered after commit settled")
	}
}

func TestFailedBatchWritesNothing(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, tr := newTestCoordinator(t, store)
	ctx := context.Background()

	boom := errors.New("boom")
	res, err := c.RunStructural(ctx, func(ctx context.Context, b *Batch) error {
		if err := b.Session(tr).AddSingle(ctx, "", &tree.Node{ID: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) || res != Failed {
		t.Fatalf("expected failure, got %v, %v", res, err)
	}
	if c.State() != Idle || c.Clock().Raised() {
		t.Fatalf("expected idle, lowered coordinator after failure")
	}
	if n, _ := tr.Session(nil).Get(ctx, "x"); n != nil {
		t.Fatalf("failed batch must not write")
	}
	if head, _ := Head(ctx, store); head != "" {
		t.Fatalf("failed batch must not write a token, got %q", head)
	}
}

func TestRunStructuralRaisesClock(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	c, tr := newTestCoordinator(t, store)
	ctx := context.Background()

	if _, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		s := b.Session(tr)
		if err := s.AddSingle(ctx, "", &tree.Node{ID: "a"}); err != nil {
			return err
		}
		return s.AddNextSibling(ctx, &tree.Node{ID: "a"}, &tree.Node{ID: "b"})
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if c.Clock().Raised() {
		t.Fatalf("plain batches must not raise the clock")
	}

	sub := store.Subscribe(ctx, tree.ChildrenQuery(nodes, "a"))
	defer sub.Close()
	<-sub.C

	var raisedInside bool
	res, err := c.RunStructural(ctx, func(ctx context.Context, b *Batch) error {
		raisedInside = c.Clock().Raised()
		return b.Session(tr).Indent(ctx, &tree.Node{ID: "b"})
	})
	if err != nil || res != Committed {
		t.Fatalf("RunStructural = %v, %v", res, err)
	}
	if !raisedInside {
		t.Fatalf("expected clock raised while the batch ran")
	}
	if c.Clock().Raised() {
		t.Fatalf("expected clock lowered after RunStructural returned")
	}

	select {
	case docs := <-sub.C:
		if len(docs) != 1 || docs[0].ID != "b" {
			t.Fatalf("unexpected settled snapshot %+v", docs)
		}
	default:
		t.Fatalf("expected subscribers to hold the settled snapshot before the clock dropped")
	}
}

type recordingAnnouncer struct {
	mu          sync.Mutex
	tokens      []Token
	collections [][]string
}

func (r *recordingAnnouncer) Announce(_ context.Context, tok Token, collections []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, tok)
	r.collections = append(r.collections, collections)
	return nil
}

func TestAnnouncerReceivesCommittedTokens(t *testing.T) {
	store := docstore.NewMemory()
	defer store.Close()
	ann := &recordingAnnouncer{}
	c, tr := newTestCoordinator(t, store, WithAnnouncer(ann))
	ctx := context.Background()

	if _, err := c.RunBatch(ctx, func(ctx context.Context, b *Batch) error {
		return b.Session(tr).AddSingle(ctx, "", &tree.Node{ID: "a", Text: "hi"})
	}); err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(ann.tokens) != 1 || ann.tokens[0].ID != c.Versions().Last() {
		t.Fatalf("unexpected announcements %+v", ann.tokens)
	}
	got := ann.collections[0]
	if len(got) != 2 || got[0] != nodes || got[1] != ngram.Collection {
		t.Fatalf("unexpected announced collections %v", got)
	}
}

func TestTokensAreMonotonic(t *testing.T) {
	v := newVersions("o")
	now := fixedNow()
	a := v.mint(now, "")
	b := v.mint(now, a.ID)
	c := v.mint(now.Add(-time.Hour), b.ID)
	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Fatalf("tokens not increasing: %s %s %s", a.ID, b.ID, c.ID)
	}
	if len(a.ID) != len(c.ID) {
		t.Fatalf("tokens should be fixed width: %s %s", a.ID, c.ID)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("queue"); err != nil || p != QueueWhenBusy {
		t.Fatalf("unexpected policy %v err=%v", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != DropWhenBusy {
		t.Fatalf("expected drop default, got %v err=%v", p, err)
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
