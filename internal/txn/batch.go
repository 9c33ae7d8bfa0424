package txn

import (
	"fmt"
	"sort"
	"time"

	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/ngram"
	"github.com/Paintersrp/lifelog/internal/tree"
)

// Batch is the write handle passed to a batch function. Every write staged
// through it is committed atomically with the batch's version token.
type Batch struct {
	docs        docstore.Batch
	now         time.Time
	collections map[string]struct{}
}

func newBatch(docs docstore.Batch, now time.Time) *Batch {
	return &Batch{docs: docs, now: now, collections: make(map[string]struct{})}
}

// Now is the timestamp applied to every node written in this batch.
func (b *Batch) Now() time.Time { return b.now }

// Set stages a raw document write.
func (b *Batch) Set(collection string, doc docstore.Document) {
	b.touch(collection)
	b.docs.Set(collection, doc)
}

// Delete stages a raw document delete.
func (b *Batch) Delete(collection, id string) {
	b.touch(collection)
	b.docs.Delete(collection, id)
}

// Len reports the number of staged writes.
func (b *Batch) Len() int { return b.docs.Len() }

// Session opens a tree session whose writes land in this batch.
func (b *Batch) Session(t *tree.Tree) *tree.Session {
	return t.Session(b.Sink(t.Name()))
}

// Sink returns a tree sink for collection. It stamps node timestamps and
// keeps the collection's n-gram index entries in step with node text.
func (b *Batch) Sink(collection string) tree.Sink {
	return &nodeSink{batch: b, nodes: tree.BatchSink{Batch: b.docs, Collection: collection}}
}

func (b *Batch) touch(collection string) {
	b.collections[collection] = struct{}{}
}

func (b *Batch) touched() []string {
	out := make([]string, 0, len(b.collections))
	for c := range b.collections {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type nodeSink struct {
	batch *Batch
	nodes tree.BatchSink
}

func (s *nodeSink) Put(n *tree.Node, reindex bool) error {
	now := s.batch.now
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	s.batch.touch(s.nodes.Collection)
	if err := s.nodes.Put(n, reindex); err != nil {
		return err
	}
	if !reindex {
		return nil
	}

	entry := ngram.NewEntry(s.nodes.Collection, n.ID, n.Text, now)
	doc, err := docstore.Encode(ngram.EntryID(s.nodes.Collection, n.ID), entry)
	if err != nil {
		return fmt.Errorf("txn: indexing %s: %w", n.ID, err)
	}
	s.batch.Set(ngram.Collection, doc)
	return nil
}

func (s *nodeSink) Delete(n *tree.Node) error {
	s.batch.touch(s.nodes.Collection)
	if err := s.nodes.Delete(n); err != nil {
		return err
	}
	s.batch.Delete(ngram.Collection, ngram.EntryID(s.nodes.Collection, n.ID))
	return nil
}
