package tree

import (
	"context"
	"fmt"

	"github.com/Paintersrp/lifelog/internal/docstore"
)

// Docs is a Collection backed by a document store.
type Docs struct {
	store docstore.Store
	name  string
}

// NewDocs returns a Collection reading collection name from store.
func NewDocs(store docstore.Store, name string) *Docs {
	return &Docs{store: store, name: name}
}

func (d *Docs) Name() string { return d.name }

func (d *Docs) Get(ctx context.Context, id string) (*Node, error) {
	doc, ok, err := d.store.Get(ctx, d.name, id)
	if err != nil || !ok {
		return nil, err
	}
	return Decode(doc)
}

func (d *Docs) Children(ctx context.Context, parentID string) ([]*Node, error) {
	return d.find(ctx, ChildrenQuery(d.name, parentID))
}

func (d *Docs) All(ctx context.Context) ([]*Node, error) {
	return d.find(ctx, docstore.Query{Collection: d.name})
}

func (d *Docs) find(ctx context.Context, q docstore.Query) ([]*Node, error) {
	docs, err := d.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	return DecodeAll(docs)
}

// DecodeAll decodes every document as a node.
func DecodeAll(docs []docstore.Document) ([]*Node, error) {
	out := make([]*Node, 0, len(docs))
	for _, doc := range docs {
		n, err := Decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ChildrenQuery selects the children of parentID.
func ChildrenQuery(collection, parentID string) docstore.Query {
	return docstore.Query{
		Collection: collection,
		Where:      []docstore.Filter{docstore.Where("parentId", parentID)},
	}
}

// BatchSink stages node writes into a document batch.
type BatchSink struct {
	Batch      docstore.Batch
	Collection string
}

func (b BatchSink) Put(n *Node, _ bool) error {
	doc, err := n.Encode()
	if err != nil {
		return fmt.Errorf("tree: encoding %s: %w", n.ID, err)
	}
	b.Batch.Set(b.Collection, doc)
	return nil
}

func (b BatchSink) Delete(n *Node) error {
	b.Batch.Delete(b.Collection, n.ID)
	return nil
}
