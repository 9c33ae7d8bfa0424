// Package docstore is the persistence layer for lifelog: a document store of
// JSON objects grouped into collections, with atomic batches and live query
// subscriptions. Memory, SQLite and Postgres implementations share the same
// query semantics.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// ErrClosed is returned by stores and batches used after Close.
var ErrClosed = errors.New("docstore: store closed")

// ErrInvalidQuery is returned for malformed queries and field names.
var ErrInvalidQuery = errors.New("docstore: invalid query")

// ErrBatchUsed is returned when a batch is committed twice.
var ErrBatchUsed = errors.New("docstore: batch already committed")

// Document is a single stored JSON object.
type Document struct {
	ID   string
	Data []byte
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("docstore: decoding %s: %w", d.ID, err)
	}
	return nil
}

// Encode builds a document from a JSON-serializable value.
func Encode(id string, v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("docstore: encoding %s: %w", id, err)
	}
	return Document{ID: id, Data: data}, nil
}

// Op is a comparison operator used in filters.
type Op string

const (
	Eq  Op = "=="
	Ne  Op = "!="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

// Filter compares a top-level string field against a value. Missing fields
// compare as the empty string.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Where is shorthand for an equality filter.
func Where(field, value string) Filter {
	return Filter{Field: field, Op: Eq, Value: value}
}

// Query selects documents from one collection. Results are ordered by
// OrderBy (byte order) and then by id; without OrderBy they are ordered by id.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Store is a collection-oriented document database.
type Store interface {
	// Get returns the document or false when it does not exist.
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	// Batch opens a write unit. Nothing is visible until Commit succeeds.
	Batch() Batch
	// Subscribe emits the query result now and after every change to the
	// query's collection until ctx is done or the subscription is closed.
	Subscribe(ctx context.Context, q Query) *Subscription
	// Notify refreshes subscriptions after changes made by another process.
	Notify(collections ...string)
	// Collections lists every collection holding at least one document.
	Collections(ctx context.Context) ([]string, error)
	Close() error
}

// Batch accumulates writes that are applied atomically on Commit.
type Batch interface {
	Set(collection string, doc Document)
	Delete(collection, id string)
	// Commit applies every staged write or none of them. Subscriptions on
	// the touched collections are refreshed before Commit returns.
	Commit(ctx context.Context) error
	// Done is closed once Commit has finished, successfully or not.
	Done() <-chan struct{}
	// Len reports the number of staged writes.
	Len() int
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the query for unsupported operators and field names.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: missing collection", ErrInvalidQuery)
	}
	if q.OrderBy != "" && !fieldName.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: order field %q", ErrInvalidQuery, q.OrderBy)
	}
	for _, f := range q.Where {
		if !fieldName.MatchString(f.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
		switch f.Op {
		case Eq, Ne, Lt, Lte, Gt, Gte:
		default:
			return fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

type op struct {
	collection string
	id         string
	data       []byte
	delete     bool
}

type staged struct {
	ops  []op
	done chan struct{}
	used bool
}

func newStaged() staged {
	return staged{done: make(chan struct{})}
}

func (s *staged) set(collection string, doc Document) {
	data := append([]byte(nil), doc.Data...)
	s.ops = append(s.ops, op{collection: collection, id: doc.ID, data: data})
}

func (s *staged) del(collection, id string) {
	s.ops = append(s.ops, op{collection: collection, id: id, delete: true})
}

func (s *staged) collections() []string {
	seen := make(map[string]struct{}, len(s.ops))
	out := make([]string, 0, len(s.ops))
	for _, o := range s.ops {
		if _, ok := seen[o.collection]; ok {
			continue
		}
		seen[o.collection] = struct{}{}
		out = append(out, o.collection)
	}
	return out
}

func (s *staged) begin() error {
	if s.used {
		return ErrBatchUsed
	}
	s.used = true
	return nil
}

func (s *staged) finish() {
	close(s.done)
}

// fields decodes the top-level string fields of a document. Non-string
// values are ignored and therefore compare as the empty string.
func fields(data []byte) map[string]string {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (f Filter) match(values map[string]string) bool {
	v := values[f.Field]
	c := strings.Compare(v, f.Value)
	switch f.Op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	}
	return false
}

// apply filters and orders documents in memory using the same rules the SQL
// stores push down to the database.
func (q Query) apply(docs []Document) []Document {
	type row struct {
		doc    Document
		values map[string]string
	}

	rows := make([]row, 0, len(docs))
outer:
	for _, d := range docs {
		values := fields(d.Data)
		for _, f := range q.Where {
			if !f.match(values) {
				continue outer
			}
		}
		rows = append(rows, row{doc: d, values: values})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if q.OrderBy != "" {
			if c := strings.Compare(a.values[q.OrderBy], b.values[q.OrderBy]); c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Desc {
			return a.doc.ID > b.doc.ID
		}
		return a.doc.ID < b.doc.ID
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = r.doc
	}
	return out
}
