package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name        string
	schema      []string
	placeholder func(n int) string
	field       func(name string) string
	collate     string
	upsert      string
}

// SQL is a Store backed by a database/sql connection. Documents live in a
// single table keyed by (collection, id).
type SQL struct {
	db      *sql.DB
	dialect dialect
	hub     *hub

	mu     sync.RWMutex
	closed bool
}

func newSQL(ctx context.Context, db *sql.DB, d dialect, logger *slog.Logger) (*SQL, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("docstore: %s schema: %w", d.name, err)
		}
	}
	s := &SQL{db: db, dialect: d}
	s.hub = newHub(s.Find, logger)
	return s, nil
}

func (s *SQL) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *SQL) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	if s.isClosed() {
		return Document{}, false, ErrClosed
	}

	query := fmt.Sprintf(
		"SELECT data FROM documents WHERE collection = %s AND id = %s",
		s.dialect.placeholder(1), s.dialect.placeholder(2),
	)
	var data string
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Data: []byte(data)}, true, nil
}

func (s *SQL) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	stmt, args := s.buildFind(q)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", q.Collection, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", q.Collection, err)
		}
		docs = append(docs, Document{ID: id, Data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", q.Collection, err)
	}
	return docs, nil
}

func (s *SQL) buildFind(q Query) (string, []any) {
	var b strings.Builder
	args := []any{q.Collection}

	b.WriteString("SELECT id, data FROM documents WHERE collection = ")
	b.WriteString(s.dialect.placeholder(1))
	for _, f := range q.Where {
		args = append(args, f.Value)
		op := string(f.Op)
		if f.Op == Eq {
			op = "="
		} else if f.Op == Ne {
			op = "<>"
		}
		fmt.Fprintf(&b, " AND %s%s %s %s", s.dialect.field(f.Field), s.dialect.collate, op, s.dialect.placeholder(len(args)))
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	b.WriteString(" ORDER BY ")
	if q.OrderBy != "" {
		fmt.Fprintf(&b, "%s%s %s, ", s.dialect.field(q.OrderBy), s.dialect.collate, dir)
	}
	fmt.Fprintf(&b, "id%s %s", s.dialect.collate, dir)

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args
}

func (s *SQL) Batch() Batch {
	return &sqlBatch{store: s, staged: newStaged()}
}

func (s *SQL) Subscribe(ctx context.Context, q Query) *Subscription {
	return s.hub.subscribe(ctx, q)
}

func (s *SQL) Notify(collections ...string) {
	s.hub.notify(context.Background(), collections)
}

// Collections lists every collection that holds at least one document.
func (s *SQL) Collections(ctx context.Context) ([]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, fmt.Errorf("docstore: list collections: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQL) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.closeAll()
	return s.db.Close()
}

type sqlBatch struct {
	store *SQL
	staged
}

func (b *sqlBatch) Set(collection string, doc Document) { b.set(collection, doc) }

func (b *sqlBatch) Delete(collection, id string) { b.del(collection, id) }

func (b *sqlBatch) Done() <-chan struct{} { return b.done }

func (b *sqlBatch) Len() int { return len(b.ops) }

func (b *sqlBatch) Commit(ctx context.Context) (err error) {
	if err := b.begin(); err != nil {
		return err
	}
	defer b.finish()

	s := b.store
	if s.isClosed() {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	del := fmt.Sprintf(
		"DELETE FROM documents WHERE collection = %s AND id = %s",
		s.dialect.placeholder(1), s.dialect.placeholder(2),
	)
	for _, o := range b.ops {
		if o.delete {
			if _, err = tx.ExecContext(ctx, del, o.collection, o.id); err != nil {
				return fmt.Errorf("docstore: delete %s/%s: %w", o.collection, o.id, err)
			}
			continue
		}
		if _, err = tx.ExecContext(ctx, s.dialect.upsert, o.collection, o.id, string(o.data)); err != nil {
			return fmt.Errorf("docstore: set %s/%s: %w", o.collection, o.id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("docstore: commit: %w", err)
	}

	s.hub.notify(ctx, b.collections())
	return nil
}
