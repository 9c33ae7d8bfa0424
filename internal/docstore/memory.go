package docstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Memory is an in-process Store. It is used for tests and for ephemeral
// sessions that never touch disk.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
	hub    *hub
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return NewMemoryWithLogger(nil)
}

// NewMemoryWithLogger returns an empty in-memory store that logs through
// logger.
func NewMemoryWithLogger(logger *slog.Logger) *Memory {
	m := &Memory{data: make(map[string]map[string][]byte)}
	m.hub = newHub(m.Find, logger)
	return m
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Document{}, false, ErrClosed
	}
	data, ok := m.data[collection][id]
	if !ok {
		return Document{}, false, nil
	}
	return Document{ID: id, Data: append([]byte(nil), data...)}, true, nil
}

func (m *Memory) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	coll := m.data[q.Collection]
	docs := make([]Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, Document{ID: id, Data: append([]byte(nil), data...)})
	}
	m.mu.RUnlock()

	return q.apply(docs), nil
}

func (m *Memory) Batch() Batch {
	return &memoryBatch{store: m, staged: newStaged()}
}

func (m *Memory) Subscribe(ctx context.Context, q Query) *Subscription {
	return m.hub.subscribe(ctx, q)
}

func (m *Memory) Notify(collections ...string) {
	m.hub.notify(context.Background(), collections)
}

func (m *Memory) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(m.data))
	for name, coll := range m.data {
		if len(coll) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.hub.closeAll()
	return nil
}

type memoryBatch struct {
	store *Memory
	staged
}

func (b *memoryBatch) Set(collection string, doc Document) { b.set(collection, doc) }

func (b *memoryBatch) Delete(collection, id string) { b.del(collection, id) }

func (b *memoryBatch) Done() <-chan struct{} { return b.done }

func (b *memoryBatch) Len() int { return len(b.ops) }

func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := b.begin(); err != nil {
		return err
	}
	defer b.finish()

	if err := ctx.Err(); err != nil {
		return err
	}

	m := b.store
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	for _, o := range b.ops {
		coll, ok := m.data[o.collection]
		if !ok {
			coll = make(map[string][]byte)
			m.data[o.collection] = coll
		}
		if o.delete {
			delete(coll, o.id)
			continue
		}
		coll[o.id] = o.data
	}
	m.mu.Unlock()

	m.hub.notify(ctx, b.collections())
	return nil
}
