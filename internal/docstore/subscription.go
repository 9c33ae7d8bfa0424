package docstore

import (
	"context"
	"log/slog"
	"sync"
)

type finder func(ctx context.Context, q Query) ([]Document, error)

// Subscription delivers query snapshots. C holds at most one pending
// snapshot; a newer snapshot replaces an unread one, so consumers only ever
// see the latest state and must tolerate receiving the same state twice.
type Subscription struct {
	C <-chan []Document

	ch     chan []Document
	hub    *hub
	mu     sync.Mutex
	query  Query
	err    error
	closed bool
	// gen counts refreshes started; only the latest may deliver.
	gen    uint64
	once   sync.Once
}

// Query returns the query currently driving the subscription.
func (s *Subscription) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Restart swaps the query and emits a fresh snapshot for it.
func (s *Subscription) Restart(ctx context.Context, q Query) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.query = q
	s.mu.Unlock()
	s.refresh(ctx)
}

// Err returns the error from the most recent refresh, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery and closes C.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *Subscription) refresh(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	gen, q := s.gen, s.query
	s.mu.Unlock()

	docs, err := s.hub.find(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// A later refresh has started and will deliver a newer read.
	if gen != s.gen {
		return
	}
	// A concurrent Restart may have replaced the query while we were reading.
	if !sameQuery(s.query, q) {
		return
	}
	s.err = err
	if err != nil {
		s.hub.logger.Warn("subscription refresh failed", "collection", q.Collection, "error", err)
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- docs
}

func sameQuery(a, b Query) bool {
	if a.Collection != b.Collection || a.OrderBy != b.OrderBy || a.Desc != b.Desc || a.Limit != b.Limit {
		return false
	}
	if len(a.Where) != len(b.Where) {
		return false
	}
	for i := range a.Where {
		if a.Where[i] != b.Where[i] {
			return false
		}
	}
	return true
}

// hub tracks live subscriptions for a store.
type hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	find   finder
	logger *slog.Logger
}

func newHub(find finder, logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{subs: make(map[*Subscription]struct{}), find: find, logger: logger}
}

func (h *hub) subscribe(ctx context.Context, q Query) *Subscription {
	ch := make(chan []Document, 1)
	s := &Subscription{C: ch, ch: ch, hub: h, query: q}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	s.refresh(ctx)

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			s.Close()
		}()
	}
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// notify synchronously refreshes every subscription watching one of the
// collections.
func (h *hub) notify(ctx context.Context, collections []string) {
	if len(collections) == 0 {
		return
	}
	touched := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		touched[c] = struct{}{}
	}

	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		if _, ok := touched[s.Query().Collection]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.refresh(ctx)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
