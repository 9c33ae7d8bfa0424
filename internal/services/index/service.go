package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Paintersrp/lifelog/internal/cache"
	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/ngram"
	"github.com/Paintersrp/lifelog/internal/search"
)

// ErrClosed signals that the index service has been shut down and cannot be
// used to produce new snapshots.
var ErrClosed = errors.New("index service closed")

// ErrUnavailable indicates that the search index has not been built yet.
var ErrUnavailable = errors.New("search index unavailable")

const queryCacheSize = 64

// Stats captures lightweight instrumentation about the shared index.
type Stats struct {
	LastRebuild time.Time
	Pending     int
	Entries     int
	Cached      int
}

// Service owns a shared n-gram index loaded from the store's index
// collection and coordinates incremental updates as nodes change.
type Service struct {
	mu          sync.RWMutex
	store       docstore.Store
	index       *search.Index
	pending     map[string]struct{}
	stale       bool
	lastRebuild time.Time
	closed      bool
	results     *cache.LRUCache[string, []search.Result]

	logger *slog.Logger
	now    func() time.Time
	maxAge time.Duration
}

// NewService constructs an index service reading entries from store.
func NewService(store docstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		pending: make(map[string]struct{}),
		results: cache.NewLRUCache[string, []search.Result](queryCacheSize),
		logger:  logger,
		now:     time.Now,
		maxAge:  time.Hour,
	}
}

// SetCacheSize replaces the query cache with one holding size results.
// Non-positive sizes keep the default.
func (s *Service) SetCacheSize(size int) {
	if s == nil || size <= 0 {
		return
	}
	s.mu.Lock()
	s.results = cache.NewLRUCache[string, []search.Result](size)
	s.mu.Unlock()
}

// AcquireSnapshot returns a thread-safe snapshot of the search index. The
// method rebuilds the index or applies pending updates as needed before cloning
// the in-memory representation.
func (s *Service) AcquireSnapshot(ctx context.Context) (*search.Index, error) {
	if s == nil {
		return nil, ErrUnavailable
	}

	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.index == nil {
		return nil, ErrUnavailable
	}

	return s.index.Clone(), nil
}

// Search runs q against a fresh index. Results are cached per query until
// the index changes.
func (s *Service) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	if s == nil {
		return nil, ErrUnavailable
	}
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	key := cacheKey(q)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.index == nil {
		return nil, ErrUnavailable
	}
	if hit, ok := s.results.Get(key); ok {
		return hit, nil
	}
	results := s.index.Search(q)
	s.results.Put(key, results)
	return results, nil
}

// QueueUpdate schedules the index entry stored under key for reloading.
func (s *Service) QueueUpdate(key string) {
	if s == nil {
		return
	}

	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.pending == nil {
		s.pending = make(map[string]struct{})
	}
	s.pending[trimmed] = struct{}{}
}

// Invalidate forces a full rebuild on the next snapshot, typically after
// another process announced a commit.
func (s *Service) Invalidate() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stale = true
}

// Stats returns instrumentation about the index lifecycle.
func (s *Service) Stats() Stats {
	if s == nil {
		return Stats{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		LastRebuild: s.lastRebuild,
		Pending:     len(s.pending),
		Entries:     s.index.Len(),
		Cached:      s.results.Len(),
	}
}

// Close releases the service. Subsequent calls to AcquireSnapshot will return
// ErrClosed.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.index = nil
	s.pending = nil
	s.results.Purge()
	return nil
}

func (s *Service) ensureFresh(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	needsRebuild := s.index == nil || s.stale
	if !needsRebuild && s.maxAge > 0 {
		needsRebuild = s.now().Sub(s.lastRebuild) > s.maxAge
	}
	hasPending := len(s.pending) > 0
	s.mu.RUnlock()

	if closed {
		return ErrClosed
	}

	if needsRebuild {
		if err := s.rebuild(ctx); err != nil {
			return err
		}
	}

	if hasPending {
		if err := s.applyPending(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) rebuild(ctx context.Context) error {
	docs, err := s.store.Find(ctx, docstore.Query{Collection: ngram.Collection})
	if err != nil {
		return fmt.Errorf("build search index: %w", err)
	}
	entries := make([]ngram.Entry, 0, len(docs))
	for _, doc := range docs {
		var e ngram.Entry
		if err := doc.Decode(&e); err != nil {
			return fmt.Errorf("build search index: %s: %w", doc.ID, err)
		}
		entries = append(entries, e)
	}

	idx := search.NewIndex()
	idx.Build(entries)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.index = idx
	s.stale = false
	s.lastRebuild = s.now()
	s.results.Purge()
	s.logger.Debug("search index rebuilt", "entries", len(entries))
	return nil
}

func (s *Service) applyPending(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.index == nil {
		s.mu.Unlock()
		return ErrUnavailable
	}
	pending := s.pending
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	type change struct {
		key   string
		entry ngram.Entry
		found bool
	}
	changes := make([]change, 0, len(pending))
	for key := range pending {
		doc, ok, err := s.store.Get(ctx, ngram.Collection, key)
		if err != nil {
			s.requeue(pending)
			return fmt.Errorf("update %s: %w", key, err)
		}
		c := change{key: key, found: ok}
		if ok {
			if err := doc.Decode(&c.entry); err != nil {
				return fmt.Errorf("update %s: %w", key, err)
			}
		}
		changes = append(changes, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, c := range changes {
		if c.found {
			s.index.Update(c.entry)
		} else {
			s.index.Remove(c.key)
		}
	}
	s.results.Purge()
	return nil
}

func (s *Service) requeue(keys map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for k := range keys {
		s.pending[k] = struct{}{}
	}
}

func cacheKey(q search.Query) string {
	since := ""
	if !q.Since.IsZero() {
		since = q.Since.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d", q.Term, q.Collection, since, q.Limit)
}
