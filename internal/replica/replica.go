// Package replica mirrors collections between two document stores, for
// example a local SQLite file and a shared Postgres database.
package replica

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/lifelog/internal/docstore"
)

const maxParallel = 4

// Report summarises the changes applied to one collection.
type Report struct {
	Collection string
	Written    int
	Deleted    int
}

// Syncer copies collections between Local and Remote. The source side
// always wins; every destination collection is replaced in one batch.
type Syncer struct {
	Local  docstore.Store
	Remote docstore.Store
	// Collections limits the sync. Empty means every collection present on
	// either side.
	Collections []string
	Logger      *slog.Logger
}

// Push makes the remote collections equal to the local ones.
func (s *Syncer) Push(ctx context.Context) ([]Report, error) {
	return s.mirror(ctx, s.Local, s.Remote)
}

// Pull makes the local collections equal to the remote ones.
func (s *Syncer) Pull(ctx context.Context) ([]Report, error) {
	return s.mirror(ctx, s.Remote, s.Local)
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Syncer) mirror(ctx context.Context, src, dst docstore.Store) ([]Report, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("replica: both stores are required")
	}
	names, err := s.collections(ctx, src, dst)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			r, err := mirrorCollection(gctx, src, dst, name)
			if err != nil {
				return fmt.Errorf("replica: %s: %w", name, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range reports {
		if r.Written > 0 || r.Deleted > 0 {
			s.logger().Info("collection synced", "collection", r.Collection, "written", r.Written, "deleted", r.Deleted)
		}
	}
	return reports, nil
}

func (s *Syncer) collections(ctx context.Context, src, dst docstore.Store) ([]string, error) {
	if len(s.Collections) > 0 {
		out := append([]string(nil), s.Collections...)
		sort.Strings(out)
		return out, nil
	}

	seen := make(map[string]struct{})
	for _, store := range []docstore.Store{src, dst} {
		names, err := store.Collections(ctx)
		if err != nil {
			return nil, fmt.Errorf("replica: list collections: %w", err)
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func mirrorCollection(ctx context.Context, src, dst docstore.Store, name string) (Report, error) {
	report := Report{Collection: name}

	want, err := src.Find(ctx, docstore.Query{Collection: name})
	if err != nil {
		return report, err
	}
	have, err := dst.Find(ctx, docstore.Query{Collection: name})
	if err != nil {
		return report, err
	}

	existing := make(map[string][]byte, len(have))
	for _, d := range have {
		existing[d.ID] = d.Data
	}

	batch := dst.Batch()
	for _, d := range want {
		cur, ok := existing[d.ID]
		delete(existing, d.ID)
		if ok {
			same, err := sameJSON(cur, d.Data)
			if err != nil {
				return report, fmt.Errorf("compare %s: %w", d.ID, err)
			}
			if same {
				continue
			}
		}
		batch.Set(name, d)
		report.Written++
	}
	for id := range existing {
		batch.Delete(name, id)
		report.Deleted++
	}

	if batch.Len() == 0 {
		return report, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// sameJSON compares documents structurally since jsonb does not preserve
// key order or whitespace.
func sameJSON(a, b []byte) (bool, error) {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false, err
	}
	return reflect.DeepEqual(va, vb), nil
}
