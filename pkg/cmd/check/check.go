package check

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/ngram"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/internal/tree"
	"github.com/Paintersrp/lifelog/internal/txn"
)

func NewCmdCheck(s *state.State) *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "check [--reindex]",
		Short: "Validate the sibling structure of the active collection.",
		Long: heredoc.Doc(`
			Walk every sibling set of the active collection and report the first
			inconsistency: broken prev/next links, duplicate or missing order keys,
			or parent cycles. With --reindex the search entries of the collection
			are rebuilt from the node text.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := s.Tree.Session(nil).Check(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: ok (%s)\n", s.Tree.Name(), s.Tree.Ordering().Name())

			if reindex {
				n, err := Reindex(ctx, s)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Reindexed %d nodes\n", n)
			}

			if line := s.StatusLine(); line != "" {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Rebuild the search entries of the collection.")

	return cmd
}

// Reindex replaces every search entry of the active collection in one
// batch and returns the number of nodes indexed.
func Reindex(ctx context.Context, s *state.State) (int, error) {
	coll := s.Tree.Name()
	nodes, err := tree.NewDocs(s.Store, coll).All(ctx)
	if err != nil {
		return 0, err
	}
	stale, err := s.Store.Find(ctx, docstore.Query{
		Collection: ngram.Collection,
		Where:      []docstore.Filter{docstore.Where("collection", coll)},
	})
	if err != nil {
		return 0, err
	}

	res, err := s.Coordinator.RunBatch(ctx, func(ctx context.Context, b *txn.Batch) error {
		for _, doc := range stale {
			b.Delete(ngram.Collection, doc.ID)
		}
		for _, n := range nodes {
			entry := ngram.NewEntry(coll, n.ID, n.Text, n.UpdatedAt)
			doc, err := docstore.Encode(ngram.EntryID(coll, n.ID), entry)
			if err != nil {
				return err
			}
			b.Set(ngram.Collection, doc)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if res != txn.Committed {
		return 0, fmt.Errorf("reindex %s", res)
	}

	s.Index.Invalidate()
	return len(nodes), nil
}
