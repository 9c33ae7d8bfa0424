package sync

import (
	"context"
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/replica"
	"github.com/Paintersrp/lifelog/internal/state"
)

// openRemote is replaced in tests.
var openRemote = func(ctx context.Context, s *state.State) (docstore.Store, error) {
	return s.Remote(ctx)
}

func NewCmdSync(s *state.State) *cobra.Command {
	var collections []string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror collections to or from the remote store.",
		Long: heredoc.Doc(`
			Copy collections between the local store and the remote configured
			for the workspace (or LIFELOG_REMOTE_URL). The source always wins and
			each destination collection is replaced in a single transaction.
		`),
		Example: heredoc.Doc(`
			lifelog sync push
			lifelog sync pull --only lifelogs --only ngram_index
		`),
	}

	cmd.PersistentFlags().StringSliceVar(&collections, "only", nil, "Limit the sync to these collections.")

	cmd.AddCommand(
		newCmdDirection(s, &collections, true),
		newCmdDirection(s, &collections, false),
	)

	return cmd
}

func newCmdDirection(s *state.State, collections *[]string, push bool) *cobra.Command {
	use, short := "pull", "Replace local collections with the remote ones."
	if push {
		use, short = "push", "Replace remote collections with the local ones."
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			remote, err := openRemote(ctx, s)
			if err != nil {
				return err
			}
			defer remote.Close()

			syncer := s.Syncer(remote, *collections)
			var reports []replica.Report
			if push {
				reports, err = syncer.Push(ctx)
			} else {
				reports, err = syncer.Pull(ctx)
				if err == nil {
					s.Index.Invalidate()
				}
			}
			if err != nil {
				return err
			}

			writeReports(cmd.OutOrStdout(), reports)
			return nil
		},
	}
}

func writeReports(w io.Writer, reports []replica.Report) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "Nothing to sync")
		return
	}
	for _, r := range reports {
		fmt.Fprintf(w, "%-20s %d written, %d deleted\n", r.Collection, r.Written, r.Deleted)
	}
}
