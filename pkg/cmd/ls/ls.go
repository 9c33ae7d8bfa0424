package ls

import (
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/outline"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/internal/tree"
)

type options struct {
	ids   bool
	depth int
}

func NewCmdLs(s *state.State) *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:     "ls [id]",
		Aliases: []string{"list"},
		Short:   "Print the active collection as an outline.",
		Long: heredoc.Doc(`
			Print the collection, or the subtree under a node, in document order.
			With --ids each line starts with the node id.
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := ""
			if len(args) == 1 {
				parent = strings.TrimSpace(args[0])
			}
			return run(cmd, s, parent, o)
		},
	}

	cmd.Flags().BoolVar(&o.ids, "ids", false, "Prefix each node with its id.")
	cmd.Flags().IntVarP(&o.depth, "depth", "d", 0, "Limit output to this many levels (0 for all).")

	return cmd
}

func run(cmd *cobra.Command, s *state.State, parent string, o options) error {
	rows, err := s.Tree.Session(nil).Flatten(cmd.Context(), parent)
	if err != nil {
		return err
	}

	if o.depth > 0 {
		kept := rows[:0]
		for _, r := range rows {
			if r.Depth < o.depth {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No nodes")
		return nil
	}

	if !o.ids {
		_, err := io.WriteString(out, outline.Render(rows))
		return err
	}
	return writeWithIDs(out, rows)
}

func writeWithIDs(w io.Writer, rows []tree.Row) error {
	for _, r := range rows {
		text := strings.Join(strings.Fields(r.Node.Text), " ")
		if _, err := fmt.Fprintf(w, "%s  %s%s\n", r.Node.ID, strings.Repeat("  ", r.Depth), text); err != nil {
			return err
		}
	}
	return nil
}
