package outline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/outline"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/internal/txn"
)

func NewCmdOutline(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outline",
		Short: "Import or export the collection as a markdown list.",
	}

	cmd.AddCommand(
		newCmdImport(s),
		newCmdExport(s),
	)

	return cmd
}

func newCmdImport(s *state.State) *cobra.Command {
	var under string

	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Append a markdown outline to the collection.",
		Long: heredoc.Doc(`
			Read a markdown document and append its nested lists as nodes.
			Headings and paragraphs outside lists become top-level nodes. The
			whole import is a single change: it either lands completely or not
			at all. Reads stdin when the file is "-" or omitted.
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			items := outline.Parse(src)
			if len(items) == 0 {
				return errors.New("no list items found")
			}

			n, err := Import(cmd.Context(), s, strings.TrimSpace(under), items)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&under, "under", "", "Append beneath this node id instead of the top level.")

	return cmd
}

// Import appends items beneath parentID in one structural batch.
func Import(ctx context.Context, s *state.State, parentID string, items []outline.Item) (int, error) {
	var created int
	res, err := s.Coordinator.RunStructural(ctx, func(ctx context.Context, b *txn.Batch) error {
		n, err := outline.Import(ctx, b.Session(s.Tree), parentID, items, uuid.NewString)
		created = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if res != txn.Committed {
		return 0, fmt.Errorf("import %s", res)
	}
	return created, nil
}

func newCmdExport(s *state.State) *cobra.Command {
	var (
		under  string
		render bool
		width  int
	)

	cmd := &cobra.Command{
		Use:   "export [--under id] [--render]",
		Short: "Write the collection as a nested markdown list.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := s.Tree.Session(nil).Flatten(cmd.Context(), strings.TrimSpace(under))
			if err != nil {
				return err
			}

			markdown := outline.Render(rows)
			if render {
				markdown, err = outline.Pretty(markdown, width)
				if err != nil {
					return err
				}
			}

			_, err = io.WriteString(cmd.OutOrStdout(), markdown)
			return err
		},
	}

	cmd.Flags().StringVar(&under, "under", "", "Export only the subtree beneath this node id.")
	cmd.Flags().BoolVarP(&render, "render", "r", false, "Pretty-print the outline for the terminal.")
	cmd.Flags().IntVar(&width, "width", 80, "Word wrap width used with --render.")

	return cmd
}

func readSource(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}
