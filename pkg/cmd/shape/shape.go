package shape

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/command"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/pkg/shared/arg"
)

func NewCmdIndent(s *state.State) *cobra.Command {
	return newStructural(s, command.Indent, "indent [id]",
		"Make a node the last child of its previous sibling.",
		"Indented")
}

func NewCmdDedent(s *state.State) *cobra.Command {
	return newStructural(s, command.Dedent, "dedent [id]",
		"Move a node out to follow its parent.",
		"Dedented")
}

func NewCmdMove(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a node among its siblings.",
		Long: heredoc.Doc(`
			Swap a node with its previous (up) or next (down) sibling. Moving the
			first sibling up or the last sibling down does nothing.
		`),
	}

	cmd.AddCommand(
		newStructural(s, command.MoveUp, "up [id]", "Move a node before its previous sibling.", "Moved"),
		newStructural(s, command.MoveDown, "down [id]", "Move a node after its next sibling.", "Moved"),
	)

	return cmd
}

func newStructural(s *state.State, name command.Name, use, short, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := arg.NodeID(cmd.Context(), s, args, short)
			if err != nil {
				return err
			}
			if _, err := arg.Apply(cmd.Context(), s, name, id, ""); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, id)
			return nil
		},
	}
}
