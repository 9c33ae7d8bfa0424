package rm

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/command"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/pkg/shared/arg"
)

func NewCmdRm(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm [id]",
		Aliases: []string{"remove"},
		Short:   "Remove a node that has no children.",
		Long: heredoc.Doc(`
			Remove a node. Nodes with children are refused so that nothing is
			deleted by accident; remove or move the children first.
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := arg.NodeID(cmd.Context(), s, args, "Remove node")
			if err != nil {
				return err
			}
			if _, err := arg.Apply(cmd.Context(), s, command.Remove, id, ""); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			return nil
		},
	}

	return cmd
}
