package edit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/command"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/pkg/shared/arg"
	"github.com/Paintersrp/lifelog/pkg/shared/flags"
)

var readClipboard = clipboard.ReadAll

func NewCmdEdit(s *state.State) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "edit [id] --text text",
		Short: "Replace the text of a node.",
		Long: heredoc.Doc(`
			Replace the text of a node. When no id is given a fuzzy finder lists
			the nodes of the active collection.
		`),
		Example: heredoc.Doc(`
			lifelog edit 5f0c... --text "call the plumber twice"
			lifelog edit --paste
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paste, err := flags.HandlePaste(cmd)
			if err != nil {
				return err
			}
			if paste {
				value, err := readClipboard()
				if err != nil {
					return fmt.Errorf("read clipboard: %w", err)
				}
				text = value
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("node text is required")
			}

			id, err := arg.NodeID(cmd.Context(), s, args, "Edit node")
			if err != nil {
				return err
			}
			if _, err := arg.Apply(cmd.Context(), s, command.Edit, id, strings.TrimSpace(text)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", id)
			return nil
		},
	}

	flags.AddPaste(cmd)
	cmd.Flags().StringVarP(&text, "text", "t", "", "New text for the node.")

	return cmd
}
