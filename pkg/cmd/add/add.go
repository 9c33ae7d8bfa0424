package add

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

type options struct {
	under string
	after string
}

func NewCmdAdd(s *state.State) *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:     "add [text] [--under id | --after id] [--paste]",
		Aliases: []string{"a"},
		Short:   "Add a node to the active collection.",
		Long: heredoc.Doc(`
			Add a node. Without flags the node is appended to the top level.
			--under appends it as the last child of a node and --after places it
			right after a sibling. With --paste the clipboard is used as the text.
		`),
		Example: heredoc.Doc(`
			lifelog add "call the plumber"
			lifelog add --under 5f0c... "ask about the boiler"
			lifelog add --paste
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, s, o)
		},
	}

	flags.AddPaste(cmd)
	cmd.Flags().StringVar(&o.under, "under", "", "Append the node as the last child of this node id.")
	cmd.Flags().StringVar(&o.after, "after", "", "Insert the node directly after this node id.")
	cmd.MarkFlagsMutuallyExclusive("under", "after")

	return cmd
}

func run(cmd *cobra.Command, args []string, s *state.State, o options) error {
	text, err := content(cmd, args)
	if err != nil {
		return err
	}

	name, target := command.AddSibling, strings.TrimSpace(o.after)
	if under := strings.TrimSpace(o.under); under != "" {
		name, target = command.AddChild, under
	}

	out, err := arg.Apply(cmd.Context(), s, name, target, text)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), out.Cursor)
	return nil
}

func content(cmd *cobra.Command, args []string) (string, error) {
	paste, err := flags.HandlePaste(cmd)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(strings.Join(args, " "))
	if paste {
		value, err := readClipboard()
		if err != nil {
			return "", fmt.Errorf("read clipboard: %w", err)
		}
		text = strings.TrimSpace(strings.Join([]string{text, strings.TrimSpace(value)}, " "))
	}
	if text == "" {
		return "", errors.New("node text is required")
	}
	return text, nil
}
