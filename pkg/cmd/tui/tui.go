package tui

import (
	"errors"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/internal/tui/outline"
)

var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func NewCmdTui(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tui",
		Aliases: []string{"ui", "edit-tree"},
		Short:   "Open the interactive outline editor.",
		Long: heredoc.Doc(`
			Browse and reshape the active collection.

			  j/k        move the cursor        tab/shift+tab  indent/dedent
			  K/J        move the node up/down  enter/o        add sibling/child
			  e          edit text              x              remove
			  /          search                 q              quit
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTerminal() {
				return errors.New("tui requires an interactive terminal")
			}

			return outline.Run(cmd.Context(), outline.Config{
				Store:       s.Store,
				Tree:        s.Tree,
				Coordinator: s.Coordinator,
				Dispatcher:  s.Dispatcher,
				Search:      s.Index,
			})
		},
	}

	return cmd
}
