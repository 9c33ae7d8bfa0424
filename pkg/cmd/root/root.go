package root

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Paintersrp/lifelog/internal/constants"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/pkg/cmd/add"
	"github.com/Paintersrp/lifelog/pkg/cmd/backup"
	"github.com/Paintersrp/lifelog/pkg/cmd/check"
	"github.com/Paintersrp/lifelog/pkg/cmd/edit"
	"github.com/Paintersrp/lifelog/pkg/cmd/ls"
	"github.com/Paintersrp/lifelog/pkg/cmd/outline"
	"github.com/Paintersrp/lifelog/pkg/cmd/rm"
	"github.com/Paintersrp/lifelog/pkg/cmd/search"
	"github.com/Paintersrp/lifelog/pkg/cmd/shape"
	"github.com/Paintersrp/lifelog/pkg/cmd/sync"
	"github.com/Paintersrp/lifelog/pkg/cmd/tui"
	"github.com/Paintersrp/lifelog/pkg/cmd/workspace"
)

var (
	collection    string
	workspaceName string
)

// NewCmdRoot builds the command tree around s. The state is loaded once flags
// are parsed unless the caller already opened it.
func NewCmdRoot(s *state.State) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     "lifelog",
		Aliases: []string{"ll"},
		Short:   "Keep an outline of your days, searchable in any script.",
		Long: heredoc.Doc(`
			lifelog stores a tree of short notes in SQLite or Postgres, keeps a
			bigram search index next to it, and lets several processes edit the
			same tree. Run without a command to print the active collection.

			  lifelog add "call the plumber"
			  lifelog search plumber
			  lifelog tui
		`),
		Version:       constants.Version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !s.Loaded() {
				return s.Load(workspaceName)
			}
			return s.UseCollection(collection)
		},
		RunE: ls.NewCmdLs(s).RunE,
	}

	cmd.PersistentFlags().
		StringVarP(
			&collection,
			"collection",
			"c",
			"",
			"Collection to use for this command.",
		)
	viper.BindPFlag("collection", cmd.PersistentFlags().Lookup("collection"))

	cmd.PersistentFlags().
		StringVarP(&workspaceName, "workspace", "w", "", "Workspace to use for this command.")

	cmd.AddCommand(
		add.NewCmdAdd(s),
		edit.NewCmdEdit(s),
		rm.NewCmdRm(s),
		shape.NewCmdIndent(s),
		shape.NewCmdDedent(s),
		shape.NewCmdMove(s),
		ls.NewCmdLs(s),
		search.NewCmdSearch(s),
		check.NewCmdCheck(s),
		outline.NewCmdOutline(s),
		sync.NewCmdSync(s),
		backup.NewCmdBackup(s),
		tui.NewCmdTui(s),
		workspace.NewCmdWorkspace(s),
	)

	return cmd, nil
}
