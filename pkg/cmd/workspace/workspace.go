package workspace

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/config"
	"github.com/Paintersrp/lifelog/internal/state"
)

func NewCmdWorkspace(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
	}

	cmd.AddCommand(
		newCmdWorkspaceList(s),
		newCmdWorkspaceSwitch(s),
		newCmdWorkspaceAdd(s),
		newCmdWorkspaceRemove(s),
	)

	return cmd
}

func newCmdWorkspaceList(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured workspaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := s.Config.WorkspaceNames()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No workspaces configured")
				return nil
			}

			for _, name := range names {
				marker := " "
				if name == s.Config.CurrentWorkspace {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}

			return nil
		},
	}
}

func newCmdWorkspaceSwitch(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch [name]",
		Short: "Switch the active workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(args[0])
			if target == "" {
				return fmt.Errorf("workspace name cannot be empty")
			}

			if err := s.Config.SwitchWorkspace(target); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Switched to workspace %q\n", target)
			return nil
		},
	}
	return cmd
}

func newCmdWorkspaceAdd(s *state.State) *cobra.Command {
	var (
		name        string
		makeCurrent bool
		ws          config.Workspace
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("workspace name is required")
			}

			template := cloneWorkspaceSettings(activeWorkspace(s))
			template.Database = strings.TrimSpace(ws.Database)
			if ws.Remote != "" {
				template.Remote = strings.TrimSpace(ws.Remote)
			}
			if ws.Collection != "" {
				template.Collection = strings.TrimSpace(ws.Collection)
			}
			if ws.Ordering != "" {
				template.Ordering = ws.Ordering
			}

			if err := s.Config.AddWorkspace(name, template, makeCurrent); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added workspace %q\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the new workspace")
	cmd.Flags().StringVar(&ws.Database, "database", "", "SQLite path, postgres:// URL, or \"memory\" (default ~/.lifelog/<name>.db)")
	cmd.Flags().StringVar(&ws.Remote, "remote", "", "Store used by sync push/pull")
	cmd.Flags().StringVar(&ws.Collection, "collection", "", "Default collection")
	cmd.Flags().StringVar(&ws.Ordering, "ordering", "", "Sibling encoding: order-key or linked-list")
	cmd.Flags().BoolVar(&makeCurrent, "current", false, "Switch to the new workspace after creation")

	return cmd
}

func newCmdWorkspaceRemove(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove an existing workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("workspace name cannot be empty")
			}

			if err := s.Config.RemoveWorkspace(name); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed workspace %q\n", name)
			return nil
		},
	}

	return cmd
}

func activeWorkspace(s *state.State) *config.Workspace {
	if s.Config == nil {
		return nil
	}
	ws, err := s.Config.ActiveWorkspace()
	if err != nil {
		return nil
	}
	return ws
}

// cloneWorkspaceSettings copies everything except where the data lives.
func cloneWorkspaceSettings(src *config.Workspace) *config.Workspace {
	if src == nil {
		return &config.Workspace{}
	}

	return &config.Workspace{
		Collection:  src.Collection,
		Ordering:    src.Ordering,
		Orderings:   maps.Clone(src.Orderings),
		BatchPolicy: src.BatchPolicy,
		Broadcast:   src.Broadcast,
		Backup:      src.Backup,
		Search:      src.Search,
	}
}
