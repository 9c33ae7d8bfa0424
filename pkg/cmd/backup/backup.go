package backup

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/lifelog/internal/backup"
	"github.com/Paintersrp/lifelog/internal/state"
)

// Client is the part of backup.S3 the commands use.
type Client interface {
	Save(ctx context.Context, collection string) (string, error)
	List(ctx context.Context, collection string) ([]string, error)
	Restore(ctx context.Context, key string) (backup.Snapshot, error)
}

// openClient is replaced in tests.
var openClient = func(ctx context.Context, s *state.State) (Client, error) {
	return s.Backup(ctx)
}

func NewCmdBackup(s *state.State) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Save and restore collection snapshots in S3.",
		Long: heredoc.Doc(`
			Snapshots are JSON documents stored under
			<prefix>/<collection>/<timestamp>.json in the workspace bucket. Any
			S3-compatible endpoint works; credentials fall back to the usual AWS
			environment and shared config files.
		`),
	}

	cmd.AddCommand(
		newCmdSave(s),
		newCmdList(s),
		newCmdRestore(s),
	)

	return cmd
}

func newCmdSave(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "save [collection]",
		Short: "Upload a snapshot of a collection (the active one by default).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), s)
			if err != nil {
				return err
			}
			key, err := client.Save(cmd.Context(), collectionArg(s, args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", key)
			return nil
		},
	}
}

func newCmdList(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "list [collection]",
		Short: "List snapshots, newest first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), s)
			if err != nil {
				return err
			}
			keys, err := client.List(cmd.Context(), collectionArg(s, args))
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots")
				return nil
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func newCmdRestore(s *state.State) *cobra.Command {
	return &cobra.Command{
		Use:   "restore key",
		Short: "Replace a collection with a snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd.Context(), s)
			if err != nil {
				return err
			}
			snap, err := client.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s.Index.Invalidate()
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d documents into %s\n", len(snap.Documents), snap.Collection)
			return nil
		},
	}
}

func collectionArg(s *state.State, args []string) string {
	if len(args) == 1 && args[0] != "" {
		return args[0]
	}
	return s.Settings.Collection
}
