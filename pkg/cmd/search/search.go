package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	lsearch "github.com/Paintersrp/lifelog/internal/search"
	"github.com/Paintersrp/lifelog/internal/state"
)

type options struct {
	since string
	limit int
	all   bool
}

func NewCmdSearch(s *state.State) *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:     "search term [--since date] [--limit n] [--all]",
		Aliases: []string{"s", "find"},
		Short:   "Search node text by n-gram.",
		Long: heredoc.Doc(`
			Search the active collection. The term is normalized (full-width and
			half-width forms, kana, case) and split into bigrams, so partial words
			and text without spaces match. A term of a single plain character
			matches nothing.

			--since accepts most date formats, for example "2024-03-01",
			"March 1, 2024" or "03/01/2024 14:00".
		`),
		Example: heredoc.Doc(`
			lifelog search plumber
			lifelog search "パン" --since 2024-01-01 --all
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, s, o)
		},
	}

	cmd.Flags().StringVar(&o.since, "since", "", "Only show nodes updated at or after this date.")
	cmd.Flags().IntVarP(&o.limit, "limit", "n", 20, "Maximum number of results (0 for no limit).")
	cmd.Flags().BoolVar(&o.all, "all", false, "Search every collection, not only the active one.")

	return cmd
}

func run(cmd *cobra.Command, args []string, s *state.State, o options) error {
	if o.limit < 0 {
		return errors.New("--limit cannot be negative")
	}
	q := lsearch.Query{
		Term:  strings.Join(args, " "),
		Limit: o.limit,
	}
	if !o.all {
		q.Collection = s.Settings.Collection
	}
	if o.since != "" {
		since, err := parseSince(o.since)
		if err != nil {
			return err
		}
		q.Since = since
	}

	results, err := s.Index.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No matches")
		return nil
	}
	for _, r := range results {
		prefix := r.NodeID
		if o.all {
			prefix = r.Collection + "/" + r.NodeID
		}
		fmt.Fprintf(out, "%s  %s  %s\n", prefix, r.UpdatedAt.Local().Format("2006-01-02 15:04"), r.Snippet)
	}
	return nil
}

func parseSince(value string) (time.Time, error) {
	t, err := dateparse.ParseLocal(strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", value, err)
	}
	return t, nil
}
