package fzf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/Paintersrp/lifelog/internal/outline"
	"github.com/Paintersrp/lifelog/internal/tree"
)

// ErrNoSelection is returned when the picker is dismissed or the tree is
// empty.
var ErrNoSelection = errors.New("no node selected")

var find = fuzzyfinder.Find

// NodeFinder lets the user pick a node from a flattened tree.
type NodeFinder struct {
	tree   *tree.Tree
	Header string
	rows   []tree.Row
}

func NewNodeFinder(t *tree.Tree, header string) *NodeFinder {
	return &NodeFinder{tree: t, Header: header}
}

// Run returns the id of the selected node.
func (f *NodeFinder) Run(ctx context.Context) (string, error) {
	return f.RunWithQuery(ctx, "")
}

func (f *NodeFinder) RunWithQuery(ctx context.Context, query string) (string, error) {
	rows, err := f.tree.Session(nil).Flatten(ctx, "")
	if err != nil {
		return "", fmt.Errorf("error listing nodes: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrNoSelection
	}
	f.rows = rows

	options := []fuzzyfinder.Option{
		fuzzyfinder.WithPreviewWindow(f.renderPreview),
		fuzzyfinder.WithContext(ctx),
	}
	if query != "" {
		options = append(options, fuzzyfinder.WithQuery(query))
	}
	if f.Header != "" {
		options = append(options, fuzzyfinder.WithHeader(f.Header))
	}

	idx, err := find(rows, f.label, options...)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return "", ErrNoSelection
	}
	if err != nil {
		return "", fmt.Errorf("error selecting node: %w", err)
	}
	return rows[idx].Node.ID, nil
}

func (f *NodeFinder) label(i int) string {
	r := f.rows[i]
	return strings.Repeat("  ", r.Depth) + strings.Join(strings.Fields(r.Node.Text), " ")
}

// renderPreview shows the node and its descendants as markdown.
func (f *NodeFinder) renderPreview(i, w, h int) string {
	if i == -1 {
		return ""
	}

	sub := subtree(f.rows, i)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dracula"),
		glamour.WithWordWrap(w),
	)
	if err != nil {
		return outline.Render(sub)
	}

	markdown, err := r.Render(outline.Render(sub))
	if err != nil {
		return "Error rendering preview"
	}
	return markdown
}

// subtree returns rows[i] and the rows nested beneath it.
func subtree(rows []tree.Row, i int) []tree.Row {
	end := i + 1
	for end < len(rows) && rows[end].Depth > rows[i].Depth {
		end++
	}
	return rows[i:end]
}
