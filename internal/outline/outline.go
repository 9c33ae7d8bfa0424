// Package outline converts between node subtrees and nested markdown lists.
package outline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/Paintersrp/lifelog/internal/tree"
)

// Item is one parsed list entry with its nested entries.
type Item struct {
	Text     string
	Children []Item
}

// Count returns the number of items in the forest, children included.
func Count(items []Item) int {
	n := 0
	for _, it := range items {
		n += 1 + Count(it.Children)
	}
	return n
}

// Parse reads markdown and returns its list structure. Top-level headings
// and paragraphs become items of their own so that loose notes are not
// lost. Inline markup is kept as written.
func Parse(source []byte) []Item {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	items := make([]Item, 0)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.List:
			items = append(items, listItems(n, source)...)
		case *ast.Heading, *ast.Paragraph:
			if t := blockText(n, source); t != "" {
				items = append(items, Item{Text: t})
			}
		}
	}
	return items
}

func listItems(list *ast.List, source []byte) []Item {
	out := make([]Item, 0, list.ChildCount())
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		var it Item
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.List:
				it.Children = append(it.Children, listItems(c, source)...)
			default:
				t := blockText(c, source)
				if t == "" {
					continue
				}
				if it.Text != "" {
					it.Text += " "
				}
				it.Text += t
			}
		}
		out = append(out, it)
	}
	return out
}

func blockText(n ast.Node, source []byte) string {
	lines := n.Lines()
	if lines == nil {
		return ""
	}
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if line := bytes.TrimSpace(seg.Value(source)); len(line) > 0 {
			parts = append(parts, string(line))
		}
	}
	return strings.Join(parts, " ")
}

// Import appends items as the last children of parentID, recursively. newID
// supplies node ids. It returns the number of nodes created.
func Import(ctx context.Context, s *tree.Session, parentID string, items []Item, newID func() string) (int, error) {
	created := 0
	for _, it := range items {
		n := &tree.Node{ID: newID(), Text: it.Text}
		if err := s.AppendChild(ctx, parentID, n); err != nil {
			return created, fmt.Errorf("outline: import %q: %w", it.Text, err)
		}
		created++

		nested, err := Import(ctx, s, n.ID, it.Children, newID)
		created += nested
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

// Render writes rows as a nested markdown list, two spaces per level.
func Render(rows []tree.Row) string {
	var b strings.Builder
	base := -1
	for _, r := range rows {
		if base < 0 || r.Depth < base {
			base = r.Depth
		}
	}
	for _, r := range rows {
		b.WriteString(strings.Repeat("  ", r.Depth-base))
		b.WriteString("- ")
		b.WriteString(strings.Join(strings.Fields(r.Node.Text), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// Pretty renders markdown for a terminal of the given width.
func Pretty(markdown string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}
