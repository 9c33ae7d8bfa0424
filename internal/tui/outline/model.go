// Package outline is the interactive tree editor. Keys are decoded here into
// named commands and handed to a command.Dispatcher; the rendered tree is
// refreshed from a latched store subscription so that structural edits only
// ever show their settled result.
package outline

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Paintersrp/lifelog/internal/command"
	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/ngram"
	"github.com/Paintersrp/lifelog/internal/search"
	"github.com/Paintersrp/lifelog/internal/services/index"
	"github.com/Paintersrp/lifelog/internal/tree"
	"github.com/Paintersrp/lifelog/internal/txn"
)

// Config wires the editor to one tree collection.
type Config struct {
	Store       docstore.Store
	Tree        *tree.Tree
	Coordinator *txn.Coordinator
	Dispatcher  *command.Dispatcher
	// Search is optional; without it the search prompt is disabled.
	Search *index.Service
}

type mode int

const (
	browsing mode = iota
	addingSibling
	addingChild
	editing
	searching
)

// snapshotMsg carries the latched collection contents.
type snapshotMsg struct {
	docs []docstore.Document
}

type outcomeMsg struct {
	name command.Name
	out  command.Outcome
	err  error
}

type searchMsg struct {
	term    string
	results []search.Result
	err     error
}

// Model is the bubbletea model for the editor.
type Model struct {
	ctx       context.Context
	cfg       Config
	sub       *docstore.Subscription
	snapshots <-chan []docstore.Document

	keys    keyMap
	input   textinput.Model
	mode    mode
	rows    []tree.Row
	results []search.Result
	status  string
	err     error
	width   int
	height  int
}

// New subscribes to the tree's collection. Call Close when done.
func New(ctx context.Context, cfg Config) *Model {
	sub := cfg.Store.Subscribe(ctx, docstore.Query{Collection: cfg.Tree.Name()})
	input := textinput.New()
	input.CharLimit = 500

	return &Model{
		ctx:       ctx,
		cfg:       cfg,
		sub:       sub,
		snapshots: txn.Follow(ctx, cfg.Coordinator.Clock(), sub.C),
		keys:      newKeyMap(),
		input:     input,
	}
}

// Close releases the subscription.
func (m *Model) Close() {
	m.sub.Close()
}

// Run starts the editor on the alternate screen and blocks until it exits.
func Run(ctx context.Context, cfg Config) error {
	m := New(ctx, cfg)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m *Model) waitForSnapshot() tea.Cmd {
	ch := m.snapshots
	return func() tea.Msg {
		docs, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{docs: docs}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-8)
		return m, nil
	case snapshotMsg:
		m.reload(msg.docs)
		return m, m.waitForSnapshot()
	case outcomeMsg:
		m.handleOutcome(msg)
		return m, nil
	case searchMsg:
		m.handleSearch(msg)
		return m, nil
	case tea.KeyMsg:
		if m.mode != browsing {
			return m.updatePrompt(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.down):
		return m, m.dispatch(command.NavigateDown, "")
	case key.Matches(msg, m.keys.up):
		return m, m.dispatch(command.NavigateUp, "")
	case key.Matches(msg, m.keys.indent):
		return m, m.dispatch(command.Indent, "")
	case key.Matches(msg, m.keys.dedent):
		return m, m.dispatch(command.Dedent, "")
	case key.Matches(msg, m.keys.moveUp):
		return m, m.dispatch(command.MoveUp, "")
	case key.Matches(msg, m.keys.moveDown):
		return m, m.dispatch(command.MoveDown, "")
	case key.Matches(msg, m.keys.remove):
		return m, m.dispatch(command.Remove, "")
	case key.Matches(msg, m.keys.addSibling):
		return m, m.prompt(addingSibling, "add: ", "")
	case key.Matches(msg, m.keys.addChild):
		return m, m.prompt(addingChild, "add child: ", "")
	case key.Matches(msg, m.keys.edit):
		if n := m.cursorNode(); n != nil {
			return m, m.prompt(editing, "edit: ", n.Text)
		}
	case key.Matches(msg, m.keys.search):
		if m.cfg.Search != nil {
			return m, m.prompt(searching, "search: ", "")
		}
		m.status = "search is not configured"
	case key.Matches(msg, m.keys.clear):
		m.results = nil
		m.status = ""
		m.err = nil
	}
	return m, nil
}

func (m *Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = browsing
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		current := m.mode
		m.mode = browsing
		m.input.Blur()
		switch current {
		case addingSibling:
			return m, m.dispatch(command.AddSibling, value)
		case addingChild:
			return m, m.dispatch(command.AddChild, value)
		case editing:
			return m, m.dispatch(command.Edit, value)
		case searching:
			return m, m.runSearch(value)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) prompt(md mode, label, value string) tea.Cmd {
	m.mode = md
	m.input.Prompt = label
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

// dispatch runs the command off the UI goroutine. Commands issued while a
// batch is in flight are dropped by the coordinator and reported as such.
func (m *Model) dispatch(name command.Name, arg string) tea.Cmd {
	ctx, d := m.ctx, m.cfg.Dispatcher
	return func() tea.Msg {
		out, err := d.Dispatch(ctx, name, arg)
		return outcomeMsg{name: name, out: out, err: err}
	}
}

func (m *Model) runSearch(term string) tea.Cmd {
	ctx, svc, coll := m.ctx, m.cfg.Search, m.cfg.Tree.Name()
	return func() tea.Msg {
		results, err := svc.Search(ctx, search.Query{Term: term, Collection: coll, Limit: 20})
		return searchMsg{term: term, results: results, err: err}
	}
}

func (m *Model) handleOutcome(msg outcomeMsg) {
	m.err = msg.err
	if msg.err != nil {
		m.status = ""
		return
	}
	for _, id := range msg.out.Changed {
		m.cfg.Search.QueueUpdate(ngram.EntryID(m.cfg.Tree.Name(), id))
	}
	switch msg.out.Result {
	case txn.Dropped:
		m.status = fmt.Sprintf("%s dropped: another change is still saving", msg.name)
	case txn.Aborted:
		m.status = fmt.Sprintf("%s aborted", msg.name)
	default:
		m.status = ""
	}
}

func (m *Model) handleSearch(msg searchMsg) {
	m.err = msg.err
	m.results = msg.results
	if msg.err != nil {
		return
	}
	m.status = fmt.Sprintf("%d matches for %q", len(msg.results), msg.term)
	if len(msg.results) > 0 {
		m.cfg.Dispatcher.SetCursor(msg.results[0].NodeID)
	}
}

func (m *Model) reload(docs []docstore.Document) {
	rows, err := m.cfg.Tree.Rows(m.ctx, docs)
	if err != nil {
		m.err = err
		return
	}
	m.rows = rows

	if m.cfg.Dispatcher.Cursor() == "" && len(rows) > 0 {
		m.cfg.Dispatcher.SetCursor(rows[0].Node.ID)
	}
}

func (m *Model) cursorNode() *tree.Node {
	cursor := m.cfg.Dispatcher.Cursor()
	for _, r := range m.rows {
		if r.Node.ID == cursor {
			return r.Node
		}
	}
	return nil
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.cfg.Tree.Name()))
	b.WriteString("\n\n")

	cursor := m.cfg.Dispatcher.Cursor()
	if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("empty, press ↵ to add an entry"))
		b.WriteByte('\n')
	}
	for _, r := range m.rows {
		b.WriteString(strings.Repeat("  ", r.Depth))
		b.WriteString(bulletStyle(r.Depth).Render("•"))
		b.WriteByte(' ')
		text := r.Node.Text
		if text == "" {
			text = " "
		}
		if r.Node.ID == cursor {
			text = cursorStyle.Render(text)
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}

	if len(m.results) > 0 {
		lines := make([]string, 0, len(m.results))
		for _, res := range m.results {
			lines = append(lines, res.Snippet)
		}
		b.WriteByte('\n')
		b.WriteString(resultStyle.Render(strings.Join(lines, "\n")))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	switch {
	case m.mode != browsing:
		b.WriteString(m.input.View())
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	default:
		b.WriteString(helpStyle.Render(helpLine(m.keys.help())))
	}
	return appStyle.Render(b.String())
}

func helpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}
