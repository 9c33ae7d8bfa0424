package outline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Paintersrp/lifelog/internal/command"
	"github.com/Paintersrp/lifelog/internal/docstore"
	"github.com/Paintersrp/lifelog/internal/services/index"
	"github.com/Paintersrp/lifelog/internal/tree"
	"github.com/Paintersrp/lifelog/internal/txn"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	store := docstore.NewMemory()
	tr := tree.New(tree.NewDocs(store, "journal"), tree.LinkedList)
	coord := txn.New(store, txn.WithOrigin("tui"))
	seq := 0
	d := command.New(coord, tr, func() string {
		seq++
		return fmt.Sprintf("n%d", seq)
	})

	m := New(ctx, Config{Store: store, Tree: tr, Coordinator: coord, Dispatcher: d, Search: index.NewService(store, nil)})
	t.Cleanup(func() {
		m.Close()
		cancel()
		_ = store.Close()
	})
	return m
}

// exec runs cmd the way the bubbletea runtime would and feeds the result
// back into the model.
func exec(t *testing.T, m *Model, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	got := make(chan tea.Msg, 1)
	go func() { got <- cmd() }()
	select {
	case msg := <-got:
		_, next := m.Update(msg)
		return next
	case <-time.After(2 * time.Second):
		t.Fatalf("command did not complete")
		return nil
	}
}

func press(m *Model, msg tea.KeyMsg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// add opens the add prompt, types text, submits it and waits for the
// settled snapshot.
func add(t *testing.T, m *Model, trigger tea.KeyMsg, text string) {
	t.Helper()
	press(m, trigger)
	if m.mode == browsing {
		t.Fatalf("expected prompt after %q", trigger.String())
	}
	press(m, keyRunes(text))
	exec(t, m, press(m, tea.KeyMsg{Type: tea.KeyEnter}))
	exec(t, m, m.waitForSnapshot())
}

func TestEditorAddsIndentsSearchesAndRemoves(t *testing.T) {
	m := newTestModel(t)
	exec(t, m, m.Init())
	if !strings.Contains(m.View(), "empty") {
		t.Fatalf("expected empty placeholder, got:\n%s", m.View())
	}

	add(t, m, tea.KeyMsg{Type: tea.KeyEnter}, "hello")
	add(t, m, tea.KeyMsg{Type: tea.KeyEnter}, "world")
	if len(m.rows) != 2 || m.rows[1].Node.Text != "world" {
		t.Fatalf("unexpected rows %+v", m.rows)
	}

	exec(t, m, press(m, tea.KeyMsg{Type: tea.KeyTab}))
	exec(t, m, m.waitForSnapshot())
	if m.rows[1].Depth != 1 {
		t.Fatalf("expected world to be indented, got depth %d", m.rows[1].Depth)
	}
	if m.err != nil {
		t.Fatalf("unexpected error %v", m.err)
	}

	exec(t, m, press(m, keyRunes("k")))
	if got := m.cfg.Dispatcher.Cursor(); got != "n1" {
		t.Fatalf("expected cursor on hello, got %s", got)
	}

	press(m, keyRunes("/"))
	press(m, keyRunes("world"))
	exec(t, m, press(m, tea.KeyMsg{Type: tea.KeyEnter}))
	if len(m.results) != 1 || m.cfg.Dispatcher.Cursor() != "n2" {
		t.Fatalf("expected search to select world, got %+v cursor=%s", m.results, m.cfg.Dispatcher.Cursor())
	}

	exec(t, m, press(m, keyRunes("x")))
	exec(t, m, m.waitForSnapshot())
	if len(m.rows) != 1 || m.cfg.Dispatcher.Cursor() != "n1" {
		t.Fatalf("expected world removed and cursor on hello, rows=%+v cursor=%s", m.rows, m.cfg.Dispatcher.Cursor())
	}

	press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.results != nil || strings.Contains(m.View(), "world") {
		t.Fatalf("expected esc to clear results, got:\n%s", m.View())
	}
}

func TestEditPromptPrefillsText(t *testing.T) {
	m := newTestModel(t)
	exec(t, m, m.Init())
	add(t, m, tea.KeyMsg{Type: tea.KeyEnter}, "draft")

	press(m, keyRunes("e"))
	if m.mode != editing || m.input.Value() != "draft" {
		t.Fatalf("expected edit prompt with current text, got mode=%d value=%q", m.mode, m.input.Value())
	}
	press(m, keyRunes("!"))
	exec(t, m, press(m, tea.KeyMsg{Type: tea.KeyEnter}))
	exec(t, m, m.waitForSnapshot())
	if m.rows[0].Node.Text != "draft!" {
		t.Fatalf("expected edited text, got %q", m.rows[0].Node.Text)
	}

	press(m, keyRunes("o"))
	press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != browsing {
		t.Fatalf("esc should cancel the prompt")
	}
}

func TestStructuralCommandWithoutCursorReportsError(t *testing.T) {
	m := newTestModel(t)
	exec(t, m, m.Init())

	exec(t, m, press(m, tea.KeyMsg{Type: tea.KeyTab}))
	if m.err == nil || !strings.Contains(m.View(), "no node selected") {
		t.Fatalf("expected error in view, got:\n%s", m.View())
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(t)
	cmd := press(m, keyRunes("q"))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestRowsComeFromDeliveredSnapshot(t *testing.T) {
	m := newTestModel(t)
	exec(t, m, m.Init())
	add(t, m, tea.KeyMsg{Type: tea.KeyEnter}, "stored")

	// The store still holds "stored"; the rows must follow the snapshot.
	docs := make([]docstore.Document, 0, 2)
	for _, n := range []*tree.Node{
		{ID: "a", Text: "first", NextID: "b"},
		{ID: "b", Text: "second", PrevID: "a"},
	} {
		doc, err := n.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		docs = append(docs, doc)
	}
	m.Update(snapshotMsg{docs: docs})

	if m.err != nil {
		t.Fatalf("unexpected error %v", m.err)
	}
	if len(m.rows) != 2 || m.rows[0].Node.ID != "a" || m.rows[1].Node.ID != "b" {
		t.Fatalf("expected rows from snapshot, got %+v", m.rows)
	}
}
