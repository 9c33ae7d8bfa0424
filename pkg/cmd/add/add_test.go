package add

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Paintersrp/lifelog/internal/config"
	"github.com/Paintersrp/lifelog/internal/state"
)

func newState(t *testing.T) *state.State {
	t.Helper()
	s, err := state.Open(context.Background(), config.Settings{
		Database:    "memory",
		Driver:      config.DriverMemory,
		Collection:  "lifelogs",
		Ordering:    "linked-list",
		BatchPolicy: "drop",
	}, nil)
	if err != nil {
		t.Fatalf("state.Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func execute(t *testing.T, s *state.State, args ...string) (string, error) {
	t.Helper()
	cmd := NewCmdAdd(s)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func flatten(t *testing.T, s *state.State) []string {
	t.Helper()
	rows, err := s.Tree.Session(nil).Flatten(context.Background(), "")
	if err != nil {
		t.Fatalf("Flatten returned error: %v", err)
	}
	var lines []string
	for _, r := range rows {
		lines = append(lines, strings.Repeat(">", r.Depth)+r.Node.Text)
	}
	return lines
}

func TestAddPlacesNodes(t *testing.T) {
	s := newState(t)

	first, err := execute(t, s, "first")
	if err != nil {
		t.Fatalf("add returned error: %v", err)
	}
	if first == "" {
		t.Fatalf("expected the new node id to be printed")
	}
	last, err := execute(t, s, "last")
	if err != nil {
		t.Fatalf("add returned error: %v", err)
	}
	if _, err := execute(t, s, "--after", first, "middle"); err != nil {
		t.Fatalf("add --after returned error: %v", err)
	}
	if _, err := execute(t, s, "--under", last, "nested", "words"); err != nil {
		t.Fatalf("add --under returned error: %v", err)
	}

	got := strings.Join(flatten(t, s), "|")
	want := "first|middle|last|>nested words"
	if got != want {
		t.Fatalf("unexpected tree %q, want %q", got, want)
	}
}

func TestAddRequiresText(t *testing.T) {
	s := newState(t)
	if _, err := execute(t, s); err == nil {
		t.Fatalf("expected an error when no text is given")
	}
}

func TestAddPasteReadsClipboard(t *testing.T) {
	s := newState(t)
	prev := readClipboard
	t.Cleanup(func() { readClipboard = prev })

	readClipboard = func() (string, error) { return "  from clipboard\n", nil }
	if _, err := execute(t, s, "--paste", "note:"); err != nil {
		t.Fatalf("add --paste returned error: %v", err)
	}
	if got := flatten(t, s); len(got) != 1 || got[0] != "note: from clipboard" {
		t.Fatalf("unexpected tree %v", got)
	}

	readClipboard = func() (string, error) { return "", errors.New("no clipboard") }
	if _, err := execute(t, s, "--paste"); err == nil {
		t.Fatalf("expected clipboard failure to surface")
	}
}

func TestAddRejectsBothPlacements(t *testing.T) {
	s := newState(t)
	if _, err := execute(t, s, "--under", "a", "--after", "b", "x"); err == nil {
		t.Fatalf("expected --under and --after to be exclusive")
	}
}
