package root

import (
	"bytes"
	"context"
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
		Ordering:    "order-key",
		BatchPolicy: "drop",
	}, nil)
	if err != nil {
		t.Fatalf("state.Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func run(t *testing.T, s *state.State, args ...string) string {
	t.Helper()
	cmd, err := NewCmdRoot(s)
	if err != nil {
		t.Fatalf("NewCmdRoot returned error: %v", err)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SilenceErrors = true
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v returned error: %v", args, err)
	}
	return out.String()
}

func TestCommandTree(t *testing.T) {
	cmd, err := NewCmdRoot(newState(t))
	if err != nil {
		t.Fatalf("NewCmdRoot returned error: %v", err)
	}

	for _, name := range []string{
		"add", "edit", "rm", "indent", "dedent", "move", "ls",
		"search", "check", "outline", "sync", "backup", "tui", "workspace",
	} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (%v)", name, found, err)
		}
	}
}

func TestPreloadedStateSwitchesCollection(t *testing.T) {
	s := newState(t)

	run(t, s, "add", "in the default collection")
	run(t, s, "--collection", "journal", "add", "in the journal")
	if s.Settings.Collection != "journal" {
		t.Fatalf("expected the journal collection to be active, got %q", s.Settings.Collection)
	}

	out := run(t, s, "-c", "journal")
	if !strings.Contains(out, "in the journal") || strings.Contains(out, "default collection") {
		t.Fatalf("unexpected listing %q", out)
	}
}
