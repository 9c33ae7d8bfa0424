package tui

import (
	"context"
	"strings"
	"testing"

	"github.com/Paintersrp/lifelog/internal/config"
	"github.com/Paintersrp/lifelog/internal/state"
)

func TestTuiRequiresTerminal(t *testing.T) {
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
	defer s.Close()

	prev := isTerminal
	isTerminal = func() bool { return false }
	defer func() { isTerminal = prev }()

	cmd := NewCmdTui(s)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs(nil)
	err = cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "interactive terminal") {
		t.Fatalf("expected a terminal error, got %v", err)
	}
}
