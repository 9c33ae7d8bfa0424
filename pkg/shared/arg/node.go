package arg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Paintersrp/lifelog/internal/command"
	"github.com/Paintersrp/lifelog/internal/fzf"
	"github.com/Paintersrp/lifelog/internal/state"
	"github.com/Paintersrp/lifelog/internal/tree"
	"github.com/Paintersrp/lifelog/internal/txn"
)

// ErrNotApplied is returned when the coordinator did not commit a command.
var ErrNotApplied = errors.New("change was not applied")

var pickNode = func(ctx context.Context, t *tree.Tree, header string) (string, error) {
	return fzf.NewNodeFinder(t, header).Run(ctx)
}

// NodeID returns the first argument, or lets the user pick a node from the
// active collection when none was given.
func NodeID(ctx context.Context, s *state.State, args []string, header string) (string, error) {
	if len(args) > 0 {
		if id := strings.TrimSpace(args[0]); id != "" {
			return id, nil
		}
	}
	return pickNode(ctx, s.Tree, header)
}

// Apply selects id and runs the named command on it. A dropped or aborted
// batch is reported as ErrNotApplied.
func Apply(ctx context.Context, s *state.State, name command.Name, id, text string) (command.Outcome, error) {
	s.Dispatcher.SetCursor(id)
	out, err := s.Dispatcher.Dispatch(ctx, name, text)
	if err != nil {
		return out, err
	}
	if out.Result != txn.Committed {
		return out, fmt.Errorf("%w: %s", ErrNotApplied, out.Result)
	}
	return out, nil
}
