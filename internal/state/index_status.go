package state

import (
	"fmt"
	"strings"
	"time"

	indexsvc "github.com/Paintersrp/lifelog/internal/services/index"
	"github.com/Paintersrp/lifelog/internal/txn"
)

// StatsSource is the part of the index service the status line reads.
type StatsSource interface {
	Stats() indexsvc.Stats
}

// StatusLine summarizes the coordinator and search index for the CLI and
// the terminal UI footer.
func (s *State) StatusLine() string {
	if s == nil {
		return ""
	}

	var parts []string
	if s.Coordinator != nil {
		parts = append(parts, formatCoordinatorStatus(s.Coordinator.State(), s.Coordinator.Versions().Last()))
	}
	if s.Index != nil {
		parts = append(parts, formatIndexStatus(s.Index))
	}
	return strings.Join(parts, " · ")
}

func formatCoordinatorStatus(st txn.State, last string) string {
	if last == "" {
		return fmt.Sprintf("Txn: %s", st)
	}
	return fmt.Sprintf("Txn: %s @%s", st, shortToken(last))
}

func shortToken(token string) string {
	if i := strings.IndexByte(token, '-'); i > 0 {
		return token[:i]
	}
	return token
}

func formatIndexStatus(svc StatsSource) string {
	if svc == nil {
		return ""
	}

	stats := svc.Stats()
	parts := []string{fmt.Sprintf("Idx: %d entries, pending %d", stats.Entries, stats.Pending)}
	if !stats.LastRebuild.IsZero() {
		parts = append(parts, fmt.Sprintf("rebuilt %s", formatRebuildTime(stats.LastRebuild)))
	}

	return strings.Join(parts, " · ")
}

func formatRebuildTime(t time.Time) string {
	return t.Local().Format("15:04")
}
