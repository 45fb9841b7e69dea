package topics

import (
	"context"
	"sort"
	"strings"
)

// Status is the read-only projection of one topic binding, shaped for
// CLI output and diagnostics.
type Status struct {
	ChatID        int64    `json:"chat_id"`
	ThreadID      int64    `json:"thread_id"`
	Project       string   `json:"project,omitempty"`
	Branch        string   `json:"branch,omitempty"`
	TopicTitle    string   `json:"topic_title,omitempty"`
	DefaultEngine string   `json:"default_engine,omitempty"`
	Sessions      []string `json:"sessions"`
}

// ContextLabel renders the bound context, or "-" for an unbound
// thread.
func (s Status) ContextLabel() string {
	if s.Project == "" {
		return "-"
	}
	if s.Branch == "" {
		return s.Project
	}
	return s.Project + "@" + s.Branch
}

// SnapshotToStatus projects a snapshot for display. The project id is
// swapped for its configured alias when one exists; unknown ids fall
// back to the raw key so stale bindings stay visible instead of
// disappearing.
func SnapshotToStatus(snap ThreadSnapshot, aliases map[string]string) Status {
	st := Status{
		ChatID:        snap.ChatID,
		ThreadID:      snap.ThreadID,
		TopicTitle:    snap.TopicTitle,
		DefaultEngine: snap.DefaultEngine,
		Sessions:      make([]string, 0, len(snap.Sessions)),
	}
	for engine := range snap.Sessions {
		st.Sessions = append(st.Sessions, engine)
	}
	sort.Strings(st.Sessions)
	if snap.Context != nil {
		alias, ok := aliases[snap.Context.Project]
		if !ok || strings.TrimSpace(alias) == "" {
			alias = snap.Context.Project
		}
		st.Project = alias
		st.Branch = snap.Context.Branch
	}
	return st
}

// ListTopicStatuses projects every known binding, ordered by chat and
// thread id. Pass chatID 0 for all chats.
func ListTopicStatuses(ctx context.Context, store StateStore, chatID int64, aliases map[string]string) ([]Status, error) {
	snaps, err := store.ListThreads(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, SnapshotToStatus(snap, aliases))
	}
	return out, nil
}
