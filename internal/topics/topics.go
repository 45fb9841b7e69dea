// Package topics maps execution contexts onto chat forum topics and
// keeps the persisted bindings in line with what actually exists on
// the platform.
package topics

import (
	"context"
	"strings"
)

// RunContext identifies what a topic thread is working on: a project
// id and, optionally, a branch. An empty branch means the project's
// default checkout.
type RunContext struct {
	Project string `json:"project"`
	Branch  string `json:"branch,omitempty"`
}

// Label renders the context for humans: "project", "project@branch",
// or "-" when empty.
func (rc RunContext) Label() string {
	if rc.Project == "" {
		return "-"
	}
	if rc.Branch == "" {
		return rc.Project
	}
	return rc.Project + "@" + rc.Branch
}

// NormalizeBranch trims a branch name; whitespace-only input collapses
// to the empty branch.
func NormalizeBranch(branch string) string {
	return strings.TrimSpace(branch)
}

// BuildTopicTitle derives the forum topic title for a context. The
// same context always yields the same title, which is what makes
// reconciliation idempotent.
func BuildTopicTitle(projectAlias, branch string) string {
	if branch != "" {
		return projectAlias + " @" + branch
	}
	return projectAlias
}

// ThreadSnapshot is the persisted state of one forum topic thread.
// Sessions maps engine ids to their resume tokens.
type ThreadSnapshot struct {
	ChatID        int64
	ThreadID      int64
	Context       *RunContext
	Sessions      map[string]string
	TopicTitle    string
	DefaultEngine string
}

// StateStore is the persistence contract the reconciliation service
// and status projection run against. GetThread returns nil for an
// unknown thread; FindThreadForContext reports whether a binding
// exists. ListThreads takes chatID 0 to mean every chat.
type StateStore interface {
	GetThread(ctx context.Context, chatID, threadID int64) (*ThreadSnapshot, error)
	ListThreads(ctx context.Context, chatID int64) ([]ThreadSnapshot, error)
	FindThreadForContext(ctx context.Context, chatID int64, rc RunContext) (int64, bool, error)
	SetContext(ctx context.Context, chatID, threadID int64, rc RunContext, topicTitle string) error
	DeleteThread(ctx context.Context, chatID, threadID int64) error
}
