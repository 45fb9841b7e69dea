package config

import (
	"sort"
	"strings"
)

// Project describes one repository the bridge drives. Map keys in the
// config file are the project ids; Validate lowercases them.
type Project struct {
	// Alias is the human-facing project name used in topic titles.
	// Defaults to the project id.
	Alias string `yaml:"alias,omitempty"`
	// Path is the repository checkout on disk.
	Path string `yaml:"path"`
	// ChatID routes this project to its own chat instead of the
	// transport default.
	ChatID int64 `yaml:"chat_id,omitempty"`
	// DefaultEngine picks the coding engine for new topics.
	DefaultEngine string `yaml:"default_engine,omitempty"`
	// WorktreesRoot and WorktreeBase feed the working-directory
	// resolver of the hosting deployment.
	WorktreesRoot string `yaml:"worktrees_root,omitempty"`
	WorktreeBase  string `yaml:"worktree_base,omitempty"`
}

// ProjectAliases returns the id to alias mapping used by status
// projection.
func (s *Settings) ProjectAliases() map[string]string {
	aliases := make(map[string]string, len(s.Projects))
	for id, p := range s.Projects {
		aliases[id] = p.Alias
	}
	return aliases
}

// ProjectIDs returns the configured project ids, sorted.
func (s *Settings) ProjectIDs() []string {
	ids := make([]string, 0, len(s.Projects))
	for id := range s.Projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveProject looks up a project by id, case-insensitively.
func (s *Settings) ResolveProject(raw string) (string, Project, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if p, ok := s.Projects[id]; ok {
		return id, p, nil
	}
	ids := s.ProjectIDs()
	if len(ids) == 0 {
		return "", Project{}, Errorf("unknown project %q: no projects configured", raw)
	}
	return "", Project{}, Errorf("unknown project %q; available project ids: %s", raw, strings.Join(ids, ", "))
}

// ResolveTargetChatID picks the chat for an operation: an explicit
// chat id wins, then the project's chat, then the transport default.
func (s *Settings) ResolveTargetChatID(projectID string, explicit int64) (int64, error) {
	if explicit != 0 {
		return explicit, nil
	}
	if projectID != "" {
		if p, ok := s.Projects[projectID]; ok && p.ChatID != 0 {
			return p.ChatID, nil
		}
	}
	if s.Transport.ChatID != 0 {
		return s.Transport.ChatID, nil
	}
	return 0, Errorf("no chat id configured: pass --chat-id or set transport.chat_id")
}
