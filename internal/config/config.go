// Package config loads and validates the bridge configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error is a configuration problem the operator has to fix, as opposed
// to a runtime failure. The CLI maps it to its usage exit code.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

// Errorf builds a configuration Error.
func Errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Settings is the on-disk configuration for the bridge and its swarm
// subsystem.
type Settings struct {
	Transport Transport          `yaml:"transport"`
	Projects  map[string]Project `yaml:"projects,omitempty"`
	Swarm     *SwarmSettings     `yaml:"swarm,omitempty"`

	// StatePath overrides where the topic state database lives.
	// If empty, it defaults to topics.sqlite beside the config file.
	StatePath string `yaml:"state_path,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `yaml:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `yaml:"log_level,omitempty"`
}

// Transport holds the chat platform settings shared by every project.
type Transport struct {
	// ChatID is the default chat for projects without one of their own.
	ChatID int64 `yaml:"chat_id,omitempty"`
	// BotToken is consumed by the wire client of the hosting
	// deployment; nothing in this module reads it.
	BotToken string `yaml:"bot_token,omitempty"`
}

func (s *Settings) Validate() error {
	if s == nil {
		return errors.New("nil settings")
	}
	normalized := make(map[string]Project, len(s.Projects))
	for key, p := range s.Projects {
		id := strings.ToLower(strings.TrimSpace(key))
		if id == "" {
			return Errorf("projects: empty project id")
		}
		if _, dup := normalized[id]; dup {
			return Errorf("projects: duplicate project id %q", id)
		}
		if strings.TrimSpace(p.Path) == "" {
			return Errorf("projects.%s: missing path", id)
		}
		if strings.TrimSpace(p.Alias) == "" {
			p.Alias = id
		}
		normalized[id] = p
	}
	s.Projects = normalized
	if s.Swarm != nil {
		if err := s.Swarm.validate(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultConfigPath returns the default config path:
//
//	~/.takopi-swarm/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "takopi-swarm.config.yaml"
	}
	return filepath.Join(home, ".takopi-swarm", "config.yaml")
}

func Load(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, Errorf("invalid config %s: %v", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &s, nil
}

// EffectiveStatePath resolves the topic state database location for a
// config loaded from configPath.
func (s *Settings) EffectiveStatePath(configPath string) string {
	if p := strings.TrimSpace(s.StatePath); p != "" {
		return resolveNear(configPath, p)
	}
	return filepath.Join(filepath.Dir(configPath), "topics.sqlite")
}

// resolveNear interprets a relative path against the config file's
// directory so config files relocate cleanly.
func resolveNear(configPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
