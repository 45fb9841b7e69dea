package config

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultInboxFilename is the queue file created beside the config
	// file when swarm.inbox_path is not set.
	DefaultInboxFilename = "swarm-inbox.jsonl"

	// DefaultPollInterval paces inbox polling when
	// swarm.poll_interval_seconds is not set.
	DefaultPollInterval = 350 * time.Millisecond
)

// SwarmSettings is the raw swarm section of the config file.
type SwarmSettings struct {
	Enabled   bool   `yaml:"enabled"`
	InboxPath string `yaml:"inbox_path,omitempty"`
	// PollIntervalSeconds must be greater than zero when set.
	PollIntervalSeconds *float64 `yaml:"poll_interval_seconds,omitempty"`
}

func (s *SwarmSettings) validate() error {
	if s.PollIntervalSeconds != nil && *s.PollIntervalSeconds <= 0 {
		return Errorf("swarm.poll_interval_seconds must be greater than zero, got %v", *s.PollIntervalSeconds)
	}
	return nil
}

// SwarmIngress is the resolved ingress configuration.
type SwarmIngress struct {
	InboxPath    string
	PollInterval time.Duration
}

// SwarmIngress resolves the ingress settings for a config loaded from
// configPath. It returns nil when the swarm section is absent or
// disabled; ingress and the trigger/control senders stay off in that
// case.
func (s *Settings) SwarmIngress(configPath string) *SwarmIngress {
	sw := s.Swarm
	if sw == nil || !sw.Enabled {
		return nil
	}
	inbox := strings.TrimSpace(sw.InboxPath)
	if inbox == "" {
		inbox = filepath.Join(filepath.Dir(configPath), DefaultInboxFilename)
	} else {
		inbox = resolveNear(configPath, inbox)
	}
	interval := DefaultPollInterval
	if sw.PollIntervalSeconds != nil {
		interval = time.Duration(*sw.PollIntervalSeconds * float64(time.Second))
	}
	return &SwarmIngress{InboxPath: inbox, PollInterval: interval}
}
