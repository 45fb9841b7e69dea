package cli

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andthezhang/takopi-swarm/internal/topics"
)

// seedTopicState binds one context in the state store the config under
// cfgPath points at.
func seedTopicState(t *testing.T, cfgPath string) {
	t.Helper()
	store, err := topics.Open(filepath.Join(filepath.Dir(cfgPath), "topics.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	rc := topics.RunContext{Project: "takopi", Branch: "main"}
	if err := store.SetContext(ctx, -100111, 19, rc, "Takopi @main"); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	if err := store.SetDefaultEngine(ctx, -100111, 19, "claude"); err != nil {
		t.Fatalf("SetDefaultEngine: %v", err)
	}
	if err := store.SetSession(ctx, -100111, 19, "claude", "sess_1"); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
}

func TestTopicsList_Empty(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t, testConfigBody)
	out, err := runCommand(context.Background(), t, "--config", cfg, "topics", "list")
	if err != nil {
		t.Fatalf("topics list: %v", err)
	}
	if out != "no tracked topics\n" {
		t.Fatalf("output=%q, want placeholder line", out)
	}
}

func TestTopicsList_RendersBindings(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t, testConfigBody)
	seedTopicState(t, cfg)

	out, err := runCommand(context.Background(), t, "--config", cfg, "topics", "list")
	if err != nil {
		t.Fatalf("topics list: %v", err)
	}
	want := "-100111:19  ctx=Takopi@main  title=\"Takopi @main\"  default_engine=claude  sessions=claude\n"
	if out != want {
		t.Fatalf("output=%q, want %q", out, want)
	}

	// A chat filter that matches nothing prints the placeholder.
	out, err = runCommand(context.Background(), t, "--config", cfg, "topics", "list", "--chat-id", "-5")
	if err != nil {
		t.Fatalf("topics list filtered: %v", err)
	}
	if out != "no tracked topics\n" {
		t.Fatalf("filtered output=%q", out)
	}
}

func TestTopicsStatus(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t, testConfigBody)
	seedTopicState(t, cfg)

	out, err := runCommand(context.Background(), t,
		"--config", cfg, "topics", "status", "--chat-id", "-100111", "--thread-id", "19", "--json")
	if err != nil {
		t.Fatalf("topics status: %v", err)
	}
	var st topics.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("Unmarshal %q: %v", out, err)
	}
	if st.Project != "Takopi" || st.Branch != "main" || st.DefaultEngine != "claude" {
		t.Fatalf("status=%+v", st)
	}
	if len(st.Sessions) != 1 || st.Sessions[0] != "claude" {
		t.Fatalf("Sessions=%v, want [claude]", st.Sessions)
	}
}

func TestTopicsStatus_NotFound(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t, testConfigBody)
	_, err := runCommand(context.Background(), t,
		"--config", cfg, "topics", "status", "--chat-id", "-1", "--thread-id", "7")
	if err == nil {
		t.Fatalf("unknown topic reported success")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitFailure {
		t.Fatalf("error=%v, want ExitError code %d", err, ExitFailure)
	}
	if !strings.Contains(err.Error(), "topic not found") {
		t.Fatalf("error=%q", err)
	}
}
