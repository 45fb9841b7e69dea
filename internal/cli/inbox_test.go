package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andthezhang/takopi-swarm/internal/lockfile"
	"github.com/andthezhang/takopi-swarm/internal/swarm"
)

func TestInboxTail_PrintsQueuedTriggers(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t, testConfigBody)
	inbox := filepath.Join(filepath.Dir(cfg), "swarm-inbox.jsonl")

	thread := int64(19)
	env, err := swarm.NewEnvelope(swarm.IntentTrigger, -100111, &thread, "ship it", "manager")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := swarm.AppendEnvelope(inbox, env); err != nil {
		t.Fatalf("AppendEnvelope: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := runCommand(ctx, t, "--config", cfg, "inbox", "tail")
	if err != nil {
		t.Fatalf("inbox tail: %v", err)
	}
	want := "-1  chat=-100111  thread=19  origin=manager  text=\"ship it\"\n"
	if out != want {
		t.Fatalf("output=%q, want %q", out, want)
	}
}

func TestInboxTail_RefusesSecondConsumer(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t, testConfigBody)
	inbox := filepath.Join(filepath.Dir(cfg), "swarm-inbox.jsonl")
	lock, err := lockfile.Acquire(lockfile.ForQueue(inbox))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	_, err = runCommand(context.Background(), t, "--config", cfg, "inbox", "tail")
	if err == nil {
		t.Fatalf("second consumer accepted")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitFailure {
		t.Fatalf("error=%v, want ExitError code %d", err, ExitFailure)
	}
	if !strings.Contains(err.Error(), "already consuming") {
		t.Fatalf("error=%q", err)
	}
}
