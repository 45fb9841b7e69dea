package cli

import (
	"strings"
	"testing"

	"github.com/andthezhang/takopi-swarm/internal/topics"
)

func TestEchoStatusLine(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	echoStatusLine(&b, topics.Status{
		ChatID:        -100123,
		ThreadID:      19,
		Project:       "Takopi",
		Branch:        "main",
		TopicTitle:    "Takopi @main",
		DefaultEngine: "claude",
		Sessions:      []string{"claude", "codex"},
	})
	want := "-100123:19  ctx=Takopi@main  title=\"Takopi @main\"  default_engine=claude  sessions=claude, codex\n"
	if b.String() != want {
		t.Fatalf("line=%q, want %q", b.String(), want)
	}

	b.Reset()
	echoStatusLine(&b, topics.Status{ChatID: -1, ThreadID: 2})
	want = "-1:2  ctx=-  title=\"-\"  default_engine=-  sessions=none\n"
	if b.String() != want {
		t.Fatalf("line=%q, want %q", b.String(), want)
	}
}

func TestJSONDump(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	if err := jsonDump(&b, map[string]string{"text": "<run> & go"}); err != nil {
		t.Fatalf("jsonDump: %v", err)
	}
	if got := b.String(); got != "{\"text\":\"<run> & go\"}\n" {
		t.Fatalf("jsonDump=%q, want unescaped compact JSON", got)
	}
}

func TestIsTerminalWriter(t *testing.T) {
	t.Parallel()

	if isTerminalWriter(&strings.Builder{}) {
		t.Fatalf("builder reported as terminal")
	}
}
