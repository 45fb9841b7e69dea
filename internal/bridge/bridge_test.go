package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andthezhang/takopi-swarm/internal/lockfile"
	"github.com/andthezhang/takopi-swarm/internal/telegram"
	"github.com/andthezhang/takopi-swarm/internal/topics"
)

type fakeHandler struct {
	mu      sync.Mutex
	calls   []Inbound
	result  *RunResult
	err     error
	handled chan struct{}
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{handled: make(chan struct{}, 64)}
}

func (h *fakeHandler) HandleMessage(_ context.Context, in Inbound) (*RunResult, error) {
	h.mu.Lock()
	h.calls = append(h.calls, in)
	res, err := h.result, h.err
	h.mu.Unlock()
	h.handled <- struct{}{}
	return res, err
}

func (h *fakeHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *fakeHandler) call(i int) Inbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[i]
}

type fakeResolver struct {
	dir string
	err error
}

func (r fakeResolver) ResolveWorkdir(_ context.Context, rc topics.RunContext) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return filepath.Join(r.dir, rc.Project), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runLoop starts the loop over a single feed channel and returns the
// feed plus a way to stop and wait for exit.
func runLoop(t *testing.T, l *Loop) (chan telegram.IncomingMessage, func() error) {
	t.Helper()
	feed := make(chan telegram.IncomingMessage)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, feed) }()
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatalf("loop did not exit")
			return nil
		}
	}
	t.Cleanup(func() { cancel() })
	return feed, stop
}

func waitHandled(t *testing.T, h *fakeHandler, want int) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for i := 0; i < want; i++ {
		select {
		case <-h.handled:
		case <-deadline:
			t.Fatalf("handled %d messages, want %d", h.callCount(), want)
		}
	}
}

func liveMessage(chatID, messageID int64, text string) telegram.IncomingMessage {
	return telegram.IncomingMessage{
		Transport: telegram.TransportID,
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
}

func TestLoop_DropsDuplicates(t *testing.T) {
	t.Parallel()

	h := newFakeHandler()
	l := NewLoop(Options{Handler: h, Logger: quietLogger()})
	feed, stop := runLoop(t, l)

	feed <- liveMessage(-1, 42, "run it")
	feed <- liveMessage(-1, 42, "run it")
	// The same id in a different chat is a different message.
	feed <- liveMessage(-2, 42, "run it")
	waitHandled(t, h, 2)

	if err := stop(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
	if got := h.callCount(); got != 2 {
		t.Fatalf("handled %d messages, want 2", got)
	}
}

func TestLoop_GateSkipsLiveButNotSynthetic(t *testing.T) {
	t.Parallel()

	h := newFakeHandler()
	l := NewLoop(Options{
		Handler: h,
		Gate: func(m telegram.IncomingMessage) bool {
			return strings.Contains(m.Text, "@takopi")
		},
		Logger: quietLogger(),
	})
	feed, stop := runLoop(t, l)

	feed <- liveMessage(-1, 1, "just chatting")
	feed <- liveMessage(-1, 2, "@takopi deploy")
	synthetic := liveMessage(-1, -1, "queued trigger")
	synthetic.IngressSource = "swarm"
	synthetic.IngressIntent = "trigger"
	feed <- synthetic
	waitHandled(t, h, 2)

	if err := stop(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
	if got := h.callCount(); got != 2 {
		t.Fatalf("handled %d messages, want gated live + synthetic", got)
	}
	if h.call(0).Message.MessageID != 2 || !h.call(1).Message.Synthetic() {
		t.Fatalf("wrong messages handled: %+v, %+v", h.call(0).Message, h.call(1).Message)
	}
}

func TestLoop_AttachesContextAndRecordsSession(t *testing.T) {
	t.Parallel()

	store, err := topics.Open(filepath.Join(t.TempDir(), "topics.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	rc := topics.RunContext{Project: "takopi", Branch: "main"}
	if err := store.SetContext(ctx, -1, 19, rc, "Takopi @main"); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	if err := store.SetDefaultEngine(ctx, -1, 19, "claude"); err != nil {
		t.Fatalf("SetDefaultEngine: %v", err)
	}

	h := newFakeHandler()
	h.result = &RunResult{Engine: "claude", SessionID: "sess_7"}
	l := NewLoop(Options{
		Handler:  h,
		Store:    store,
		Sessions: store,
		Resolver: fakeResolver{dir: "/work"},
		Logger:   quietLogger(),
	})
	feed, stop := runLoop(t, l)

	thread := int64(19)
	msg := liveMessage(-1, 5, "continue")
	msg.ThreadID = &thread
	feed <- msg
	waitHandled(t, h, 1)
	if err := stop(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}

	in := h.call(0)
	if in.Context == nil || in.Context.Project != "takopi" || in.Context.Branch != "main" {
		t.Fatalf("Context=%+v, want takopi@main", in.Context)
	}
	if in.Workdir != filepath.Join("/work", "takopi") {
		t.Fatalf("Workdir=%q, want resolver output", in.Workdir)
	}
	if in.DefaultEngine != "claude" {
		t.Fatalf("DefaultEngine=%q, want claude", in.DefaultEngine)
	}

	snap, err := store.GetThread(ctx, -1, 19)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got := snap.Sessions["claude"]; got != "sess_7" {
		t.Fatalf("recorded session=%q, want sess_7", got)
	}
}

func TestLoop_SkipsMessageWhenWorkdirFails(t *testing.T) {
	t.Parallel()

	store, err := topics.Open(filepath.Join(t.TempDir(), "topics.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if err := store.SetContext(context.Background(), -1, 19, topics.RunContext{Project: "takopi"}, "Takopi"); err != nil {
		t.Fatalf("SetContext: %v", err)
	}

	h := newFakeHandler()
	l := NewLoop(Options{
		Handler:  h,
		Store:    store,
		Resolver: fakeResolver{err: errors.New("worktree missing")},
		Logger:   quietLogger(),
	})
	feed, stop := runLoop(t, l)

	thread := int64(19)
	bound := liveMessage(-1, 1, "run")
	bound.ThreadID = &thread
	feed <- bound
	// An unbound message has no context, so the resolver never runs.
	feed <- liveMessage(-1, 2, "run")
	waitHandled(t, h, 1)

	if err := stop(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
	if got := h.callCount(); got != 1 {
		t.Fatalf("handled %d messages, want only the unbound one", got)
	}
	if h.call(0).Message.MessageID != 2 {
		t.Fatalf("handled message %d, want 2", h.call(0).Message.MessageID)
	}
}

func TestLoop_RequiresHandler(t *testing.T) {
	t.Parallel()

	l := NewLoop(Options{Logger: quietLogger()})
	if err := l.Run(context.Background()); err == nil {
		t.Fatalf("Run without handler succeeded")
	}
}

func TestLoop_ReturnsNilWhenSourcesClose(t *testing.T) {
	t.Parallel()

	h := newFakeHandler()
	l := NewLoop(Options{Handler: h, Logger: quietLogger()})

	feed := make(chan telegram.IncomingMessage, 1)
	feed <- liveMessage(-1, 1, "last words")
	close(feed)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background(), feed) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("loop did not exit after sources closed")
	}
	if got := h.callCount(); got != 1 {
		t.Fatalf("handled %d messages, want 1", got)
	}
}

func TestLoop_LockExcludesSecondConsumer(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "inbox.jsonl.lock")
	lock, err := lockfile.Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	l := NewLoop(Options{Handler: newFakeHandler(), LockPath: lockPath, Logger: quietLogger()})
	err = l.Run(context.Background())
	if err == nil || !errors.Is(err, lockfile.ErrAlreadyLocked) {
		t.Fatalf("Run under held lock: %v, want ErrAlreadyLocked", err)
	}
	if !strings.Contains(err.Error(), "another bridge is consuming this inbox") {
		t.Fatalf("Run error=%q, want consumer hint", err)
	}
}
