// Package bridge runs the message dispatch loop: it merges live and
// synthetic ingress sources, drops duplicates, applies trigger policy,
// attaches persisted topic context, and hands each message to the
// configured handler.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/andthezhang/takopi-swarm/internal/lockfile"
	"github.com/andthezhang/takopi-swarm/internal/telegram"
	"github.com/andthezhang/takopi-swarm/internal/topics"
)

// Inbound is a message enriched with whatever topic state exists for
// its thread. Workdir is resolved from the bound context and is empty
// for unbound threads and plain chat messages.
type Inbound struct {
	Message       telegram.IncomingMessage
	Context       *topics.RunContext
	Workdir       string
	DefaultEngine string
	// Sessions maps engine ids to resume tokens recorded for the
	// thread.
	Sessions map[string]string
}

// RunResult is what a handler reports back after a run. A non-empty
// Engine and SessionID pair is persisted as the thread's resume token.
type RunResult struct {
	Engine    string
	SessionID string
}

// Handler executes one message. Returning a nil result is fine for
// messages that do not produce a resumable session.
type Handler interface {
	HandleMessage(ctx context.Context, in Inbound) (*RunResult, error)
}

// WorkdirResolver maps a bound context onto the directory a run should
// execute in. Implementations live with the hosting deployment; git
// concerns stay out of this module. Implementations must reject branch
// names that are empty after trimming, start with '/', or contain '..'
// path parts; the loop skips the message when resolution fails.
type WorkdirResolver interface {
	ResolveWorkdir(ctx context.Context, rc topics.RunContext) (string, error)
}

// ContextSource is the read side of the topic state the loop needs.
type ContextSource interface {
	GetThread(ctx context.Context, chatID, threadID int64) (*topics.ThreadSnapshot, error)
}

// SessionRecorder persists engine resume tokens after a handled run.
type SessionRecorder interface {
	SetSession(ctx context.Context, chatID, threadID int64, engine, sessionID string) error
}

// Options wires a Loop. Only Handler is required.
type Options struct {
	Handler  Handler
	Store    ContextSource
	Sessions SessionRecorder
	Resolver WorkdirResolver
	// Gate is the trigger policy for live messages, for example a
	// mention requirement. Synthetic ingress messages bypass it; their
	// producers already decided the message should run.
	Gate func(telegram.IncomingMessage) bool
	// LockPath, when set, is acquired before consuming so at most one
	// loop drains a given inbox.
	LockPath string
	Logger   *slog.Logger
}

// Loop consumes merged message sources until its context is cancelled.
type Loop struct {
	handler  Handler
	store    ContextSource
	sessions SessionRecorder
	resolver WorkdirResolver
	gate     func(telegram.IncomingMessage) bool
	lockPath string
	log      *slog.Logger

	seen map[int64]*seenRing
}

func NewLoop(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		handler:  opts.Handler,
		store:    opts.Store,
		sessions: opts.Sessions,
		resolver: opts.Resolver,
		gate:     opts.Gate,
		lockPath: opts.LockPath,
		log:      logger,
		seen:     map[int64]*seenRing{},
	}
}

// Run drains the sources until ctx is cancelled or every source
// closes. Dispatch is sequential; one message finishes before the next
// starts.
func (l *Loop) Run(ctx context.Context, sources ...<-chan telegram.IncomingMessage) error {
	if l.handler == nil {
		return errors.New("bridge: no handler configured")
	}
	if l.lockPath != "" {
		lock, err := lockfile.Acquire(l.lockPath)
		if err != nil {
			if errors.Is(err, lockfile.ErrAlreadyLocked) {
				return fmt.Errorf("another bridge is consuming this inbox: %w", err)
			}
			return err
		}
		defer func() { _ = lock.Release() }()
	}

	in := merge(ctx, sources...)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			l.dispatch(ctx, msg)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, msg telegram.IncomingMessage) {
	if l.seenFor(msg.ChatID).remember(msg.MessageID) {
		l.log.Debug("duplicate message dropped",
			"chat_id", msg.ChatID, "message_id", msg.MessageID)
		return
	}
	if l.gate != nil && !msg.Synthetic() && !l.gate(msg) {
		l.log.Debug("message did not pass trigger policy",
			"chat_id", msg.ChatID, "message_id", msg.MessageID)
		return
	}

	in := Inbound{Message: msg}
	if l.store != nil && msg.ThreadID != nil {
		snap, err := l.store.GetThread(ctx, msg.ChatID, *msg.ThreadID)
		if err != nil {
			l.log.Warn("topic state lookup failed",
				"chat_id", msg.ChatID, "thread_id", *msg.ThreadID, "error", err)
		} else if snap != nil {
			in.Context = snap.Context
			in.DefaultEngine = snap.DefaultEngine
			in.Sessions = snap.Sessions
		}
	}
	if l.resolver != nil && in.Context != nil {
		wd, err := l.resolver.ResolveWorkdir(ctx, *in.Context)
		if err != nil {
			l.log.Error("workdir resolution failed, message skipped",
				"context", in.Context.Label(), "error", err)
			return
		}
		in.Workdir = wd
	}

	res, err := l.handler.HandleMessage(ctx, in)
	if err != nil {
		l.log.Error("message handler failed",
			"chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
		return
	}
	if res != nil && l.sessions != nil && msg.ThreadID != nil && res.Engine != "" && res.SessionID != "" {
		if err := l.sessions.SetSession(ctx, msg.ChatID, *msg.ThreadID, res.Engine, res.SessionID); err != nil {
			l.log.Warn("session record failed",
				"chat_id", msg.ChatID, "thread_id", *msg.ThreadID, "engine", res.Engine, "error", err)
		}
	}
}

func (l *Loop) seenFor(chatID int64) *seenRing {
	r, ok := l.seen[chatID]
	if !ok {
		r = newSeenRing()
		l.seen[chatID] = r
	}
	return r
}

// merge fans every source into one channel and closes it when all
// sources are done.
func merge(ctx context.Context, sources ...<-chan telegram.IncomingMessage) <-chan telegram.IncomingMessage {
	out := make(chan telegram.IncomingMessage)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range src {
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
