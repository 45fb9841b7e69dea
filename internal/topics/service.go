package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andthezhang/takopi-swarm/internal/telegram"
)

// Service reconciles execution contexts with forum topics on the
// platform and over the StateStore.
type Service struct {
	bot   telegram.Client
	store StateStore
	log   *slog.Logger
}

func NewService(bot telegram.Client, store StateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bot: bot, store: store, log: logger}
}

// EnsureParams names the context a caller wants a topic for.
type EnsureParams struct {
	ChatID  int64
	Project string
	// ProjectAlias is the display name used in the topic title.
	// Defaults to the project id.
	ProjectAlias string
	Branch       string
	// BindState controls whether the resulting thread is persisted as
	// the context's binding. Without it the topic is still created or
	// reused, but the store is left untouched.
	BindState bool
}

// EnsureTopicThread makes sure a forum topic exists for the context
// and returns its status plus whether a new topic was created.
//
// An existing binding is reused after renaming the external topic to
// the canonical title; a failed rename means the topic is gone, so the
// stale binding is dropped and a fresh topic created. Calling this
// twice with the same inputs settles on one thread.
func (s *Service) EnsureTopicThread(ctx context.Context, p EnsureParams) (Status, bool, error) {
	project := strings.ToLower(strings.TrimSpace(p.Project))
	if project == "" {
		return Status{}, false, errors.New("missing project")
	}
	if p.ChatID == 0 {
		return Status{}, false, errors.New("missing chat id")
	}
	alias := strings.TrimSpace(p.ProjectAlias)
	if alias == "" {
		alias = project
	}
	rc := RunContext{Project: project, Branch: NormalizeBranch(p.Branch)}
	title := BuildTopicTitle(alias, rc.Branch)
	aliases := map[string]string{project: alias}

	threadID, found, err := s.store.FindThreadForContext(ctx, p.ChatID, rc)
	if err != nil {
		return Status{}, false, err
	}
	if found {
		renamed, err := s.bot.EditForumTopic(ctx, p.ChatID, threadID, title)
		if renamed && err == nil {
			st, err := s.finishEnsure(ctx, p.ChatID, threadID, rc, title, p.BindState, aliases)
			return st, false, err
		}
		if err != nil {
			s.log.Warn("forum topic rename failed, recreating",
				"chat_id", p.ChatID, "thread_id", threadID, "error", err)
		} else {
			s.log.Warn("forum topic gone, recreating",
				"chat_id", p.ChatID, "thread_id", threadID)
		}
		if err := s.store.DeleteThread(ctx, p.ChatID, threadID); err != nil {
			return Status{}, false, err
		}
	}

	topic, err := s.bot.CreateForumTopic(ctx, p.ChatID, title)
	if err != nil {
		return Status{}, false, fmt.Errorf("create forum topic %q in chat %d: %w", title, p.ChatID, err)
	}
	if topic == nil || topic.ThreadID == 0 {
		return Status{}, false, fmt.Errorf("create forum topic %q in chat %d: no topic returned", title, p.ChatID)
	}
	st, err := s.finishEnsure(ctx, p.ChatID, topic.ThreadID, rc, title, p.BindState, aliases)
	return st, true, err
}

// finishEnsure persists the binding when asked and projects the
// resulting status. A snapshot the store cannot produce yet is
// synthesized in place so callers always get a usable status.
func (s *Service) finishEnsure(ctx context.Context, chatID, threadID int64, rc RunContext, title string, bind bool, aliases map[string]string) (Status, error) {
	if bind {
		if err := s.store.SetContext(ctx, chatID, threadID, rc, title); err != nil {
			return Status{}, err
		}
	}
	snap, err := s.store.GetThread(ctx, chatID, threadID)
	if err != nil {
		return Status{}, err
	}
	if snap == nil {
		snap = &ThreadSnapshot{
			ChatID:     chatID,
			ThreadID:   threadID,
			Sessions:   map[string]string{},
			TopicTitle: title,
		}
		if bind {
			snap.Context = &rc
		}
	}
	return SnapshotToStatus(*snap, aliases), nil
}

// SendControlMessage delivers an out-of-band note into a chat or a
// specific topic thread. Unless notify is set, delivery is silent.
func (s *Service) SendControlMessage(ctx context.Context, chatID int64, threadID *int64, text string, notify bool) (int64, error) {
	msg, err := s.bot.SendMessage(ctx, chatID, text, telegram.SendOptions{
		ThreadID:            threadID,
		DisableNotification: !notify,
	})
	if err != nil {
		return 0, fmt.Errorf("send control message to chat %d: %w", chatID, err)
	}
	if msg == nil {
		return 0, fmt.Errorf("send control message to chat %d: no message returned", chatID)
	}
	return msg.MessageID, nil
}
