package telegram

import "context"

// SendOptions adjusts delivery of an outbound message.
type SendOptions struct {
	// ThreadID targets a forum topic thread when set.
	ThreadID *int64
	// DisableNotification delivers the message silently.
	DisableNotification bool
}

// Client is the minimal transport contract the swarm subsystem needs.
// Implementations live with the hosting deployment.
//
// CreateForumTopic returns a nil topic (with a nil error) when the
// platform declines the request without a transport failure.
// EditForumTopic returns false when the rename did not happen, usually
// because the topic no longer exists on the platform; callers treat a
// returned error the same way.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*SentMessage, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (*ForumTopic, error)
	EditForumTopic(ctx context.Context, chatID int64, threadID int64, name string) (bool, error)
}
