package sweeper

import (
	"context"
	"fmt"
	"time"
)

type chatCloser interface {
	CloseStale(ctx context.Context, now time.Time) (int64, error)
}

type chatCleanupJob struct {
	chat chatCloser
	now  func() time.Time
}

// NewChatCleanupJob cancels idle and expired chat order sessions.
func NewChatCleanupJob(chat chatCloser) (Job, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat service required")
	}
	return &chatCleanupJob{chat: chat, now: time.Now}, nil
}

func (j *chatCleanupJob) Name() string { return "chat-session-cleanup" }

func (j *chatCleanupJob) Run(ctx context.Context) (int64, error) {
	return j.chat.CloseStale(ctx, j.now().UTC())
}
