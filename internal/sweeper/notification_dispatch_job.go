package sweeper

import (
	"context"
	"fmt"

	"github.com/migueldlcruz/tindago-backend/internal/notifications"
)

type notificationDrainer interface {
	DispatchPending(ctx context.Context, batchSize int) (notifications.DispatchResult, error)
}

type notificationDispatchJob struct {
	notify    notificationDrainer
	batchSize int
}

// NewNotificationDispatchJob drains queued notifications through the relay.
func NewNotificationDispatchJob(notify notificationDrainer, batchSize int) (Job, error) {
	if notify == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	return &notificationDispatchJob{notify: notify, batchSize: batchSize}, nil
}

func (j *notificationDispatchJob) Name() string { return "notification-dispatch" }

func (j *notificationDispatchJob) Run(ctx context.Context) (int64, error) {
	result, err := j.notify.DispatchPending(ctx, j.batchSize)
	if err != nil {
		return int64(result.Sent), err
	}
	if result.Failed > 0 {
		return int64(result.Sent), fmt.Errorf("%d notifications failed to send", result.Failed)
	}
	return int64(result.Sent), nil
}
