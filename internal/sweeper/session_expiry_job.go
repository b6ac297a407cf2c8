package sweeper

import (
	"context"
	"fmt"
	"time"
)

type sessionExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type sessionExpiryJob struct {
	checkout sessionExpirer
	now      func() time.Time
}

// NewSessionExpiryJob closes checkout sessions whose payment window has ended.
func NewSessionExpiryJob(checkout sessionExpirer) (Job, error) {
	if checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	return &sessionExpiryJob{checkout: checkout, now: time.Now}, nil
}

func (j *sessionExpiryJob) Name() string { return "checkout-session-expiry" }

func (j *sessionExpiryJob) Run(ctx context.Context) (int64, error) {
	return j.checkout.ExpireStale(ctx, j.now().UTC())
}
