package sweeper

import (
	"context"
	"fmt"
	"time"
)

type intentFlagger interface {
	FlagStuckIntents(ctx context.Context, now time.Time) (int64, error)
}

type stuckIntentJob struct {
	checkout intentFlagger
	now      func() time.Time
}

// NewStuckIntentJob flags sessions whose invoice claim never completed so
// operators can reconcile them against the provider dashboard.
func NewStuckIntentJob(checkout intentFlagger) (Job, error) {
	if checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	return &stuckIntentJob{checkout: checkout, now: time.Now}, nil
}

func (j *stuckIntentJob) Name() string { return "checkout-stuck-intents" }

func (j *stuckIntentJob) Run(ctx context.Context) (int64, error) {
	return j.checkout.FlagStuckIntents(ctx, j.now().UTC())
}
