package authz

import (
	"context"
	"time"

	"authgate.org/internal/obs"
)

const defaultUsageTimeout = 5 * time.Second

// Tracker records successful authorization decisions as permission usage
// counters. Accounting is best-effort: a failed or lost increment never
// affects a decision that already returned.
type Tracker struct {
	store   Store
	timeout time.Duration
}

// NewTracker constructs a Tracker over the credential store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, timeout: defaultUsageTimeout}
}

// Increment bumps the usage counter for the permission synchronously.
func (t *Tracker) Increment(ctx context.Context, permissionID string) error {
	return t.store.Permissions(ctx).IncrementUsage(ctx, permissionID)
}

// Record dispatches an increment on a detached goroutine with its own
// timeout, so a slow or failing store never delays the caller. Failures are
// counted and logged, never escalated.
func (t *Tracker) Record(permissionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.Increment(ctx, permissionID); err != nil {
			obs.IncUsageFailure()
			obs.Log(map[string]any{
				"ts":            time.Now().UTC().Format(time.RFC3339Nano),
				"level":         "warn",
				"msg":           "usage_increment_failed",
				"permission_id": permissionID,
				"error":         err.Error(),
			})
		}
	}()
}
