package lifecycle

import (
	"context"
	"time"
)

// historySize bounds the statuses a waiter can catch up on after waking.
const historySize = 32

type statusRecord struct {
	seq    uint64
	status Status
}

// publishLocked sets the status, records it, wakes every waiter and emits a
// StatusEvent. c.mu must be held, which keeps waiters and notifier
// consumers in publish order.
func (c *Component) publishLocked(status Status, reason string) {
	old := c.status
	if old == status {
		return
	}
	c.status = status
	c.seq++
	c.history[c.seq%historySize] = statusRecord{seq: c.seq, status: status}

	close(c.changed)
	c.changed = make(chan struct{})

	c.notify(StatusEvent{
		Component: c.FQN(),
		Old:       old,
		New:       status,
		Reason:    reason,
		At:        time.Now().UTC(),
	})
}

// WaitFor blocks until the component reaches target, maxWait elapses or ctx
// is done. With breakOnFailure it also returns when the component reaches
// Error or CriticalError. It reports whether target was reached. A
// non-positive maxWait waits only for ctx.
//
// Statuses published while the waiter was asleep are examined in publish
// order, so a short-lived target status is not missed. Called from a hook
// of the component itself, WaitFor returns false immediately: the status
// cannot change before that hook returns.
func (c *Component) WaitFor(ctx context.Context, target Status, maxWait time.Duration, breakOnFailure bool) bool {
	if c.ownedBy(ctx) {
		c.logger.WarnContext(ctx, "lifecycle: wait for own status from inside a transition",
			"component", c.FQN(),
			"target", string(target),
		)
		return false
	}

	var expired <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		expired = timer.C
	}

	c.mu.Lock()
	seen := c.seq
	status := c.status
	changed := c.changed
	c.mu.Unlock()

	for {
		if status == target {
			return true
		}
		if status == StatusDestroyed || (breakOnFailure && status.IsFailure()) {
			return false
		}

		select {
		case <-changed:
		case <-expired:
			return false
		case <-ctx.Done():
			return false
		}

		c.mu.Lock()
		reached, failed := c.scanLocked(seen, target, breakOnFailure)
		seen = c.seq
		status = c.status
		changed = c.changed
		c.mu.Unlock()

		if reached {
			return true
		}
		if failed {
			return false
		}
	}
}

// scanLocked walks the statuses published after seq in order and reports
// whether target or, when breakOnFailure is set, a failure status came
// first.
func (c *Component) scanLocked(seq uint64, target Status, breakOnFailure bool) (reached, failed bool) {
	first := seq + 1
	if c.seq >= historySize && first <= c.seq-historySize {
		first = c.seq - historySize + 1
	}
	for s := first; s <= c.seq; s++ {
		rec := c.history[s%historySize]
		if rec.seq != s {
			continue
		}
		if rec.status == target {
			return true, false
		}
		if breakOnFailure && rec.status.IsFailure() {
			return false, true
		}
	}
	return false, false
}

// WaitForEnabled waits until the component is Enabled, giving up early on
// Error or CriticalError.
func (c *Component) WaitForEnabled(ctx context.Context, maxWait time.Duration) bool {
	return c.WaitFor(ctx, StatusEnabled, maxWait, true)
}

// WaitForDown waits until the component is Down, giving up early on Error
// or CriticalError.
func (c *Component) WaitForDown(ctx context.Context, maxWait time.Duration) bool {
	return c.WaitFor(ctx, StatusDown, maxWait, true)
}

// Changed returns a channel closed on the next status change.
func (c *Component) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}
