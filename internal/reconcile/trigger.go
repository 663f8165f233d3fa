// Package reconcile fires the post sign-in profile reconciliation call at most
// once per session.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"authbridge/pkg/idp"
	"authbridge/pkg/metrics"
)

type Outcome string

const (
	OutcomeFired   Outcome = "fired"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Trigger is edge triggered: the first observation of a signed-in session
// wins the guard and makes the call, later observations are skipped.
type Trigger struct {
	client Client
	guard  Guard
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewTrigger(client Client, guard Guard, log *zap.SugaredLogger) *Trigger {
	return &Trigger{client: client, guard: guard, log: log, now: time.Now}
}

// Fire never returns an error: a failed reconciliation is logged and the
// caller navigates anyway. A guard error skips the call.
func (t *Trigger) Fire(ctx context.Context, sess idp.Session) Outcome {
	out := t.fire(ctx, sess)
	metrics.Reconciliations.WithLabelValues(string(out)).Inc()
	return out
}

func (t *Trigger) fire(ctx context.Context, sess idp.Session) Outcome {
	if !sess.SignedIn {
		return OutcomeSkipped
	}
	key := sess.SessionID
	if key == "" {
		key = "user:" + sess.UserID
	}
	ok, err := t.guard.Acquire(ctx, key)
	if err != nil {
		t.log.Warnw("reconciliation guard unavailable, skipping", "session", sess.SessionID, "err", err)
		return OutcomeSkipped
	}
	if !ok {
		return OutcomeSkipped
	}

	res, err := t.client.Reconcile(ctx, sess, Request{
		TriggerSource: TriggerSignIn,
		Timestamp:     t.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		t.log.Warnw("profile reconciliation failed", "user", sess.UserID, "session", sess.SessionID, "err", err)
		return OutcomeFailed
	}
	t.log.Infow("profile reconciliation done", "user", sess.UserID, "needed", res.ReconciliationNeeded)
	return OutcomeFired
}
