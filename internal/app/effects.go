package app

import (
	"context"
	"fmt"
)

// Effect is one post-commit side effect of a transition. Effects run after
// the guarded transition has committed; a failing effect is logged and
// counted but never reverts the transition or fails the webhook.
type Effect struct {
	Name string
	Run  func(context.Context) error
}

func (r *Reconciler) runEffects(ctx context.Context, paymentID string, effects ...Effect) {
	for _, e := range effects {
		if err := runEffect(ctx, e); err != nil {
			sideEffectFailures.WithLabelValues(e.Name).Inc()
			r.log.ErrorContext(ctx, "side effect failed, transition kept, reprocess out of band",
				"effect", e.Name,
				"payment_id", paymentID,
				"err", err)
		}
	}
}

func runEffect(ctx context.Context, e Effect) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in effect %s: %v", e.Name, p)
		}
	}()
	return e.Run(ctx)
}
