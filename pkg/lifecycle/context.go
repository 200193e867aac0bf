package lifecycle

import "context"

// ownerKey marks a context as belonging to the in-flight transition of one
// component. Hooks receive such a context; a lifecycle call made with it on
// the same component is a reentrant call.
type ownerKey struct{ c *Component }

// currentKey holds the innermost in-flight record of the context.
type currentKey struct{}

func withOwner(ctx context.Context, rec *inflight) context.Context {
	ctx = context.WithValue(ctx, ownerKey{rec.desc.target}, rec)
	return context.WithValue(ctx, currentKey{}, rec)
}

func ownedRecord(ctx context.Context, c *Component) *inflight {
	rec, _ := ctx.Value(ownerKey{c}).(*inflight)
	return rec
}

// ComponentFromContext returns the component whose hook received ctx, or
// nil outside a hook.
func ComponentFromContext(ctx context.Context) *Component {
	if rec, ok := ctx.Value(currentKey{}).(*inflight); ok {
		return rec.desc.target
	}
	return nil
}

// TransitionFromContext returns the descriptor of the transition whose
// hook received ctx.
func TransitionFromContext(ctx context.Context) (TransitionDescriptor, bool) {
	if rec, ok := ctx.Value(currentKey{}).(*inflight); ok {
		return rec.desc, true
	}
	return TransitionDescriptor{}, false
}

// PreviousStatus returns the status the component had when the transition
// whose hook received ctx was admitted.
func PreviousStatus(ctx context.Context) (Status, bool) {
	if rec, ok := ctx.Value(currentKey{}).(*inflight); ok {
		return rec.from, true
	}
	return "", false
}
