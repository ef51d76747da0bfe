package shared

import (
	"context"

	"github.com/registria/registria/internal/identity"
)

type actorContextKey struct{}

// ContextWithActor stores the calling account in context.
func ContextWithActor(ctx context.Context, actor identity.Account) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the calling account. ok is false when the request
// carried no actor identity.
func ActorFromContext(ctx context.Context) (identity.Account, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(identity.Account)
	if !ok || actor.IsZero() {
		return identity.Account{}, false
	}
	return actor, true
}
