package auth

import (
	"context"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type actorKey struct{}

func ContextWithActor(ctx context.Context, actor user.Actor) context.Context {
	ctx = internal.ContextWithUserID(ctx, actor.ID)
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext satisfies user.ActorResolver.
func ActorFromContext(ctx context.Context) (user.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(user.Actor)
	return actor, ok
}
