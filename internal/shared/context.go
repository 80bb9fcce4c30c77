package shared

import "context"

// Actor is the caller identity resolved by the outer layers before the
// billing core runs. The core only reads it for audit fields.
type Actor struct {
	UserID     int64
	BusinessID int64
	Role       string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
