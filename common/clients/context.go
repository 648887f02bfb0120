package clients

import "context"

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the acting user's identity in the context so downstream
// calls and audit fields can pick it up.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the acting user's identity from the context.
func GetActor(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey).(string)
	return actor, ok && actor != ""
}
