package logger

import "context"

type (
	requestIDKey struct{}
	actorIDKey   struct{}
)

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored on ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithActorID stores the id of the user acting on the request.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, id)
}

// ActorIDFromContext returns the acting user's id, or "".
func ActorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorIDKey{}).(string)
	return id
}
