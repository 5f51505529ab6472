package httpserver

import (
	"context"

	"github.com/sukryu/auth-service/internal/model"
)

type ctxKey string

const (
	actorKey     ctxKey = "auth.actor"
	requestIDKey ctxKey = "auth.requestID"
)

// WithActor stores the authenticated user in context.
func WithActor(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, actorKey, u)
}

// ActorFromCtx fetches the authenticated user from context.
func ActorFromCtx(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(actorKey).(*model.User)
	return u, ok && u != nil
}

// RequestIDFromCtx returns the id assigned by the RequestID middleware.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
