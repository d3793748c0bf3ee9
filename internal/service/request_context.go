package service

import "context"

const AnonymousActor = "anonymous"

// Actor is the caller identity attached by the auth middleware.
type Actor struct {
	UserID   string
	Username string
	Role     string
}

func (a Actor) Name() string {
	if a.Username != "" {
		return a.Username
	}
	if a.UserID != "" {
		return a.UserID
	}
	return AnonymousActor
}

type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type actorKey struct{}
type requestMetaKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

func RequestMetaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m
}
