package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type clientIPKey struct{}

// WithRequestID stores the inbound request id.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithClientIP stores the caller address used for rate limiting and audit entries.
func WithClientIP(ctx stdcontext.Context, ip string) stdcontext.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(clientIPKey{}).(string)
	return value
}

type actorKey struct{}

// WithActor stores who is acting on the request, e.g. the admin account name.
func WithActor(ctx stdcontext.Context, actor string) stdcontext.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(actorKey{}).(string)
	return value
}
