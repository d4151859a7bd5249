package alarm

import (
	"context"

	"google.golang.org/grpc/metadata"

	domain "github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// Metadata keys carrying the operator identity.
const (
	MetadataHostname = "x-actor-hostname"
	MetadataUsername = "x-actor-username"
)

// WithOutgoingActor attaches the actor to outgoing request metadata.
func WithOutgoingActor(ctx context.Context, actor *domain.Actor) context.Context {
	if actor == nil {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx,
		MetadataHostname, actor.Hostname,
		MetadataUsername, actor.Username,
	)
}

// ActorFromIncoming reads the actor from incoming request metadata.
// It returns nil when the caller did not identify itself.
func ActorFromIncoming(ctx context.Context) *domain.Actor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	actor := &domain.Actor{
		Hostname: firstValue(md, MetadataHostname),
		Username: firstValue(md, MetadataUsername),
	}

	if actor.Hostname == "" && actor.Username == "" {
		return nil
	}

	return actor
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}

	return ""
}
