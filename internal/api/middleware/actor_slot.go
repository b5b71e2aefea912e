package middleware

import (
	"context"

	"github.com/foundernet/engine/internal/policy"
)

type actorSlotKeyType string

const actorSlotKey actorSlotKeyType = "actor_slot"

type actorSlot struct {
	actor string
}

func withActorSlot(ctx context.Context, s *actorSlot) context.Context {
	return context.WithValue(ctx, actorSlotKey, s)
}

func recordActor(ctx context.Context, a policy.Actor) {
	if s, ok := ctx.Value(actorSlotKey).(*actorSlot); ok {
		s.actor = a.String()
	}
}
