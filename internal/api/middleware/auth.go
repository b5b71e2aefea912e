package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/foundernet/engine/internal/policy"
)

type actorKeyType string

const ActorKey actorKeyType = "actor"

// Verifier turns a bearer token into the acting identity.
type Verifier interface {
	Verify(token string) (policy.Actor, error)
}

func bearer(r *http.Request) (string, bool) {
	ah := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(ah[len("Bearer "):]), true
}

// Auth requires a valid bearer token and stores the actor in the context.
func Auth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearer(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			actor, err := v.Verify(tokenStr)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// OptionalAuth lets requests without a token through as the anonymous
// actor, so the policy layer can deny them explicitly. A token that is
// present but invalid is still rejected.
func OptionalAuth(v Verifier) func(http.Handler) http.Handler {
	required := Auth(v)
	return func(next http.Handler) http.Handler {
		withToken := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bearer(r); ok {
				withToken.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), policy.Anonymous())))
		})
	}
}

func WithActor(ctx context.Context, a policy.Actor) context.Context {
	recordActor(ctx, a)
	return context.WithValue(ctx, ActorKey, a)
}

// GetActor returns the actor stored by Auth or OptionalAuth, or the
// anonymous actor.
func GetActor(ctx context.Context) policy.Actor {
	if v, ok := ctx.Value(ActorKey).(policy.Actor); ok {
		return v
	}
	return policy.Anonymous()
}
