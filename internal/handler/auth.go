package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Actor is the authenticated caller: sub carries the user id, role the
// coarse account type. Order-level authorization is decided per order
// by order.PartyOf, not by this role.
type Actor struct {
	ID   uuid.UUID
	Role string
}

type contextKey string

const actorKey contextKey = "actor"

func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithActor is used by tests to inject an authenticated caller.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// RequireAuth parses a Bearer HS256 token and puts the Actor on the
// request context.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondWithError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
				func(t *jwt.Token) (interface{}, error) {
					return []byte(secret), nil
				},
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil || !token.Valid {
				log.Debug().Err(err).Msg("Rejected bearer token")
				respondWithError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				respondWithError(w, http.StatusUnauthorized, "token has no subject")
				return
			}

			actorID, err := uuid.FromString(sub)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "token subject is not a user id")
				return
			}

			role, _ := claims["role"].(string)

			ctx := WithActor(r.Context(), Actor{ID: actorID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
