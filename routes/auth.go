package routes

import (
	"context"
	"net/http"

	"github.com/fieldscope/vistoria/checklist"
	"github.com/fieldscope/vistoria/httpx"
	"github.com/go-chi/jwtauth/v5"
)

type actorKey struct{}

// ActorCtx extracts the authenticated actor from the verified bearer token.
// Token issuance lives in the identity service; only the claims are consumed
// here: sub, name, role and the permitted unit id list.
func ActorCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			httpx.RenderError(w, r, httpx.Unauthenticated("token inválido"), false)
			return
		}

		actor := checklist.Actor{}
		if sub, ok := claims["sub"].(string); ok {
			actor.ID = sub
		}
		if name, ok := claims["name"].(string); ok {
			actor.Name = name
		}
		if role, ok := claims["role"].(string); ok {
			actor.Role = role
		}
		if units, ok := claims["units"].([]any); ok {
			for _, u := range units {
				if id, ok := u.(string); ok {
					actor.UnitIDs = append(actor.UnitIDs, id)
				}
			}
		}

		if actor.ID == "" {
			httpx.RenderError(w, r, httpx.Unauthenticated("token sem identidade"), false)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) checklist.Actor {
	actor, _ := r.Context().Value(actorKey{}).(checklist.Actor)
	return actor
}
