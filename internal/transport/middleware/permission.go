package middleware

import (
	"net/http"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
	"github.com/frahmantamala/expense-approval/pkg/logger"
)

// RequireCapability admits the request when the actor's role grants any of
// caps. The role table is consulted on every request, not stored per user.
func RequireCapability(base *transport.BaseHandler, actorOf user.ActorResolver, caps ...user.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorOf(r.Context())
			if !ok {
				base.HandleServiceError(w, internal.ErrUnauthenticated)
				return
			}

			for _, c := range caps {
				if actor.Can(c) {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.From(r.Context()).Warn("access denied",
				"user_id", actor.ID,
				"role", string(actor.Role),
				"required_capabilities", caps)
			base.HandleServiceError(w, internal.ErrNotAuthorized)
		})
	}
}
