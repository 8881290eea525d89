package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/user"
)

// Middleware limits requests per actor (or per client address when no actor
// is resolved) under scope. Store failures let the request through.
func Middleware(base *transport.BaseHandler, limiter *Limiter, scope string, actorOf user.ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientKey(r, actorOf)

			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				base.Logger.Error("rate limit store unavailable", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				base.HandleServiceError(w, internal.NewRateLimitedError("too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request, actorOf user.ActorResolver) string {
	if actorOf != nil {
		if actor, ok := actorOf(r.Context()); ok {
			return fmt.Sprintf("user:%d", actor.ID)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
