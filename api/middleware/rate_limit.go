/*
 * @module api/middleware/rate_limit
 * @description Rejects mining submissions beyond the configured per-client and global rates
 * @architecture 中间件 - 请求拦截
 * @stateFlow client id -> Limiter.Check -> rate headers -> next handler or 429
 * @rules Limiter failures let the request through; the client id is the remote IP (set RealIP upstream when behind a proxy)
 * @dependencies github.com/go-chi/render, service/rate_limiter
 * @refs api/routes.go
 */

package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/hanamichi-me/DW-traffic/service/rate_limiter"
)

// RateLimitOptions configures RateLimit. A zero limit disables that rule.
type RateLimitOptions struct {
	Window    time.Duration
	PerClient int
	Global    int
}

type limitedResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// RateLimit builds the middleware.
func RateLimit(limiter rate_limiter.Limiter, opts RateLimitOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var rules []rate_limiter.Rule
			if opts.PerClient > 0 {
				rules = append(rules, rate_limiter.Rule{
					Scope: rate_limiter.ScopeClient, TargetID: clientID(r), Window: opts.Window, MaxRequests: opts.PerClient,
				})
			}
			if opts.Global > 0 {
				rules = append(rules, rate_limiter.Rule{
					Scope: rate_limiter.ScopeGlobal, Window: opts.Window, MaxRequests: opts.Global,
				})
			}

			res, err := limiter.Check(r.Context(), rules)
			if err != nil {
				slog.Warn("rate limit check failed, allowing request", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if res.Limit >= 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))
			}
			if !res.Allowed {
				retry := res.ResetAt - time.Now().Unix()
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, limitedResponse{
					Status: http.StatusTooManyRequests,
					Msg:    res.Scope + " mining rate exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
