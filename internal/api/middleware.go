/**
 * @description
 * This file contains custom middleware for the HTTP router. The only custom
 * middleware here is the submit rate limiter: throttling belongs to the
 * transport layer, never to the derivation engine, which accepts every
 * well-typed event it is handed.
 *
 * @dependencies
 * - context, net, net/http, time: Standard Go libraries.
 */

package api

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"
)

// SubmitRateLimiter counts submissions per subject within a window. Implemented
// by app.RedisSubmitRateLimiter; nil disables throttling.
type SubmitRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// SubmitRateLimit returns a middleware throttling requests per client address.
// The limiter failing is not a reason to drop traffic: errors log a warning
// and the request proceeds.
func SubmitRateLimit(limiter SubmitRateLimiter, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			subject := clientAddress(r)
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "submit_event", subject, perMinute, time.Minute)
			if err != nil {
				log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" subject=%s err=%v", subject, err)
				next.ServeHTTP(w, r)
				return
			}
			if count > perMinute {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many submissions; retry later.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
