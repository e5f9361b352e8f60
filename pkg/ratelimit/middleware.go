package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/getmockd/wshub/pkg/httputil"
)

// RejectFunc observes a rejected request.
type RejectFunc func(r *http.Request, clientIP string, retryAfter time.Duration)

// Middleware rejects requests from addresses that ran out of tokens with
// 429 and a Retry-After header. A nil limiter passes everything through.
func Middleware(l *Limiter, onReject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := l.ClientIP(r)
			ok, wait := l.Allow(ip)
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			if onReject != nil {
				onReject(r, ip, wait)
			}

			secs := int64(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			httputil.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many connection attempts, retry later")
		})
	}
}
