package middleware

import (
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/baharkarakas/user-accounts/internal/api/httpx"
)

const msgTooManyRequests = "Too many requests"

// Throttle caps concurrent requests at limit. Requests over the cap are
// refused at once with a 429 envelope. A limit of zero or less disables it.
func Throttle(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	sem := semaphore.NewWeighted(int64(limit))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sem.TryAcquire(1) {
				w.Header().Set("Retry-After", "1")
				httpx.WriteJSON(w, http.StatusTooManyRequests, httpx.Envelope{
					Status:  http.StatusTooManyRequests,
					Message: msgTooManyRequests,
				})
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}
