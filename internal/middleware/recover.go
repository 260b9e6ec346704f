package middleware

import (
	"log/slog"
	"net/http"

	"github.com/baharkarakas/user-accounts/internal/api/httpx"
)

func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.ErrorContext(r.Context(), "panic", "err", rec, "request_id", RequestIDFrom(r.Context()))
				httpx.WriteInternal(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
