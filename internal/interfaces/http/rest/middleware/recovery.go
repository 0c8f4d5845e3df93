package middleware

import (
	"net/http"

	"github.com/hchapman/WBOR-sub000/pkg/api"

	"go.uber.org/zap"
)

// Recovery turns a panic into a 500 response and logs it with its stack.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic while serving request",
						zap.Any("panic", err),
						zap.String("requestID", GetRequestIDFromRequest(r)),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					// Nothing can be sent once the body has started.
					if w.Header().Get("Content-Type") == "" {
						api.Error(w, http.StatusInternalServerError, "Internal server error")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
