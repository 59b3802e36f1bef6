package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"pronto-ballbot/internal/logging"
	"pronto-ballbot/pkg/apierror"
)

// Recovery turns a handler panic into a 500 response and logs the stack.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered",
						zap.Any("panic", err),
						zap.String("request_id", GetRequestID(r.Context())),
						zap.ByteString("stack", debug.Stack()),
					)

					apiErr := apierror.InternalError("")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(apiErr.StatusCode)
					_, _ = w.Write(apiErr.ToJSON())
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
