package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/iam"
)

// MultiAuthMiddleware authenticates every request through the IAM service.
//
//   - Valid credentials: the principal is stored on the request context
//   - No credentials: the request continues unauthenticated; routes that
//     need a principal use RequireAuthenticated or RequirePermission
//   - Invalid credentials: 401 "unauthenticated", with no detail
func MultiAuthMiddleware(iamService iam.Service, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			principal, err := iamService.AuthenticateRequest(ctx, iam.NewAuthRequest(r))
			if err != nil {
				// The failure kind is enough; tokens never reach the log.
				logger.Debug("request authentication failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("kind", string(auth.FailureKindOf(err))))
				unauthenticated(w)
				return
			}

			if principal != nil {
				ctx = auth.SetPrincipalContext(ctx, principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects requests without a principal.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetCurrentPrincipal(r.Context()); !ok {
			unauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthenticated(w http.ResponseWriter) {
	http.Error(w, "unauthenticated", http.StatusUnauthorized)
}
