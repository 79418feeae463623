package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/iam"
)

// RequirePermission builds a Chi middleware enforcing obj/act for the
// request's principal. Missing principals get 401, refused ones 403.
func RequirePermission(iamService iam.Service, obj, act string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.GetCurrentPrincipal(r.Context())
			if !ok {
				unauthenticated(w)
				return
			}

			allowed, err := iamService.Authorize(r.Context(), principal, obj, act)
			if err != nil {
				logger.Error("authorization error",
					zap.String("subject", principal.Subject),
					zap.String("obj", obj),
					zap.String("act", act),
					zap.Error(err))
				http.Error(w, "authorization error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				logger.Info("authorization denied",
					zap.String("subject", principal.Subject),
					zap.String("obj", obj),
					zap.String("act", act))
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
