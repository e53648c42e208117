package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/tokenguard"
)

// PermissionChecker resolves effective permissions. *tokenguard.Engine
// implements it.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, code string) (bool, error)
}

// RequirePermission must run after RequireAuth. An empty code lets every
// authenticated caller through.
func RequirePermission(checker PermissionChecker, code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if code == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := tokenguard.AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			allowed, err := checker.HasPermission(r.Context(), res.UserID, code)
			switch {
			case err != nil && tokenguard.KindOf(err) == tokenguard.KindNotFound:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			case !allowed:
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
