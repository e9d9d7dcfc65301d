package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"account-api/internal/observability"
)

type contextKey struct{}

var userContextKey contextKey

// UserFromContext returns the authenticated user attached by
// Authenticate, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

// UserFetcher loads the current user row for an authenticated request.
// *Repository satisfies it.
type UserFetcher interface {
	GetUserByID(ctx context.Context, id int64) (User, error)
}

// Authenticate resolves a bearer access token into the current user and
// attaches it to the request context. The user row is fetched fresh on
// every request so a deactivated account or changed role takes effect
// before the token expires. Any failure leaves the request anonymous;
// route guards decide whether anonymous is acceptable.
func Authenticate(codec *TokenCodec, users UserFetcher, log *observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, ok := codec.ValidateAccessToken(tokenStr)
		if !ok {
			log.Info("access token rejected", map[string]any{"path": r.URL.Path})
			next.ServeHTTP(w, r)
			return
		}

		userID, ok := claims.UserID()
		if !ok {
			log.Info("access token subject unparsable", map[string]any{"path": r.URL.Path})
			next.ServeHTTP(w, r)
			return
		}

		user, err := users.GetUserByID(r.Context(), userID)
		if err != nil || !user.Active {
			log.Info("access token user unavailable", map[string]any{
				"path":    r.URL.Path,
				"user_id": userID,
			})
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles guards a route. No authenticated user is 401; a
// non-empty role list that excludes the user's role is 403. An empty
// list admits any authenticated user.
func RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if len(roles) > 0 && !slices.Contains(roles, user.Role) {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
