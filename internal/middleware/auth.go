package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorechamp/internal/auth"
	"github.com/dukerupert/chorechamp/internal/store"
)

const unauthenticatedMessage = "Please authenticate."

// RequireAuth validates the bearer token, loads its user and populates
// AuthContext. Missing, invalid or expired tokens and tokens whose user no
// longer exists are all answered with 401.
func RequireAuth(tokens *auth.TokenIssuer, users *store.UserStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
				return
			}

			userID, err := tokens.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
				return
			}

			u, err := users.GetByID(userID)
			if err != nil {
				logger.Error("load authenticated user", "user_id", userID, "error", err)
				writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
				return
			}
			if u == nil {
				writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.ForUser(u))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParent rejects authenticated callers that are not parents.
func RequireParent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsParent(r.Context()) {
			writeError(w, http.StatusForbidden, "Only parents can perform this action")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a websocket upgrade, so /ws also accepts a token query parameter.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" && r.URL.Path == "/ws" {
		token := r.URL.Query().Get("token")
		return token, token != ""
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
