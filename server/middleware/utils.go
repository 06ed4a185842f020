package middlewares

import (
	"net/http"

	"github.com/grabtube/grabtube/server/config"
	"github.com/grabtube/grabtube/server/user"
)

func ApplyAuthenticationByConfig(next http.Handler) http.Handler {
	handler := next

	if config.Instance().Authentication.RequireAuth {
		handler = Authenticated(handler)
	}

	return handler
}

// Authenticated rejects requests without a valid session token, taken from
// the session cookie or an Authorization bearer header.
func Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := user.TokenFromRequest(r)
		if token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := user.ValidateToken(token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
