package host

import (
	"net/http"

	"github.com/droniapp/go-auth-client/session"
)

// RequireAuth sends callers without an authenticated session to loginPath.
func RequireAuth(store *session.Store, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := store.State()
			if !state.IsAuthenticated || state.AccessToken == "" {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
