package host

// Route path constants
const (
	// Auth routes
	RouteNaverCallback  = "/auth/naver/callback"
	RouteAuthLogout     = "/auth/logout"
	RouteAuthSession    = "/auth/session"
	RouteAuthVisibility = "/auth/visibility"

	// Authenticated API pass-through
	RouteAPI = "/api/*"

	RouteHealth = "/healthz"
)
