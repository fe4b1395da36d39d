package server

// Route path constants
const (
	RouteAuthLogin    = "/auth/login"
	RouteAuthRegister = "/auth/register/{userType}"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthRefresh  = "/auth/refresh"

	RouteAPIMe    = "/api/me"
	RouteAPIAdmin = "/api/admin/ping"
)
