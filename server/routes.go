package server

import "github.com/jrsteele09/tutorhub-session/users"

func (s *Server) initRoutes() {
	// AUTH
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))

	// API routes (bearer token required)
	s.RegisterRouteHandler("GET "+RouteAPIMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth)...))
	s.RegisterRouteHandler("GET "+RouteAPIAdmin, ChainMiddleware(s.AdminPingHandler(), s.APIMiddleware(s.RequireAuth, s.RequireRole(users.RoleAdmin))...))
}
