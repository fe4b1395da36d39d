package gate

import "github.com/jrsteele09/tutorhub-session/users"

const (
	RouteLogin          = "/login"
	RouteParentHome     = "/parent/dashboard"
	RouteCoachHome      = "/coach/dashboard"
	RouteAdminDashboard = "/admin/dashboard"
)

// Routes maps each role to its home view.
type Routes struct {
	Login string
	Homes map[users.Role]string
}

func DefaultRoutes() Routes {
	return Routes{
		Login: RouteLogin,
		Homes: map[users.Role]string{
			users.RoleParent: RouteParentHome,
			users.RoleCoach:  RouteCoachHome,
			users.RoleAdmin:  RouteAdminDashboard,
		},
	}
}

// Home returns the role's home view, or the login view for an unknown role.
func (r Routes) Home(role users.Role) string {
	if home, ok := r.Homes[role]; ok && home != "" {
		return home
	}
	return r.Login
}
