package session

import (
	"github.com/elisha-et/TutorLink/client"
)

// NavTarget is one navigation entry the shell renders.
type NavTarget struct {
	Label string
	Route string
}

// View is the role-scoped chrome for the current session state: which
// navigation entries to show, the primary call to action, and which
// roles the account could switch to.
type View struct {
	Nav     []NavTarget
	Primary NavTarget
	// SwitchableRoles is non-empty only for multi-role accounts; it
	// lists the roles other than the active one.
	SwitchableRoles []client.Role
}

const (
	RouteHome            = "/"
	RouteLogin           = "/login"
	RouteRegister        = "/register"
	RouteBrowse          = "/browse"
	RouteStudentRequests = "/student/requests"
	RouteNewRequest      = "/student/requests/new"
	RouteTutorRequests   = "/tutor/requests"
	RouteTutorProfile    = "/tutor/profile"
)

// ComposeView derives the navigation chrome from an identity. A nil
// identity yields the anonymous view. Tutor search is public, so the
// browse entry shows for anonymous visitors and students alike.
func ComposeView(identity *Identity) View {
	if identity == nil {
		return View{
			Nav: []NavTarget{
				{Label: "Find a tutor", Route: RouteBrowse},
				{Label: "Log in", Route: RouteLogin},
			},
			Primary: NavTarget{Label: "Sign up", Route: RouteRegister},
		}
	}

	var view View
	switch identity.ActiveRole {
	case client.RoleTutor:
		view.Nav = []NavTarget{
			{Label: "Dashboard", Route: RouteHome},
			{Label: "Help requests", Route: RouteTutorRequests},
		}
		view.Primary = NavTarget{Label: "Edit profile", Route: RouteTutorProfile}
	default:
		view.Nav = []NavTarget{
			{Label: "Dashboard", Route: RouteHome},
			{Label: "Find a tutor", Route: RouteBrowse},
			{Label: "Help requests", Route: RouteStudentRequests},
		}
		view.Primary = NavTarget{Label: "Post a request", Route: RouteNewRequest}
	}

	for _, role := range identity.Roles {
		if role != identity.ActiveRole {
			view.SwitchableRoles = append(view.SwitchableRoles, role)
		}
	}
	return view
}
