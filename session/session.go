// Package session owns the authenticated lifecycle of an embedding
// application: token persistence, identity hydration on startup,
// login/logout, and the active-role view of a multi-role account.
// Consumers read immutable snapshots and subscribe to change events;
// the Guard and ComposeView helpers build on those snapshots.
package session

import (
	"github.com/elisha-et/TutorLink/client"
)

// Identity is the authenticated user as seen by the UI layer. Roles is
// the full set the account holds; ActiveRole is the one the interface
// is currently rendered for.
type Identity struct {
	UserID     string
	Name       string
	Email      string
	Roles      []client.Role
	ActiveRole client.Role
}

func (id Identity) HasRole(role client.Role) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Snapshot is an immutable point-in-time view of the session. Identity
// is nil when nobody is logged in. Ready reports whether startup
// hydration has completed; until then the state is provisional and
// guards must wait rather than redirect.
type Snapshot struct {
	Token    string
	Identity *Identity
	Ready    bool
}

func (s Snapshot) LoggedIn() bool {
	return s.Identity != nil
}
