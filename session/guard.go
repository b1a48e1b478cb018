package session

import (
	"context"
	"sync"

	"github.com/elisha-et/TutorLink/client"
)

// Decision is a guard verdict for a navigation attempt.
type Decision int

const (
	// DecisionAllow lets the navigation proceed.
	DecisionAllow Decision = iota
	// DecisionRequireLogin redirects to the login surface; the intended
	// destination is remembered and replayed after authentication.
	DecisionRequireLogin
	// DecisionDenied redirects to the neutral home surface. The verdict
	// carries no hint of which role the destination needed.
	DecisionDenied
)

// Verdict is what the guard tells the navigation layer to do.
type Verdict struct {
	Decision Decision
	// RedirectTo is set for RequireLogin and Denied.
	RedirectTo string
}

// Guard gates role-scoped destinations on the session state. It waits
// for hydration to settle before judging, so a reload on a protected
// page does not bounce through the login screen.
type Guard struct {
	manager *Manager

	mu       sync.Mutex
	returnTo string
}

func NewGuard(manager *Manager) *Guard {
	return &Guard{manager: manager}
}

// Authorize judges a navigation to dest that requires the given role.
// An empty role means the destination only needs a logged-in user.
func (g *Guard) Authorize(ctx context.Context, required client.Role, dest string) (Verdict, error) {
	select {
	case <-g.manager.Ready():
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	}

	snap := g.manager.Snapshot()
	if snap.Identity == nil {
		g.mu.Lock()
		g.returnTo = dest
		g.mu.Unlock()
		return Verdict{Decision: DecisionRequireLogin, RedirectTo: RouteLogin}, nil
	}

	if required != "" && snap.Identity.ActiveRole != required {
		return Verdict{Decision: DecisionDenied, RedirectTo: RouteHome}, nil
	}

	return Verdict{Decision: DecisionAllow}, nil
}

// ConsumeReturnTo hands back the destination remembered by the last
// RequireLogin verdict and forgets it. Empty when nothing is pending.
func (g *Guard) ConsumeReturnTo() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	dest := g.returnTo
	g.returnTo = ""
	return dest
}
