package session

import (
	"context"
	"testing"
	"time"

	"github.com/elisha-et/TutorLink/client"
)

func TestGuardWaitsForHydration(t *testing.T) {
	api := newFakeAPI(t, studentUser())
	m, creds := newTestManager(t, api)
	_ = creds.Save("good-token")
	guard := NewGuard(m)

	type result struct {
		verdict Verdict
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := guard.Authorize(context.Background(), client.RoleStudent, "/requests")
		done <- result{v, err}
	}()

	select {
	case <-done:
		t.Fatal("guard decided before hydration settled")
	case <-time.After(50 * time.Millisecond):
	}

	if err := m.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Authorize: %v", r.err)
		}
		if r.verdict.Decision != DecisionAllow {
			t.Fatalf("decision = %v, want allow", r.verdict.Decision)
		}
	case <-time.After(time.Second):
		t.Fatal("guard never decided after hydration")
	}
}

func TestGuardContextCancelledWhileWaiting(t *testing.T) {
	api := newFakeAPI(t, studentUser())
	m, _ := newTestManager(t, api)
	guard := NewGuard(m)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := guard.Authorize(ctx, client.RoleStudent, "/requests"); err == nil {
		t.Fatal("expected context error while hydration is pending")
	}
}

func TestGuardRedirectsAnonymousToLogin(t *testing.T) {
	api := newFakeAPI(t, studentUser())
	m, _ := newTestManager(t, api)
	guard := NewGuard(m)

	if err := m.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	verdict, err := guard.Authorize(context.Background(), client.RoleStudent, "/requests/new")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict.Decision != DecisionRequireLogin || verdict.RedirectTo != RouteLogin {
		t.Fatalf("verdict = %+v, want login redirect", verdict)
	}

	// The intended destination is replayed exactly once.
	if got := guard.ConsumeReturnTo(); got != "/requests/new" {
		t.Fatalf("return-to = %q, want /requests/new", got)
	}
	if got := guard.ConsumeReturnTo(); got != "" {
		t.Fatalf("return-to consumed twice: %q", got)
	}
}

func TestGuardResumesDestinationAfterLogin(t *testing.T) {
	api := newFakeAPI(t, dualRoleUser())
	m, _ := newTestManager(t, api)
	guard := NewGuard(m)

	if err := m.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	verdict, err := guard.Authorize(context.Background(), client.RoleTutor, "/tutor/requests")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict.Decision != DecisionRequireLogin {
		t.Fatalf("decision = %v, want login required", verdict.Decision)
	}

	if _, err := m.Login(context.Background(), "noah@example.com", "secretpass"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.SwitchActiveRole(client.RoleTutor); err != nil {
		t.Fatalf("SwitchActiveRole: %v", err)
	}

	dest := guard.ConsumeReturnTo()
	if dest != "/tutor/requests" {
		t.Fatalf("return-to = %q, want /tutor/requests", dest)
	}
	verdict, err = guard.Authorize(context.Background(), client.RoleTutor, dest)
	if err != nil {
		t.Fatalf("Authorize after login: %v", err)
	}
	if verdict.Decision != DecisionAllow {
		t.Fatalf("decision = %v, want allow at resumed destination", verdict.Decision)
	}
}

func TestGuardWrongRoleGetsNeutralRedirect(t *testing.T) {
	api := newFakeAPI(t, studentUser())
	m, _ := newTestManager(t, api)
	guard := NewGuard(m)

	if _, err := m.Login(context.Background(), "amina@example.com", "secretpass"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	verdict, err := guard.Authorize(context.Background(), client.RoleTutor, "/board")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict.Decision != DecisionDenied {
		t.Fatalf("decision = %v, want denied", verdict.Decision)
	}
	if verdict.RedirectTo != RouteHome {
		t.Fatalf("redirect = %q, want neutral home", verdict.RedirectTo)
	}
	// A denial never queues a return destination.
	if got := guard.ConsumeReturnTo(); got != "" {
		t.Fatalf("return-to = %q, want empty after denial", got)
	}
}

func TestGuardJudgesActiveRoleNotRoleSet(t *testing.T) {
	api := newFakeAPI(t, dualRoleUser())
	m, _ := newTestManager(t, api)
	guard := NewGuard(m)

	if _, err := m.Login(context.Background(), "noah@example.com", "secretpass"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Active role defaults to student; the tutor board is off limits
	// until the user switches, even though the account holds the role.
	verdict, err := guard.Authorize(context.Background(), client.RoleTutor, "/board")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict.Decision != DecisionDenied {
		t.Fatalf("decision = %v, want denied before switch", verdict.Decision)
	}

	if err := m.SwitchActiveRole(client.RoleTutor); err != nil {
		t.Fatalf("SwitchActiveRole: %v", err)
	}
	verdict, err = guard.Authorize(context.Background(), client.RoleTutor, "/board")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict.Decision != DecisionAllow {
		t.Fatalf("decision = %v, want allow after switch", verdict.Decision)
	}
}

func TestGuardAnyLoggedInRole(t *testing.T) {
	api := newFakeAPI(t, studentUser())
	m, _ := newTestManager(t, api)
	guard := NewGuard(m)

	if _, err := m.Login(context.Background(), "amina@example.com", "secretpass"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	verdict, err := guard.Authorize(context.Background(), "", "/account")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if verdict.Decision != DecisionAllow {
		t.Fatalf("decision = %v, want allow for role-less destination", verdict.Decision)
	}
}
