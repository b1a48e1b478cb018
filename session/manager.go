package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elisha-et/TutorLink/client"
)

// DefaultHydrateTimeout bounds the startup identity fetch so a dead
// server cannot hold the UI in its loading state forever.
const DefaultHydrateTimeout = 10 * time.Second

// Manager coordinates the session state machine. All mutations go
// through it; readers get consistent snapshots via Snapshot() and
// change notifications via Subscribe().
type Manager struct {
	api   *client.Client
	creds CredentialStore

	hydrateTimeout time.Duration

	// mu serializes state transitions. The snapshot pointer itself is
	// atomic so readers never contend with writers.
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]

	// gen is bumped when a login, register, or logout is issued.
	// In-flight calls capture it at issuance and discard their result
	// when it moved underneath them.
	gen uint64

	hydrated  bool
	readyOnce sync.Once
	readyCh   chan struct{}

	subMu sync.Mutex
	subs  []chan Snapshot
}

type ManagerOption func(*Manager)

func WithHydrateTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.hydrateTimeout = d
	}
}

func NewManager(api *client.Client, creds CredentialStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:            api,
		creds:          creds,
		hydrateTimeout: DefaultHydrateTimeout,
		readyCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap.Store(&Snapshot{})
	return m
}

// Snapshot returns the current session state. The returned value is a
// copy; callers may hold it across goroutines.
func (m *Manager) Snapshot() Snapshot {
	return *m.snap.Load()
}

// Ready returns a channel closed once startup hydration has settled,
// successfully or not.
func (m *Manager) Ready() <-chan struct{} {
	return m.readyCh
}

// Subscribe returns a channel that receives every published snapshot.
// The channel is buffered and a slow consumer drops updates rather
// than blocking the manager; the latest state is always available via
// Snapshot().
func (m *Manager) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 8)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

// Hydrate restores the session from the persisted token. It runs the
// identity fetch at most once; later calls return immediately. Any
// failure, transport included, clears the stored token and settles the
// session as logged out so the UI never trusts a token the server has
// not vouched for.
func (m *Manager) Hydrate(ctx context.Context) error {
	m.mu.Lock()
	if m.hydrated {
		m.mu.Unlock()
		return nil
	}
	m.hydrated = true
	gen := m.gen
	m.mu.Unlock()

	token, err := m.creds.Load()
	if err != nil || token == "" {
		m.settle(gen, Snapshot{Ready: true})
		return err
	}

	m.api.SetToken(token)
	fetchCtx, cancel := context.WithTimeout(ctx, m.hydrateTimeout)
	defer cancel()

	user, err := m.api.Me(fetchCtx)
	if err != nil {
		_ = m.creds.Clear()
		m.api.SetToken("")
		m.settle(gen, Snapshot{Ready: true})
		return err
	}

	m.settle(gen, Snapshot{
		Token:    token,
		Identity: identityFor(user),
		Ready:    true,
	})
	return nil
}

// Login authenticates and replaces the session state on success. The
// previous state is untouched when the call fails. When a newer login,
// register, or logout was issued while this one was in flight, the
// result is discarded and the call fails with a conflict.
func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	gen := m.begin()
	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	return m.establish(gen, result)
}

// Register creates an account and logs it in atomically from the
// session's point of view. Supersession works as for Login.
func (m *Manager) Register(ctx context.Context, name, email, password string, role client.Role) (Identity, error) {
	gen := m.begin()
	result, err := m.api.Register(ctx, name, email, password, role)
	if err != nil {
		return Identity{}, err
	}
	return m.establish(gen, result)
}

// Logout clears the session. It never fails: the server-side token
// revocation is best effort, and local state is wiped regardless.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	_ = m.api.Logout(ctx)
	m.api.SetToken("")
	_ = m.creds.Clear()

	m.settle(gen, Snapshot{Ready: true})
}

// SwitchActiveRole changes which of the account's roles the UI renders
// for. Purely local: no network round trip, no token change.
func (m *Manager) SwitchActiveRole(role client.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snap.Load()
	if snap.Identity == nil {
		return client.NewError(client.KindAuthentication, "not_logged_in")
	}
	if !snap.Identity.HasRole(role) {
		return client.NewError(client.KindAuthorization, "role_not_held")
	}

	id := *snap.Identity
	id.ActiveRole = role
	next := Snapshot{Token: snap.Token, Identity: &id, Ready: snap.Ready}
	m.snap.Store(&next)
	m.publish(next)
	return nil
}

// begin opens a new generation, superseding any identity work still in
// flight when the call it guards was issued.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// establish applies an authentication result. Issuance order decides
// the winner, not completion order: a result whose generation has been
// superseded is dropped without touching the session or the stored
// token.
func (m *Manager) establish(gen uint64, result client.AuthResult) (Identity, error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.markReady()
		return Identity{}, client.NewError(client.KindConflict, "superseded")
	}

	m.api.SetToken(result.Token)
	// A failed save only costs persistence across restarts; the live
	// session is unaffected.
	_ = m.creds.Save(result.Token)

	id := identityFor(result.User)
	next := Snapshot{Token: result.Token, Identity: id, Ready: true}
	m.snap.Store(&next)
	m.markReady()
	m.mu.Unlock()

	m.publish(next)
	return *id, nil
}

// settle applies a hydration or logout result unless the generation
// moved while the work was in flight.
func (m *Manager) settle(gen uint64, next Snapshot) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.markReady()
		return
	}
	m.snap.Store(&next)
	m.markReady()
	m.mu.Unlock()

	m.publish(next)
}

func (m *Manager) markReady() {
	m.readyOnce.Do(func() {
		close(m.readyCh)
	})
}

func (m *Manager) publish(snap Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func identityFor(user client.User) *Identity {
	id := &Identity{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Roles:  append([]client.Role(nil), user.Roles...),
	}
	if len(id.Roles) > 0 {
		id.ActiveRole = id.Roles[0]
	}
	return id
}
