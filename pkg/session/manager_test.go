package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/playbymail/ottoclient/pkg/apierror"
	"github.com/playbymail/ottoclient/pkg/roles"
)

// fakeGateway records calls and dispatches to per-path handlers.
type fakeGateway struct {
	mu     sync.Mutex
	gets   []string
	posts  []string
	getFn  func(path string) (json.RawMessage, error)
	postFn func(path string, body any) (json.RawMessage, error)
}

func (g *fakeGateway) Get(ctx context.Context, path string) (json.RawMessage, error) {
	g.mu.Lock()
	g.gets = append(g.gets, path)
	g.mu.Unlock()
	return g.getFn(path)
}

func (g *fakeGateway) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	g.mu.Lock()
	g.posts = append(g.posts, path)
	g.mu.Unlock()
	return g.postFn(path, body)
}

func (g *fakeGateway) postCount(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.posts {
		if p == path {
			n++
		}
	}
	return n
}

// fakeTokens counts Clear calls.
type fakeTokens struct {
	mu      sync.Mutex
	cleared int
}

func (t *fakeTokens) Clear() {
	t.mu.Lock()
	t.cleared++
	t.mu.Unlock()
}

func (t *fakeTokens) clearCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleared
}

func sessionJSON(id, username string, roleNames ...string) json.RawMessage {
	payload := map[string]any{
		"csrf": "csrf-1",
		"user": map[string]any{
			"id":       id,
			"username": username,
			"roles":    roleNames,
			"permissions": map[string]bool{
				"editHandle": true,
			},
		},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func anonymousSessionJSON() json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"csrf": "csrf-1"})
	return raw
}

func TestRestoreSuccess(t *testing.T) {
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return sessionJSON("7", "alice", "user"), nil
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	var changes []Change
	m.Subscribe(func(c Change) { changes = append(changes, c) })

	if err := m.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if m.Status() != StatusAuthenticated {
		t.Errorf("status = %v, want authenticated", m.Status())
	}
	user := m.CurrentUser()
	if user == nil || user.Handle != "alice" {
		t.Fatalf("user = %+v, want alice", user)
	}
	if !user.Roles.Has(roles.RoleUser) {
		t.Error("restored user lacks the user role")
	}
	if !user.Can("editHandle") {
		t.Error("restored user lacks the editHandle permission")
	}
	if len(changes) != 1 || changes[0].Current != StatusAuthenticated {
		t.Errorf("changes = %+v, want one transition into authenticated", changes)
	}
}

func TestRestoreFailureStaysAnonymous(t *testing.T) {
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return nil, apierror.SessionExpired(401, "not authenticated")
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	err := m.Restore(context.Background())
	if !apierror.IsSessionExpired(err) {
		t.Fatalf("err = %v, want session-expired kind", err)
	}
	if m.Status() != StatusAnonymous {
		t.Errorf("status = %v, want anonymous", m.Status())
	}
	if m.CurrentUser() != nil {
		t.Error("user set after failed restore")
	}
}

func TestRestoreWithoutUserPayloadStaysAnonymous(t *testing.T) {
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return anonymousSessionJSON(), nil
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	err := m.Restore(context.Background())
	if !apierror.IsSessionExpired(err) {
		t.Fatalf("err = %v, want session-expired kind", err)
	}
	if m.Status() != StatusAnonymous {
		t.Errorf("status = %v, want anonymous", m.Status())
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return sessionJSON("7", "alice", "user"), nil
		},
		postFn: func(path string, body any) (json.RawMessage, error) {
			if path != "/api/login" {
				t.Errorf("unexpected post to %s", path)
			}
			creds, ok := body.(Credentials)
			if !ok || creds.Username != "alice" {
				t.Errorf("login body = %+v", body)
			}
			return json.RawMessage(`{}`), nil
		},
	}
	tokens := &fakeTokens{}
	m := NewManager(gw, tokens, nil)

	var changes []Change
	m.Subscribe(func(c Change) { changes = append(changes, c) })

	err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if m.Status() != StatusAuthenticated {
		t.Errorf("status = %v, want authenticated", m.Status())
	}
	if m.CurrentUser() == nil {
		t.Fatal("user is nil after successful authenticate")
	}
	if tokens.clearCount() != 1 {
		t.Errorf("token cache cleared %d times on login, want 1", tokens.clearCount())
	}
	if len(changes) != 1 || changes[0].User == nil {
		t.Errorf("changes = %+v, want one change carrying the user", changes)
	}
}

func TestAuthenticateBadCredentials(t *testing.T) {
	gw := &fakeGateway{
		postFn: func(path string, body any) (json.RawMessage, error) {
			return nil, apierror.SessionExpired(401, "bad credentials")
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "bad"})
	if !apierror.IsAuthentication(err) {
		t.Fatalf("err = %v, want authentication kind", err)
	}
	if m.Status() != StatusAnonymous {
		t.Errorf("status = %v, want anonymous", m.Status())
	}
	if m.CurrentUser() != nil {
		t.Error("user set after failed login")
	}
}

func TestAuthenticateNetworkFailurePropagates(t *testing.T) {
	gw := &fakeGateway{
		postFn: func(path string, body any) (json.RawMessage, error) {
			return nil, apierror.Network("connection refused", nil)
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"})
	if !apierror.IsNetwork(err) {
		t.Fatalf("err = %v, want network kind", err)
	}
	if m.Status() != StatusAnonymous {
		t.Errorf("status = %v, want anonymous", m.Status())
	}
}

// TestAuthenticateRejectsOverlap checks the mutual-exclusion guard: a
// second Authenticate while one is in flight is rejected and never
// issues a second login request.
func TestAuthenticateRejectsOverlap(t *testing.T) {
	inLogin := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return sessionJSON("7", "alice", "user"), nil
		},
		postFn: func(path string, body any) (json.RawMessage, error) {
			close(inLogin)
			<-release
			return json.RawMessage(`{}`), nil
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	first := make(chan error, 1)
	go func() {
		first <- m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"})
	}()
	<-inLogin

	err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"})
	if !errors.Is(err, ErrAuthenticationInProgress) {
		t.Fatalf("overlapping Authenticate err = %v, want ErrAuthenticationInProgress", err)
	}

	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first Authenticate: %v", err)
	}
	if n := gw.postCount("/api/login"); n != 1 {
		t.Errorf("login posted %d times, want 1", n)
	}
}

func TestAuthenticateWhileAuthenticated(t *testing.T) {
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return sessionJSON("7", "alice", "user"), nil
		},
		postFn: func(path string, body any) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)
	if err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"}); err != nil {
		t.Fatal(err)
	}

	err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"})
	if !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Fatalf("err = %v, want ErrAlreadyAuthenticated", err)
	}
}

// TestInvalidateAbsorbsLogoutFailure checks the single most important
// failure-handling rule: logout lands on anonymous and clears the token
// cache even when the logout call fails on the wire.
func TestInvalidateAbsorbsLogoutFailure(t *testing.T) {
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return sessionJSON("7", "alice", "user"), nil
		},
		postFn: func(path string, body any) (json.RawMessage, error) {
			if path == "/api/logout" {
				return nil, apierror.Network("connection reset", nil)
			}
			return json.RawMessage(`{}`), nil
		},
	}
	tokens := &fakeTokens{}
	m := NewManager(gw, tokens, nil)
	if err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"}); err != nil {
		t.Fatal(err)
	}

	var changes []Change
	m.Subscribe(func(c Change) { changes = append(changes, c) })

	if err := m.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate surfaced the logout failure: %v", err)
	}
	if m.Status() != StatusAnonymous {
		t.Errorf("status = %v, want anonymous", m.Status())
	}
	if m.CurrentUser() != nil {
		t.Error("user still set after invalidate")
	}
	// One clear at login, one at invalidate.
	if tokens.clearCount() != 2 {
		t.Errorf("token cache cleared %d times, want 2", tokens.clearCount())
	}
	if len(changes) != 1 || changes[0].Current != StatusAnonymous {
		t.Errorf("changes = %+v, want one transition into anonymous", changes)
	}
}

func TestInvalidateFromAnonymous(t *testing.T) {
	m := NewManager(&fakeGateway{}, &fakeTokens{}, nil)
	if err := m.Invalidate(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

// TestInvalidateCancelsInFlightAuthenticate checks cancel-on-logout: an
// Invalidate issued while a login round trip is in flight wins, and the
// login result is discarded when it lands.
func TestInvalidateCancelsInFlightAuthenticate(t *testing.T) {
	inLogin := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return sessionJSON("7", "alice", "user"), nil
		},
		postFn: func(path string, body any) (json.RawMessage, error) {
			if path == "/api/login" {
				close(inLogin)
				<-release
			}
			return json.RawMessage(`{}`), nil
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	result := make(chan error, 1)
	go func() {
		result <- m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "good"})
	}()
	<-inLogin

	if err := m.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	close(release)

	if err := <-result; !errors.Is(err, ErrAuthenticationCanceled) {
		t.Fatalf("Authenticate err = %v, want ErrAuthenticationCanceled", err)
	}
	if m.Status() != StatusAnonymous {
		t.Errorf("status = %v, want anonymous", m.Status())
	}
	if m.CurrentUser() != nil {
		t.Error("discarded login result still set a user")
	}
}

func TestSubscribeCancel(t *testing.T) {
	gw := &fakeGateway{
		getFn: func(path string) (json.RawMessage, error) {
			return sessionJSON("7", "alice", "user"), nil
		},
	}
	m := NewManager(gw, &fakeTokens{}, nil)

	calls := 0
	cancel := m.Subscribe(func(Change) { calls++ })
	cancel()

	if err := m.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("cancelled listener called %d times", calls)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusAnonymous:      "anonymous",
		StatusAuthenticating: "authenticating",
		StatusAuthenticated:  "authenticated",
		StatusInvalidating:   "invalidating",
		Status(42):           "unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
