package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/playbymail/ottoclient/pkg/apierror"
)

// newTestBackend returns a server that issues a CSRF token from the
// session endpoint and echoes mutations that carry it back correctly.
func newTestBackend(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var sessionHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		sessionHits.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "sid-1", Path: "/"})
		json.NewEncoder(w).Encode(map[string]any{"csrf": "csrf-1"})
	})
	mux.HandleFunc("POST /api/widgets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != "csrf-1" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{"message": "missing csrf token"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	mux.HandleFunc("GET /api/whoami", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("sid")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"message": "no session"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"sid": cookie.Value})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &sessionHits
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New("/just/a/path"); err == nil {
		t.Fatal("expected error for relative base URL")
	}
}

func TestGetReturnsJSON(t *testing.T) {
	server, _ := newTestBackend(t)
	client, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := client.Get(context.Background(), "/api/session")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var payload struct {
		CSRF string `json:"csrf"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.CSRF != "csrf-1" {
		t.Errorf("csrf = %q, want csrf-1", payload.CSRF)
	}
}

func TestMutationAttachesToken(t *testing.T) {
	server, sessionHits := newTestBackend(t)
	client, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := client.Post(context.Background(), "/api/widgets", map[string]string{"n": "w"}); err != nil {
			t.Fatalf("Post %d: %v", i, err)
		}
	}

	// The token is fetched once and reused for subsequent mutations.
	if n := sessionHits.Load(); n != 1 {
		t.Errorf("session endpoint hit %d times, want 1", n)
	}
}

// TestConcurrentMutationsShareTokenFetch checks the end-to-end dedup
// property: N concurrent mutations against an empty token cache cause
// exactly one session-status request.
func TestConcurrentMutationsShareTokenFetch(t *testing.T) {
	server, sessionHits := newTestBackend(t)
	client, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Post(context.Background(), "/api/widgets", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if n := sessionHits.Load(); n != 1 {
		t.Errorf("session endpoint hit %d times, want 1", n)
	}
}

func TestCookieJarCarriesSession(t *testing.T) {
	server, _ := newTestBackend(t)
	client, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	// First call receives the sid cookie.
	if _, err := client.Get(context.Background(), "/api/session"); err != nil {
		t.Fatal(err)
	}

	// Second call must send it back.
	raw, err := client.Get(context.Background(), "/api/whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var payload struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.SID != "sid-1" {
		t.Errorf("sid = %q, want sid-1", payload.SID)
	}
}

func TestMutationFailsWhenTokenUnavailable(t *testing.T) {
	var widgetHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"message": "not authenticated"})
	})
	mux.HandleFunc("POST /api/widgets", func(w http.ResponseWriter, r *http.Request) {
		widgetHits.Add(1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Post(context.Background(), "/api/widgets", nil)
	if !apierror.IsNetwork(err) {
		t.Fatalf("err = %v, want network kind", err)
	}
	if n := widgetHits.Load(); n != 0 {
		t.Errorf("mutation reached the server %d times despite failed token acquisition", n)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	server, _ := newTestBackend(t)
	client, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	server.Close()

	_, err = client.Get(context.Background(), "/api/session")
	if !apierror.IsNetwork(err) {
		t.Fatalf("err = %v, want network kind", err)
	}
}

func TestErrorCarriesStructuredBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"csrf": "csrf-1"})
	})
	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{
				{"title": "username", "detail": "username is already taken"},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Post(context.Background(), "/api/users", map[string]string{"username": "alice"})
	if !apierror.IsValidation(err) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	var ae *apierror.Error
	if !errors.As(err, &ae) {
		t.Fatal("error is not *apierror.Error")
	}
	if ae.Status != http.StatusConflict {
		t.Errorf("status = %d, want 409", ae.Status)
	}
	if ae.Message != "username is already taken" {
		t.Errorf("message = %q", ae.Message)
	}
	if len(ae.Fields) != 1 || ae.Fields[0].Title != "username" {
		t.Errorf("fields = %+v", ae.Fields)
	}
}
