package stubserver

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
)

// account is a stored user record.
type account struct {
	ID       string
	Username string
	Password string
	Email    string
	Timezone string
	Roles    []string
}

// serverSession is one cookie-backed session. Anonymous sessions carry
// a CSRF token but no user; login upgrades the caller to a fresh
// authenticated session.
type serverSession struct {
	SID    string
	CSRF   string
	UserID string
}

func (s *serverSession) authenticated() bool { return s.UserID != "" }

// store is the in-memory state behind the stub server. Deliberately
// minimal: server-side session storage design is out of scope.
type store struct {
	mu         sync.Mutex
	accounts   map[string]*account
	byUsername map[string]string
	sessions   map[string]*serverSession
	nextID     int
}

func newStore() *store {
	return &store{
		accounts:   make(map[string]*account),
		byUsername: make(map[string]string),
		sessions:   make(map[string]*serverSession),
		nextID:     1,
	}
}

func (st *store) addAccount(a account) (*account, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, taken := st.byUsername[a.Username]; taken {
		return nil, fmt.Errorf("username %q is already taken", a.Username)
	}
	stored := a
	stored.ID = fmt.Sprintf("%d", st.nextID)
	st.nextID++
	st.accounts[stored.ID] = &stored
	st.byUsername[stored.Username] = stored.ID
	return &stored, nil
}

func (st *store) accountByID(id string) (*account, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.accounts[id]
	return a, ok
}

// authenticate checks the credentials and returns the account.
func (st *store) authenticate(username, password string) (*account, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	id, ok := st.byUsername[username]
	if !ok {
		return nil, false
	}
	a := st.accounts[id]
	if subtle.ConstantTimeCompare([]byte(a.Password), []byte(password)) != 1 {
		return nil, false
	}
	return a, true
}

func (st *store) listAccounts() []*account {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*account, 0, len(st.accounts))
	for _, a := range st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newSession creates a session, anonymous when userID is empty.
func (st *store) newSession(userID string) *serverSession {
	sess := &serverSession{
		SID:    randomToken(),
		CSRF:   randomToken(),
		UserID: userID,
	}
	st.mu.Lock()
	st.sessions[sess.SID] = sess
	st.mu.Unlock()
	return sess
}

func (st *store) session(sid string) (*serverSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[sid]
	return sess, ok
}

func (st *store) dropSession(sid string) {
	st.mu.Lock()
	delete(st.sessions, sid)
	st.mu.Unlock()
}

// randomToken returns a 32-byte URL-safe random string, used for both
// session IDs and CSRF tokens.
func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
