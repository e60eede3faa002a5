package stubserver

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
)

// handleGetSession validates the session cookie and issues the CSRF
// token. Callers without a session get a fresh anonymous one, so a
// token is always available for the login mutation. The user payload
// appears only for authenticated sessions.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(r)
	if !ok {
		sess = s.store.newSession("")
		setSessionCookie(w, sess.SID)
	}

	payload := map[string]any{"csrf": sess.CSRF}
	if sess.authenticated() {
		if a, ok := s.store.accountByID(sess.UserID); ok {
			payload["user"] = toUserPayload(a)
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleLogin validates credentials and upgrades the caller to a fresh
// authenticated session. The anonymous pre-session is discarded and
// both the cookie and the CSRF token rotate.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	a, ok := s.store.authenticate(creds.Username, creds.Password)
	if !ok {
		s.logger.Debug("login rejected", "username", creds.Username)
		writeMessage(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	if old, ok := s.currentSession(r); ok {
		s.store.dropSession(old.SID)
	}
	sess := s.store.newSession(a.ID)
	setSessionCookie(w, sess.SID)

	s.logger.Info("login", "username", a.Username, "user_id", a.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserPayload(a)})
}

// handleLogout drops the caller's session. Always succeeds from the
// client's point of view; there is nothing useful to report about a
// logout that found no session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.currentSession(r); ok {
		s.store.dropSession(sess.SID)
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	a, ok := s.store.accountByID(sess.UserID)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(a))
}

type profilePayload struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	a, ok := s.store.accountByID(sess.UserID)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, profilePayload{Username: a.Username, Email: a.Email, Timezone: a.Timezone})
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	a, ok := s.store.accountByID(sess.UserID)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var update profilePayload
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	s.store.mu.Lock()
	if update.Email != "" {
		a.Email = update.Email
	}
	if update.Timezone != "" {
		a.Timezone = update.Timezone
	}
	s.store.mu.Unlock()

	writeJSON(w, http.StatusOK, profilePayload{Username: a.Username, Email: a.Email, Timezone: a.Timezone})
}

func (s *Server) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	accounts := s.store.listAccounts()
	payload := make([]userPayload, 0, len(accounts))
	for _, a := range accounts {
		payload = append(payload, toUserPayload(a))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.accountByID(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "no such user")
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(a))
}

func (s *Server) handlePostUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string   `json:"username"`
		Password string   `json:"password"`
		Roles    []string `json:"roles"`
		Timezone string   `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if payload.Username == "" {
		writeFieldErrors(w, http.StatusUnprocessableEntity,
			fieldError{Title: "username", Detail: "username is required"})
		return
	}
	if payload.Password == "" {
		writeFieldErrors(w, http.StatusUnprocessableEntity,
			fieldError{Title: "password", Detail: "password is required"})
		return
	}
	roles := payload.Roles
	if roles == nil {
		roles = []string{"user"}
	}

	created, err := s.store.addAccount(account{
		Username: payload.Username,
		Password: payload.Password,
		Timezone: payload.Timezone,
		Roles:    roles,
	})
	if err != nil {
		writeFieldErrors(w, http.StatusConflict,
			fieldError{Title: "username", Detail: "username is already taken"})
		return
	}
	writeJSON(w, http.StatusCreated, toUserPayload(created))
}

func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.accountByID(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "no such user")
		return
	}

	var update struct {
		Username string `json:"username"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	s.store.mu.Lock()
	if update.Username != "" && update.Username != a.Username {
		if _, taken := s.store.byUsername[update.Username]; taken {
			s.store.mu.Unlock()
			writeFieldErrors(w, http.StatusConflict,
				fieldError{Title: "username", Detail: "username is already taken"})
			return
		}
		delete(s.store.byUsername, a.Username)
		a.Username = update.Username
		s.store.byUsername[a.Username] = a.ID
	}
	if update.Timezone != "" {
		a.Timezone = update.Timezone
	}
	s.store.mu.Unlock()

	writeJSON(w, http.StatusOK, toUserPayload(a))
}

// handlePutPassword changes a password. Admins may change anyone's;
// everyone else only their own, and only with the current password.
func (s *Server) handlePutPassword(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	caller, ok := s.store.accountByID(sess.UserID)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	target, ok := s.store.accountByID(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "no such user")
		return
	}
	isAdmin := slices.Contains(caller.Roles, "admin")
	if target.ID != caller.ID && !isAdmin {
		writeMessage(w, http.StatusForbidden, "cannot change another user's password")
		return
	}

	var payload struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if payload.NewPassword == "" {
		writeFieldErrors(w, http.StatusUnprocessableEntity,
			fieldError{Title: "newPassword", Detail: "new password is required"})
		return
	}

	s.store.mu.Lock()
	if !isAdmin && target.Password != payload.CurrentPassword {
		s.store.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "current password is incorrect")
		return
	}
	target.Password = payload.NewPassword
	s.store.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleResetPassword sets a random password and returns it once, for
// the admin to hand to the user out of band.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.accountByID(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "no such user")
		return
	}

	fresh := randomToken()[:16]
	s.store.mu.Lock()
	a.Password = fresh
	s.store.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"password": fresh})
}

func (s *Server) handlePatchRole(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.accountByID(chi.URLParam(r, "id"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "no such user")
		return
	}

	var change struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	s.store.mu.Lock()
	for _, role := range change.Add {
		if !slices.Contains(a.Roles, role) {
			a.Roles = append(a.Roles, role)
		}
	}
	for _, role := range change.Remove {
		if i := slices.Index(a.Roles, role); i >= 0 {
			a.Roles = slices.Delete(a.Roles, i, i+1)
		}
	}
	s.store.mu.Unlock()

	writeJSON(w, http.StatusOK, toUserPayload(a))
}

// handleGetTimezones serves the fixed list offered on the profile form.
func (s *Server) handleGetTimezones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []string{
		"UTC",
		"America/Chicago",
		"America/Denver",
		"America/Los_Angeles",
		"America/New_York",
		"Europe/Berlin",
		"Europe/London",
		"Pacific/Auckland",
	})
}
