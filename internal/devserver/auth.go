package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	u := GetUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, u.identity(s.unread(u.ID)))
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	u := GetUserFromContext(r.Context())
	ok(w, map[string]any{"notifications": s.unread(u.ID)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}

	s.mu.RLock()
	var u User
	uid, found := s.byEmail[strings.ToLower(in.Email)]
	if found {
		u = *s.users[uid]
	}
	s.mu.RUnlock()

	if !found {
		fail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	match, err := u.PasswordMatches(in.Password)
	if err != nil {
		s.Logger.Error("comparing password", "error", err)
	}
	if !match {
		fail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !u.Verified {
		fail(w, http.StatusForbidden, "Please verify your email before logging in")
		return
	}

	sid := uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = u.ID
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	ok(w, nil)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Path: "/", MaxAge: -1})
	ok(w, nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if !decode(w, r, &in) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || len(in.Password) < 8 || in.FirstName == "" || in.LastName == "" {
		fail(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	u := &User{Email: email, FirstName: in.FirstName, LastName: in.LastName, Created: time.Now()}
	if err := u.SetPassword(in.Password, s.hashCost); err != nil {
		fail(w, http.StatusBadRequest, "Password could not be used")
		return
	}
	token := uuid.NewString()

	s.mu.Lock()
	if _, taken := s.byEmail[email]; taken {
		s.mu.Unlock()
		fail(w, http.StatusConflict, errEmailTaken.Error())
		return
	}
	u.ID = s.id()
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	s.verify[token] = u.ID
	s.mu.Unlock()

	// there is no mail in development; the link goes to the log
	s.Logger.Info("verification token issued", "email", email, "token", token)
	ok(w, nil)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, found := s.verify[in.Token]
	if !found {
		fail(w, http.StatusNotFound, "The verification link is invalid.")
		return
	}
	delete(s.verify, in.Token)
	s.users[uid].Verified = true
	ok(w, nil)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	s.mu.Lock()
	uid, found := s.byEmail[email]
	token := ""
	if found {
		token = uuid.NewString()
		s.resets[token] = uid
	}
	s.mu.Unlock()

	if found {
		s.Logger.Info("reset token issued", "email", email, "token", token)
	}
	// the answer does not reveal whether the account exists
	ok(w, nil)
}

func (s *Server) handleResetCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	_, found := s.resets[r.PathValue("token")]
	s.mu.RUnlock()
	if !found {
		fail(w, http.StatusNotFound, "The reset link is invalid.")
		return
	}
	ok(w, nil)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	token := r.PathValue("token")

	s.mu.RLock()
	uid, found := s.resets[token]
	s.mu.RUnlock()
	if !found {
		fail(w, http.StatusNotFound, "The reset link is invalid.")
		return
	}
	if !s.setPassword(w, uid, in.Password) {
		return
	}
	s.mu.Lock()
	delete(s.resets, token)
	s.mu.Unlock()
	ok(w, nil)
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	if s.setPassword(w, GetUserFromContext(r.Context()).ID, in.Password) {
		ok(w, nil)
	}
}

func (s *Server) setPassword(w http.ResponseWriter, uid int64, password string) bool {
	if len(password) < 8 {
		fail(w, http.StatusBadRequest, "Password must be between 8 and 200 characters")
		return false
	}
	var tmp User
	if err := tmp.SetPassword(password, s.hashCost); err != nil {
		fail(w, http.StatusBadRequest, "Password could not be used")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[uid]
	if !found {
		fail(w, http.StatusNotFound, "Account not found")
		return false
	}
	u.Password = tmp.Password
	u.Updated = tmp.Updated
	return true
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	u := GetUserFromContext(r.Context())
	token, err := issueSocketToken(u.ID, s.Key, s.tokenTTL)
	if err != nil {
		s.Logger.Error("signing socket token", "error", err)
		fail(w, http.StatusInternalServerError, "Could not issue a token")
		return
	}
	ok(w, map[string]any{"token": token})
}
