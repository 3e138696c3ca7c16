// Package account drives login, registration and password flows.
package account

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
)

var emailRe = regexp.MustCompile(`^(([^<>()[\]\\.,;:\s@"]+(\.[^<>()[\]\\.,;:\s@"]+)*)|.(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// ErrInvalidResetLink is a reset link without a token.
var ErrInvalidResetLink = errors.New("The reset link is invalid.")

// ValidEmail applies the same pattern the backend uses.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// Requirements is the password checklist shown while typing.
type Requirements struct {
	Length bool
	Upper  bool
	Lower  bool
	Number bool
}

// Met reports whether every requirement holds.
func (r Requirements) Met() bool {
	return r.Length && r.Upper && r.Lower && r.Number
}

// PasswordRequirements checks pw against the checklist.
func PasswordRequirements(pw string) Requirements {
	n := utf8.RuneCountInString(pw)
	r := Requirements{Length: n >= 8 && n <= 200}
	for _, c := range pw {
		switch {
		case c >= 'A' && c <= 'Z':
			r.Upper = true
		case c >= 'a' && c <= 'z':
			r.Lower = true
		case c >= '0' && c <= '9':
			r.Number = true
		}
	}
	return r
}

func passwordProblems(pw, confirm string) []string {
	var out []string
	if n := utf8.RuneCountInString(pw); n < 8 || n > 200 {
		out = append(out, "Password must be between 8 and 200 characters")
	}
	req := PasswordRequirements(pw)
	if !req.Upper {
		out = append(out, "Password must contain an uppercase letter")
	}
	if !req.Lower {
		out = append(out, "Password must contain a lowercase letter")
	}
	if !req.Number {
		out = append(out, "Password must contain a number")
	}
	if pw != confirm {
		out = append(out, "Passwords do not match")
	}
	return out
}

// Registration is the sign up form.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Confirm   string
}

func nameOK(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 2 && n <= 100
}

// Problems lists every rule the form breaks, in display order.
func (r Registration) Problems() []string {
	var out []string
	if !nameOK(r.FirstName) {
		out = append(out, "First name must be between 2 and 100 characters")
	}
	if !nameOK(r.LastName) {
		out = append(out, "Last name must be between 2 and 100 characters")
	}
	if !ValidEmail(r.Email) {
		out = append(out, "Invalid email address")
	}
	if utf8.RuneCountInString(r.Email) > 255 {
		out = append(out, "Email must be 255 characters or less")
	}
	return append(out, passwordProblems(r.Password, r.Confirm)...)
}

// Refresher reloads the session after the identity changes.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Service wraps the /auth endpoints.
type Service struct {
	req     gateway.Requester
	session Refresher
}

func NewService(req gateway.Requester, session Refresher) *Service {
	return &Service{req: req, session: session}
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &internal.ValidationError{Problems: problems}
}

// Login signs in and reloads the session.
func (s *Service) Login(ctx context.Context, email, password string) error {
	var p []string
	if email == "" {
		p = append(p, "Email is required")
	}
	if !ValidEmail(email) {
		p = append(p, "Invalid email address")
	}
	if password == "" {
		p = append(p, "Password is required")
	}
	if err := invalid(p); err != nil {
		return err
	}

	res := s.req.Send(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err := res.Failure("logging in"); err != nil {
		return err
	}
	return s.session.Refresh(ctx)
}

// Register creates an account. The user still has to verify their email.
func (s *Service) Register(ctx context.Context, r Registration) error {
	if err := invalid(r.Problems()); err != nil {
		return err
	}
	res := s.req.Send(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":     r.Email,
		"password":  r.Password,
		"firstName": strings.TrimFunc(r.FirstName, unicode.IsSpace),
		"lastName":  strings.TrimFunc(r.LastName, unicode.IsSpace),
	})
	return res.Failure("creating your account")
}

// Logout ends the session. The local session is reset either way.
func (s *Service) Logout(ctx context.Context) error {
	res := s.req.Send(ctx, http.MethodPost, "/auth/logout", nil)
	err := res.Failure("logging out")
	_ = s.session.Refresh(ctx)
	return err
}

// RequestReset emails a reset link.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	if !ValidEmail(email) {
		return invalid([]string{"Invalid email address"})
	}
	res := s.req.Send(ctx, http.MethodPost, "/auth/reset", map[string]string{"email": email})
	return res.Failure("requesting a password reset")
}

func resetPath(token string) string {
	return "/auth/reset/" + url.PathEscape(token)
}

// CheckResetToken verifies a reset link before the form is shown.
func (s *Service) CheckResetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidResetLink
	}
	res := s.req.Send(ctx, http.MethodGet, resetPath(token), nil)
	return res.Failure("retrieving your account")
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if token == "" {
		return ErrInvalidResetLink
	}
	if err := invalid(passwordProblems(password, confirm)); err != nil {
		return err
	}
	res := s.req.Send(ctx, http.MethodPost, resetPath(token), map[string]string{"password": password})
	return res.Failure("resetting your password")
}

// Verify confirms an email address.
func (s *Service) Verify(ctx context.Context, token string) error {
	res := s.req.Send(ctx, http.MethodPost, "/auth/verify", map[string]string{"token": token})
	return res.Failure("retrieving your account")
}

// ChangePassword updates the password of the logged in user. The backend
// may end the session, so it is reloaded afterwards.
func (s *Service) ChangePassword(ctx context.Context, password, confirm string) error {
	if err := invalid(passwordProblems(password, confirm)); err != nil {
		return err
	}
	res := s.req.Send(ctx, http.MethodPost, "/auth/password", map[string]string{"password": password})
	if err := res.Failure("saving your changes"); err != nil {
		return err
	}
	_ = s.session.Refresh(ctx)
	return nil
}
