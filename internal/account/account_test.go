package account

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/gateway/gatewaytest"
)

type refresher struct{ n int }

func (r *refresher) Refresh(context.Context) error {
	r.n++
	return nil
}

func TestValidEmail(t *testing.T) {
	for _, ok := range []string{"ada@example.com", "a.b@sub.example.co", "x@[10.0.0.1]"} {
		assert.True(t, ValidEmail(ok), ok)
	}
	for _, bad := range []string{"", "ada", "ada@", "ada@example", "a b@example.com", "ada@example.c"} {
		assert.False(t, ValidEmail(bad), bad)
	}
}

func TestPasswordRequirements(t *testing.T) {
	assert.Equal(t, Requirements{Length: true, Upper: true, Lower: true, Number: true}, PasswordRequirements("Passw0rdX"))
	assert.False(t, PasswordRequirements("short1A").Met())
	assert.False(t, PasswordRequirements("alllowercase1").Upper)
	assert.False(t, PasswordRequirements(strings.Repeat("Aa1", 67)).Length)
}

func TestRegistrationProblems(t *testing.T) {
	r := Registration{
		FirstName: "A",
		LastName:  "Lovelace",
		Email:     "not-an-email",
		Password:  "password",
		Confirm:   "passw0rd",
	}
	assert.Equal(t, []string{
		"First name must be between 2 and 100 characters",
		"Invalid email address",
		"Password must contain an uppercase letter",
		"Password must contain a number",
		"Passwords do not match",
	}, r.Problems())

	r = Registration{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "Passw0rdX", Confirm: "Passw0rdX"}
	assert.Empty(t, r.Problems())
}

func TestLoginRefreshesSession(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/auth/login", func(body json.RawMessage) gateway.Result {
		var in struct{ Email, Password string }
		_ = json.Unmarshal(body, &in)
		if in.Password != "Passw0rdX" {
			return gatewaytest.Status(http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid email or password"})
		}
		return gatewaytest.OK(map[string]any{"success": true})
	})
	r := &refresher{}
	svc := NewService(f, r)
	ctx := context.Background()

	assert.EqualError(t, svc.Login(ctx, "ada@example.com", "nope"), "Invalid email or password")
	assert.Equal(t, 0, r.n)

	require.NoError(t, svc.Login(ctx, "ada@example.com", "Passw0rdX"))
	assert.Equal(t, 1, r.n)

	var ve *internal.ValidationError
	require.ErrorAs(t, svc.Login(ctx, "", ""), &ve)
	assert.Equal(t, []string{"Email is required", "Invalid email address", "Password is required"}, ve.Problems)
}

func TestLoginOffline(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/auth/login", func(json.RawMessage) gateway.Result { return gatewaytest.Offline() })
	err := NewService(f, &refresher{}).Login(context.Background(), "ada@example.com", "x")
	assert.EqualError(t, err, "Something went wrong while logging in. Please try again later.")
}

func TestRegister(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/auth/register", func(body json.RawMessage) gateway.Result {
		assert.JSONEq(t, `{"email":"ada@example.com","password":"Passw0rdX","firstName":"Ada","lastName":"Lovelace"}`, string(body))
		return gatewaytest.OK(map[string]any{"success": true})
	})
	svc := NewService(f, &refresher{})
	require.NoError(t, svc.Register(context.Background(), Registration{
		FirstName: " Ada ", LastName: "Lovelace", Email: "ada@example.com", Password: "Passw0rdX", Confirm: "Passw0rdX",
	}))
}

func TestResetFlow(t *testing.T) {
	f := gatewaytest.New()
	f.JSON(http.MethodGet, "/auth/reset/tok", map[string]any{"success": true})
	f.Handle(http.MethodGet, "/auth/reset/old", func(json.RawMessage) gateway.Result {
		return gatewaytest.Status(http.StatusNotFound, map[string]any{"error": "This reset link has expired."})
	})
	f.JSON(http.MethodPost, "/auth/reset/tok", map[string]any{"success": true})
	f.JSON(http.MethodPost, "/auth/reset", map[string]any{"success": true})
	svc := NewService(f, &refresher{})
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, "ada@example.com"))
	assert.ErrorIs(t, svc.CheckResetToken(ctx, ""), ErrInvalidResetLink)
	assert.EqualError(t, svc.CheckResetToken(ctx, "old"), "This reset link has expired.")
	require.NoError(t, svc.CheckResetToken(ctx, "tok"))

	var ve *internal.ValidationError
	require.ErrorAs(t, svc.ResetPassword(ctx, "tok", "Passw0rdX", "other"), &ve)
	assert.Equal(t, []string{"Passwords do not match"}, ve.Problems)
	require.NoError(t, svc.ResetPassword(ctx, "tok", "Passw0rdX", "Passw0rdX"))
}

func TestChangePasswordAndLogout(t *testing.T) {
	f := gatewaytest.New()
	f.JSON(http.MethodPost, "/auth/password", map[string]any{"success": true})
	f.JSON(http.MethodPost, "/auth/verify", map[string]any{"success": true})
	f.Handle(http.MethodPost, "/auth/logout", func(json.RawMessage) gateway.Result { return gatewaytest.Offline() })
	r := &refresher{}
	svc := NewService(f, r)
	ctx := context.Background()

	require.NoError(t, svc.ChangePassword(ctx, "Passw0rdX", "Passw0rdX"))
	assert.Equal(t, 1, r.n)

	require.NoError(t, svc.Verify(ctx, "abc"))

	assert.Error(t, svc.Logout(ctx))
	assert.Equal(t, 2, r.n)
}
