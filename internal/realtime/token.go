package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rexlx/vexmarket/internal/gateway"
)

// TokenSource issues the short lived token sent in the auth frame.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GatewayTokens gets tokens from POST /messages/token.
type GatewayTokens struct {
	Req gateway.Requester
}

func (g GatewayTokens) Token(ctx context.Context) (string, error) {
	res := g.Req.Send(ctx, http.MethodPost, "/messages/token", nil)
	if err := res.Failure("connecting to chat"); err != nil {
		return "", err
	}
	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := res.Decode(&body); err != nil {
		return "", err
	}
	if !body.Success || body.Token == "" {
		return "", errors.New("no socket token issued")
	}
	return body.Token, nil
}

// expiry reads the exp claim without checking the signature; the server
// does that. ok is false when the token carries no readable expiry.
func expiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}
