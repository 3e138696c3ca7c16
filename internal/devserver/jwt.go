package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "vexdev"

var errBadSocketToken = errors.New("socket token is invalid")

// socketClaims is what a socket presents in its auth frame.
type socketClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// issueSocketToken signs a short lived HS256 token for uid.
func issueSocketToken(uid int64, key string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, socketClaims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprint(uid),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString([]byte(key))
}

// socketUser returns the user a token was issued to. Expired tokens,
// foreign issuers and non-HMAC signatures are all rejected.
func socketUser(raw, key string) (int64, error) {
	var claims socketClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errBadSocketToken, err)
	}
	if claims.UserID == 0 {
		return 0, errBadSocketToken
	}
	return claims.UserID, nil
}
