package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

// SessionClaims binds a handle to the client it signed in on.
type SessionClaims struct {
	Username  string `json:"username"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func NewClaims(username, sessionID string, exp time.Time) *SessionClaims {
	return &SessionClaims{
		Username:  username,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "n14",
		},
	}
}

func NewToken(username, sessionID string, expiration time.Duration, secret []byte) (string, time.Time, error) {
	exp := time.Now().Add(expiration)
	claims := NewClaims(username, sessionID, exp)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	return signed, exp, err
}

func VerifyToken(token string, secret []byte) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_token, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case err == nil && _token.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrUnrecognizedToken
	}
}
