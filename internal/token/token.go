// Package token verifies the identity tokens issued to operators (gaseros).
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token has no subject")
)

type Claims struct {
	jwt.RegisteredClaims
}

// BuildJWTString signs a token for operator. Used by the CLI and tests;
// in production tokens come from the identity provider.
func BuildJWTString(secret, issuer, operator string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetOperator checks the signature, expiry and issuer of tokenString and
// returns its subject.
func GetOperator(tokenString, secret, issuer string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, true) {
		return "", fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}

	return claims.Subject, nil
}
