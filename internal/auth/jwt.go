package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTResolver verifies HS256 access tokens locally and returns their subject.
type JWTResolver struct {
	Secret []byte
}

// NewJWTResolver creates a resolver that trusts tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{Secret: []byte(secret)}
}

func (j *JWTResolver) Resolve(_ context.Context, token string) (string, error) {
	if j == nil || len(j.Secret) == 0 {
		return "", ErrNotConfigured
	}
	if token == "" {
		return "", ErrNoToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return sub, nil
}
