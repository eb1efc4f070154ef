package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt"

	"ragchat/internal/models"
)

// JWTVerifier validates HMAC-signed tokens locally. The "sub" claim carries
// the subject id; "email" and "name" are optional profile claims.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier using the shared HMAC secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, &models.AuthError{Reason: "invalid token", Err: err}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, &models.AuthError{Reason: "invalid token claims"}
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, &models.AuthError{Reason: "token missing subject"}
	}

	identity := &models.Identity{SubjectID: sub}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	return identity, nil
}

var _ Verifier = (*JWTVerifier)(nil)
