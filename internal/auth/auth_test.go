package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt"

	"ragchat/internal/models"
	"ragchat/pkg/httpclient"
	"ragchat/pkg/logger"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	v := NewJWTVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{"sub": "user-42", "email": "u@example.com", "name": "U"})

	identity, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if identity.SubjectID != "user-42" || identity.Email != "u@example.com" || identity.Name != "U" {
		t.Errorf("unexpected identity %+v", identity)
	}
}

func TestJWTVerifierRejectsWrongSecret(t *testing.T) {
	v := NewJWTVerifier("secret")
	token := signToken(t, "other", jwt.MapClaims{"sub": "user-42"})

	_, err := v.Verify(context.Background(), token)
	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestJWTVerifierRejectsMissingSubject(t *testing.T) {
	v := NewJWTVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{"email": "u@example.com"})

	_, err := v.Verify(context.Background(), token)
	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestProviderVerifierResolvesIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer server-secret" {
			t.Errorf("missing server credential on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/v1/sessions/verify":
			json.NewEncoder(w).Encode(map[string]string{"id": "sess-1", "user_id": "user-42"})
		case "/v1/users/user-42":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":         "user-42",
				"first_name": "Ada",
				"last_name":  "Lovelace",
				"email_addresses": []map[string]string{
					{"email_address": "ada@example.com"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	v := NewProviderVerifier(srv.URL, "server-secret", httpclient.New(httpclient.Options{}), logger.New("test", ""))
	identity, err := v.Verify(context.Background(), "session-token")
	if err != nil {
		t.Fatal(err)
	}
	if identity.SubjectID != "user-42" || identity.Email != "ada@example.com" {
		t.Errorf("unexpected identity %+v", identity)
	}
	if identity.Name != "Ada Lovelace" || identity.SessionID != "sess-1" {
		t.Errorf("unexpected profile fields %+v", identity)
	}
}

func TestProviderVerifierRejectsInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewProviderVerifier(srv.URL, "server-secret", httpclient.New(httpclient.Options{}), logger.New("test", ""))
	_, err := v.Verify(context.Background(), "bad-token")
	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestProviderVerifierUnreachable(t *testing.T) {
	v := NewProviderVerifier("http://127.0.0.1:1", "server-secret", httpclient.New(httpclient.Options{}), logger.New("test", ""))
	_, err := v.Verify(context.Background(), "token")
	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}
