package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ragchat/internal/models"
	"ragchat/pkg/httpclient"
	"ragchat/pkg/logger"
)

// ProviderVerifier verifies session tokens against the identity provider's
// API: first a session-verify call, then a user fetch for profile fields.
type ProviderVerifier struct {
	baseURL string
	secret  string
	http    *httpclient.Client
	log     *logger.Logger
}

// NewProviderVerifier creates a verifier for the provider at baseURL.
func NewProviderVerifier(baseURL, secret string, hc *httpclient.Client, log *logger.Logger) *ProviderVerifier {
	return &ProviderVerifier{baseURL: strings.TrimRight(baseURL, "/"), secret: secret, http: hc, log: log}
}

type sessionVerifyResponse struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

type providerUserResponse struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// Verify resolves the token through the provider. All failure modes
// collapse into AuthError; the caller only distinguishes authorized from
// not.
func (v *ProviderVerifier) Verify(ctx context.Context, token string) (*models.Identity, error) {
	session, err := v.verifySession(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := v.fetchUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	identity := &models.Identity{
		SubjectID: user.ID,
		Name:      strings.TrimSpace(user.FirstName + " " + user.LastName),
		SessionID: session.ID,
	}
	if len(user.EmailAddresses) > 0 {
		identity.Email = user.EmailAddresses[0].EmailAddress
	}
	return identity, nil
}

func (v *ProviderVerifier) verifySession(ctx context.Context, token string) (*sessionVerifyResponse, error) {
	payload, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/sessions/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, &models.AuthError{Reason: "failed to build verification request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+v.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, &models.AuthError{Reason: "identity provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.AuthError{Reason: fmt.Sprintf("invalid token (provider returned %d)", resp.StatusCode)}
	}

	var session sessionVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, &models.AuthError{Reason: "malformed provider response", Err: err}
	}
	if session.UserID == "" {
		return nil, &models.AuthError{Reason: "provider response missing user id"}
	}
	return &session, nil
}

func (v *ProviderVerifier) fetchUser(ctx context.Context, userID string) (*providerUserResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/users/"+userID, nil)
	if err != nil {
		return nil, &models.AuthError{Reason: "failed to build user request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+v.secret)

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, &models.AuthError{Reason: "identity provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.AuthError{Reason: fmt.Sprintf("invalid user (provider returned %d)", resp.StatusCode)}
	}

	var user providerUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, &models.AuthError{Reason: "malformed provider response", Err: err}
	}
	if user.ID == "" {
		return nil, &models.AuthError{Reason: "provider response missing subject id"}
	}
	return &user, nil
}

var _ Verifier = (*ProviderVerifier)(nil)
