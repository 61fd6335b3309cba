package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/softrlabs/bexgate/params"
)

// SessionVerifier exchanges the opaque session evidence a Softr app sends
// for the caller's email address.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (string, error)
}

// jwtVerifier validates Softr session JWTs locally with the shared HS256
// secret and reads the email claim. No network call involved.
type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) SessionVerifier {
	return &jwtVerifier{secret: []byte(secret)}
}

func (v *jwtVerifier) VerifySession(ctx context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims type", ErrUnauthenticated)
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", fmt.Errorf("%w: session token carries no email", ErrUnauthenticated)
	}
	return email, nil
}

// softrVerifier asks the Softr users API to validate the session token.
type softrVerifier struct {
	verifyURL string
	apiKey    string
	client    *http.Client
}

func NewSoftrVerifier(verifyURL string, apiKey string) SessionVerifier {
	return &softrVerifier{
		verifyURL: verifyURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: params.SessionVerifyTimeout},
	}
}

func (v *softrVerifier) VerifySession(ctx context.Context, token string) (string, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Softr-Api-Key", v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: session verification failed: %v", ErrUnauthenticated, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: session verification returned status %d", ErrUnauthenticated, resp.StatusCode)
	}

	var result struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: malformed session verification response: %v", ErrUnauthenticated, err)
	}
	if result.Email == "" {
		return "", fmt.Errorf("%w: session verification returned no email", ErrUnauthenticated)
	}
	return result.Email, nil
}
