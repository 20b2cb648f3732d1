package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultIdentityURL    = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL = "https://securetoken.googleapis.com/v1"
)

// IdentityOption configures IdentityClient.
type IdentityOption func(*IdentityClient)

func WithIdentityBaseURL(identityURL, secureTokenURL string) IdentityOption {
	return func(c *IdentityClient) {
		if identityURL != "" {
			c.identityURL = strings.TrimSuffix(identityURL, "/")
		}
		if secureTokenURL != "" {
			c.secureTokenURL = strings.TrimSuffix(secureTokenURL, "/")
		}
	}
}

func WithIdentityHTTPClient(hc *http.Client) IdentityOption {
	return func(c *IdentityClient) { c.httpClient = hc }
}

// IdentityClient talks to the Firebase Auth REST API (Identity Toolkit) with
// the project's web API key. The Admin SDK cannot verify passwords, so
// password and IdP sign-in go through here.
type IdentityClient struct {
	apiKey         string
	identityURL    string
	secureTokenURL string
	httpClient     *http.Client
}

func NewIdentityClient(apiKey string, opts ...IdentityOption) *IdentityClient {
	c := &IdentityClient{
		apiKey:         apiKey,
		identityURL:    defaultIdentityURL,
		secureTokenURL: defaultSecureTokenURL,
		httpClient:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IdentityResponse is the union of the sign-in/sign-up response fields we use.
type IdentityResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	ProviderID   string `json:"providerId"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (r *IdentityResponse) ExpiresInSeconds() int {
	n, _ := strconv.Atoi(r.ExpiresIn)
	return n
}

// ProviderError is an error reported by the identity provider.
type ProviderError struct {
	Status int
	Code   string // e.g. EMAIL_NOT_FOUND
	Detail string
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("identity provider: %s (%s)", e.Code, e.Detail)
	}
	return "identity provider: " + e.Code
}

type identityErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseProviderError splits messages like "WEAK_PASSWORD : Password should be at least 6 characters".
func parseProviderError(status int, body []byte) *ProviderError {
	var b identityErrorBody
	if err := json.Unmarshal(body, &b); err != nil || b.Error.Message == "" {
		return &ProviderError{Status: status, Code: "UNKNOWN", Detail: strings.TrimSpace(string(body))}
	}
	code, detail, _ := strings.Cut(b.Error.Message, ":")
	return &ProviderError{Status: status, Code: strings.TrimSpace(code), Detail: strings.TrimSpace(detail)}
}

func (c *IdentityClient) post(ctx context.Context, endpoint string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	u := endpoint + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseProviderError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *IdentityClient) SignInWithPassword(ctx context.Context, email, password string) (*IdentityResponse, error) {
	var out IdentityResponse
	err := c.post(ctx, c.identityURL+"/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	out.ProviderID = "password"
	return &out, nil
}

func (c *IdentityClient) SignUp(ctx context.Context, email, password string) (*IdentityResponse, error) {
	var out IdentityResponse
	err := c.post(ctx, c.identityURL+"/accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	out.ProviderID = "password"
	return &out, nil
}

// IdpCredential is a third-party credential obtained by the client (e.g. a
// Google ID token from the OAuth popup).
type IdpCredential struct {
	ProviderID  string `json:"providerId"`
	IDToken     string `json:"idToken,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	RequestURI  string `json:"requestUri,omitempty"`
}

func (c *IdentityClient) SignInWithIdp(ctx context.Context, cred IdpCredential) (*IdentityResponse, error) {
	post := url.Values{}
	post.Set("providerId", cred.ProviderID)
	if cred.IDToken != "" {
		post.Set("id_token", cred.IDToken)
	}
	if cred.AccessToken != "" {
		post.Set("access_token", cred.AccessToken)
	}
	requestURI := cred.RequestURI
	if requestURI == "" {
		requestURI = "http://localhost"
	}

	var out IdentityResponse
	err := c.post(ctx, c.identityURL+"/accounts:signInWithIdp", map[string]any{
		"postBody":            post.Encode(),
		"requestUri":          requestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ProviderID == "" {
		out.ProviderID = cred.ProviderID
	}
	return &out, nil
}

func (c *IdentityClient) SendPasswordReset(ctx context.Context, email string) error {
	return c.post(ctx, c.identityURL+"/accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

func (c *IdentityClient) UpdateDisplayName(ctx context.Context, idToken, displayName string) error {
	return c.post(ctx, c.identityURL+"/accounts:update", map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}, nil)
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

func (c *IdentityClient) Refresh(ctx context.Context, refreshToken string) (*IdentityResponse, error) {
	var out refreshResponse
	err := c.post(ctx, c.secureTokenURL+"/token", map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &IdentityResponse{
		LocalID:      out.UserID,
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresIn:    out.ExpiresIn,
	}, nil
}
