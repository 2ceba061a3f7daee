// Package identity talks to the hosted GoTrue-compatible auth service and
// exposes it, per browser, as the small capability the site gate consumes.
package identity

import (
	"bytes"
	"context"
	"docgate/models"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// APIError is a non-2xx answer from the auth service. Error() is the
// provider's own message so it can be shown to users verbatim.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// Client is the explicitly constructed handle on the auth service. Build one
// at startup and share it; it holds no per-user state.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time

	// refreshes collapses concurrent refreshes per browser digest.
	refreshes singleflight.Group
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		now:     time.Now,
	}
}

type otpRequest struct {
	Email      string `json:"email"`
	CreateUser bool   `json:"create_user"`
}

type verifyRequest struct {
	Type      string `json:"type"`
	TokenHash string `json:"token_hash"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type generateLinkRequest struct {
	Type       string `json:"type"`
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

// SendOTP asks the service to email a one-time login link to email.
func (c *Client) SendOTP(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/otp"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", otpRequest{Email: email, CreateUser: true}, nil)
}

// Verify exchanges the hashed token from a magic link for a session.
func (c *Client) Verify(ctx context.Context, tokenHash, verifyType string) (*models.Session, error) {
	if verifyType == "" {
		verifyType = "magiclink"
	}
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/verify", "", verifyRequest{Type: verifyType, TokenHash: tokenHash}, &resp)
	if err != nil {
		return nil, err
	}
	return c.toSession(resp)
}

// Refresh trades a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return c.toSession(resp)
}

// GetUser resolves the identity behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" && user.Email == "" {
		return nil, nil
	}
	return &user, nil
}

// Logout revokes the session behind accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// GenerateLink is the privileged magic-link generator; the client must be
// built with the service-role key. The service does not mail the link.
func (c *Client) GenerateLink(ctx context.Context, email, redirectTo string) (*models.GeneratedLink, error) {
	var link models.GeneratedLink
	req := generateLinkRequest{Type: "magiclink", Email: email, RedirectTo: redirectTo}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/admin/generate_link", "", req, &link); err != nil {
		return nil, err
	}
	if link.ActionLink == "" {
		return nil, errors.New("generate link: empty action link in response")
	}
	return &link, nil
}

func (c *Client) toSession(resp sessionResponse) (*models.Session, error) {
	if resp.AccessToken == "" {
		return nil, errors.New("auth service returned no access token")
	}
	s := &models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		User:         resp.User,
	}
	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	return s, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

// parseAPIError understands the several error shapes GoTrue has used over time.
func parseAPIError(status int, raw []byte) *APIError {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Code = body.ErrorCode
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	return apiErr
}
