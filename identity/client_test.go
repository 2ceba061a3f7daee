package identity

import (
	"context"
	"docgate/identity/identitytest"
	"docgate/models"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *identitytest.Server) {
	t.Helper()
	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "anon-key", srv.Client()), srv
}

func TestSendOTPPassesRedirect(t *testing.T) {
	c, srv := newTestClient(t)

	err := c.SendOTP(context.Background(), "a@b.com", "https://docs.example.com/after-login")
	require.NoError(t, err)
	require.Equal(t, []identitytest.OTPRequest{{Email: "a@b.com", RedirectTo: "https://docs.example.com/after-login"}}, srv.OTPRequests())
}

func TestSendOTPErrorIsProviderMessage(t *testing.T) {
	c, srv := newTestClient(t)
	srv.SetOTPError(http.StatusTooManyRequests, "rate limit exceeded")

	err := c.SendOTP(context.Background(), "a@b.com", "")
	require.Error(t, err)
	require.Equal(t, "rate limit exceeded", err.Error())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestVerifyIsSingleUse(t *testing.T) {
	c, srv := newTestClient(t)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	srv.AddTokenHash("hash-1", models.User{ID: "u-1", Email: "a@b.com"})

	session, err := c.Verify(context.Background(), "hash-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)
	require.Equal(t, now.Add(time.Hour), session.ExpiresAt)
	require.Equal(t, "a@b.com", session.User.Email)

	_, err = c.Verify(context.Background(), "hash-1", "magiclink")
	require.EqualError(t, err, "Email link is invalid or has expired")
}

func TestGetUser(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser("good", models.User{ID: "u-1", Email: "a@b.com"})

	user, err := c.GetUser(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, &models.User{ID: "u-1", Email: "a@b.com"}, user)

	_, err = c.GetUser(context.Background(), "bad")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestGenerateLink(t *testing.T) {
	c, srv := newTestClient(t)
	srv.FailGenerate("blocked@b.com", "User not allowed")

	link, err := c.GenerateLink(context.Background(), "a@b.com", "https://docs.example.com/after-login")
	require.NoError(t, err)
	require.Contains(t, link.ActionLink, "/auth/v1/verify?token=")
	require.Equal(t, "magiclink", link.VerificationType)
	require.Equal(t, "https://docs.example.com/after-login", link.RedirectTo)

	_, err = c.GenerateLink(context.Background(), "blocked@b.com", "")
	require.EqualError(t, err, "User not allowed")
	require.Equal(t, []string{"a@b.com", "blocked@b.com"}, srv.GeneratedFor())
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{
			name:     "msg shape",
			status:   429,
			body:     `{"code":429,"error_code":"over_email_send_rate_limit","msg":"email rate limit exceeded"}`,
			wantMsg:  "email rate limit exceeded",
			wantCode: "over_email_send_rate_limit",
		},
		{
			name:     "oauth shape",
			status:   400,
			body:     `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`,
			wantMsg:  "Invalid Refresh Token",
			wantCode: "invalid_grant",
		},
		{
			name:    "message shape",
			status:  500,
			body:    `{"message":"upstream down"}`,
			wantMsg: "upstream down",
		},
		{
			name:    "not json",
			status:  502,
			body:    "Bad Gateway\n",
			wantMsg: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseAPIError(tt.status, []byte(tt.body))
			require.Equal(t, tt.status, err.Status)
			require.Equal(t, tt.wantMsg, err.Error())
			require.Equal(t, tt.wantCode, err.Code)
		})
	}

	require.Equal(t, "Service Unavailable", (&APIError{Status: 503}).Error())
}
