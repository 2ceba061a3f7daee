// Package identitytest runs an in-process stand-in for the GoTrue endpoints
// the site uses.
package identitytest

import (
	"docgate/models"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

type Server struct {
	*httptest.Server

	mu sync.Mutex

	// users by access token; token hashes and refresh tokens redeem once
	users         map[string]models.User
	tokenHashes   map[string]models.User
	refreshTokens map[string]models.User
	minted        int

	// ExpiresIn is the lifetime, in seconds, of minted access tokens.
	ExpiresIn int64

	otpStatus      int
	otpMessage     string
	generateErrors map[string]string

	otpRequests  []OTPRequest
	generatedFor []string
	logoutCalls  int
	refreshCalls int
}

type OTPRequest struct {
	Email      string
	RedirectTo string
}

func NewServer() *Server {
	s := &Server{
		users:          make(map[string]models.User),
		tokenHashes:    make(map[string]models.User),
		refreshTokens:  make(map[string]models.User),
		generateErrors: make(map[string]string),
		ExpiresIn:      3600,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/otp", s.handleOTP)
	mux.HandleFunc("POST /auth/v1/verify", s.handleVerify)
	mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	mux.HandleFunc("GET /auth/v1/user", s.handleUser)
	mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/v1/admin/generate_link", s.handleGenerate)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser registers a user reachable with accessToken.
func (s *Server) AddUser(accessToken string, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[accessToken] = user
}

// RevokeUser makes accessToken unknown to the service.
func (s *Server) RevokeUser(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, accessToken)
}

// AddTokenHash makes tokenHash verifiable once, yielding a session for user.
func (s *Server) AddTokenHash(tokenHash string, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenHashes[tokenHash] = user
}

// AddRefreshToken makes refreshToken redeemable once for user.
func (s *Server) AddRefreshToken(refreshToken string, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[refreshToken] = user
}

// OTPRequests returns every OTP request received so far.
func (s *Server) OTPRequests() []OTPRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OTPRequest(nil), s.otpRequests...)
}

// GeneratedFor returns the emails generate_link was called for, in order.
func (s *Server) GeneratedFor() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.generatedFor...)
}

func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// SetOTPError makes the OTP endpoint fail with status and msg; status 0 clears it.
func (s *Server) SetOTPError(status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otpStatus = status
	s.otpMessage = msg
}

// FailGenerate makes generate_link fail for email with msg.
func (s *Server) FailGenerate(email, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateErrors[email] = msg
}

func (s *Server) writeSession(w http.ResponseWriter, user models.User) {
	s.minted++
	access := fmt.Sprintf("access-%d", s.minted)
	refresh := fmt.Sprintf("refresh-%d", s.minted)
	s.users[access] = user
	s.refreshTokens[refresh] = user
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    s.ExpiresIn,
		"refresh_token": refresh,
		"user":          user,
	})
}

func (s *Server) handleOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.otpRequests = append(s.otpRequests, OTPRequest{Email: body.Email, RedirectTo: r.URL.Query().Get("redirect_to")})
	if s.otpStatus != 0 {
		writeJSON(w, s.otpStatus, map[string]any{"code": s.otpStatus, "msg": s.otpMessage})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type      string `json:"type"`
		TokenHash string `json:"token_hash"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.tokenHashes[body.TokenHash]
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]any{"code": 403, "error_code": "otp_expired", "msg": "Email link is invalid or has expired"})
		return
	}
	delete(s.tokenHashes, body.TokenHash)
	s.writeSession(w, user)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "refresh_token" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		return
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	user, ok := s.refreshTokens[body.RefreshToken]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid Refresh Token: Refresh Token Not Found"})
		return
	}
	delete(s.refreshTokens, body.RefreshToken)
	s.writeSession(w, user)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[token]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "msg": "invalid JWT: unable to parse or verify signature"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": user.ID, "email": user.Email, "aud": "authenticated"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutCalls++
	delete(s.users, token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type       string `json:"type"`
		Email      string `json:"email"`
		RedirectTo string `json:"redirect_to"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatedFor = append(s.generatedFor, body.Email)
	if msg, ok := s.generateErrors[body.Email]; ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 422, "msg": msg})
		return
	}
	hash := fmt.Sprintf("hash-%d", len(s.generatedFor))
	s.tokenHashes[hash] = models.User{ID: "user-" + body.Email, Email: body.Email}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                "user-" + body.Email,
		"email":             body.Email,
		"action_link":       s.URL + "/auth/v1/verify?token=" + hash + "&type=magiclink&redirect_to=" + body.RedirectTo,
		"hashed_token":      hash,
		"verification_type": body.Type,
		"redirect_to":       body.RedirectTo,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
