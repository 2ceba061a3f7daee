package utils

import (
	"net/http"
	"time"
)

// SessionCookie names the opaque browser key cookie.
const SessionCookie = "session_token"

func CookieExists(r *http.Request, name string) bool {
	st, err := r.Cookie(name)
	return err == nil && st.Value != ""
}

// BrowserKey returns the session cookie value, or "" when absent.
func BrowserKey(r *http.Request) string {
	st, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return st.Value
}

// SetSessionCookie issues the browser key cookie.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   3600 * 24 * 30, // 30 days
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// GetUserAgent returns the User-Agent string from the request
func GetUserAgent(r *http.Request) string {
	return r.Header.Get("User-Agent")
}

// GetIP returns the IP address of the client from the request
func GetIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return ip
}
