package models

const (
	EventSignedIn  = "SIGNED_IN"
	EventSignedOut = "SIGNED_OUT"
)

// AuthEvent is one "auth state changed" notification for a browser.
type AuthEvent struct {
	Type    string   `json:"type"`
	Session *Session `json:"session,omitempty"`
}
