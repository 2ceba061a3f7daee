package models

// GeneratedLink is what the admin generate-link call hands back.
type GeneratedLink struct {
	ActionLink       string `json:"action_link"`
	HashedToken      string `json:"hashed_token"`
	VerificationType string `json:"verification_type"`
	RedirectTo       string `json:"redirect_to"`
}

// Issuance is one audit row for a magic link request.
type Issuance struct {
	ID     string
	Email  string
	Source string
	OK     bool
	Error  string
}

// Issuance sources.
const (
	SourceCLI       = "cli"
	SourceLoginForm = "login_form"
)
