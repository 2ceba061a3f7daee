package gate

import (
	"context"

	"docgate/identity"
)

const MsgLinkSent = "Check your email for the magic login link!"

// LoginForm is the state of the email form between submissions.
type LoginForm struct {
	Email   string
	Message string
	IsError bool
	Sending bool
}

// Submit requests a one-time link for email. The form is disabled while the
// request is in flight and enabled again whatever the outcome. The provider
// error, if any, is returned for logging; it is already in Message.
func (f *LoginForm) Submit(ctx context.Context, p identity.Provider, email string) error {
	f.Sending = true
	f.Message = ""
	f.IsError = false
	f.Email = email
	defer func() { f.Sending = false }()

	if err := p.RequestLink(ctx, email); err != nil {
		f.Message = "Error sending magic link: " + err.Error()
		f.IsError = true
		return err
	}
	f.Message = MsgLinkSent
	return nil
}
