package gate

import (
	"context"
	"errors"
	"time"

	"docgate/identity"
	"docgate/models"
)

// RedirectDelay is how long the welcome is shown before moving on to the docs.
const RedirectDelay = 1000 * time.Millisecond

const (
	MsgUserNotFound       = "User not found"
	MsgNoSessionAfterAuth = "No session after auth state change"
)

var ErrEventStreamClosed = errors.New("auth event stream closed")

// LandingView renders the landing page as the flow progresses.
type LandingView interface {
	// Waiting is shown once subscribed, while no session exists yet.
	Waiting()
	Welcome(user *models.User)
	Fail(msg string)
	Navigate(path string)
}

// Landing completes a login after a magic link has been followed. Run blocks
// until the flow ends or ctx is done; cancelling ctx is the teardown, after
// which the view is never navigated.
type Landing struct {
	Provider identity.Provider
	View     LandingView
	Clock    Clock
	Delay    time.Duration
}

func (l *Landing) Run(ctx context.Context) error {
	session, err := l.Provider.GetSession(ctx)
	if err != nil {
		l.View.Fail(err.Error())
		return err
	}
	if session != nil {
		return l.complete(ctx)
	}

	sub, err := l.Provider.Subscribe(ctx)
	if err != nil {
		l.View.Fail(err.Error())
		return err
	}
	defer sub.Unsubscribe()
	l.View.Waiting()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case event, ok := <-sub.Events():
		if !ok {
			l.View.Fail(ErrEventStreamClosed.Error())
			return ErrEventStreamClosed
		}
		if event.Session == nil {
			l.View.Fail(MsgNoSessionAfterAuth)
			return nil
		}
		return l.complete(ctx)
	}
}

func (l *Landing) complete(ctx context.Context) error {
	user, err := l.Provider.GetUser(ctx)
	if err != nil || user == nil {
		msg := MsgUserNotFound
		if err != nil && err.Error() != "" {
			msg = err.Error()
		}
		l.View.Fail(msg)
		return nil
	}
	l.View.Welcome(user)

	delay := l.Delay
	if delay <= 0 {
		delay = RedirectDelay
	}
	clock := l.Clock
	if clock == nil {
		clock = RealClock{}
	}
	timer := clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		l.View.Navigate(DocsPath)
		return nil
	}
}
