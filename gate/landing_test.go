package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"docgate/models"

	"github.com/stretchr/testify/require"
)

type landingRun struct {
	view   *recordingView
	clock  *fakeClock
	cancel context.CancelFunc
	done   chan error
}

func startLanding(t *testing.T, p *fakeProvider) *landingRun {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	run := &landingRun{
		view:   &recordingView{},
		clock:  newFakeClock(),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	t.Cleanup(cancel)
	l := &Landing{Provider: p, View: run.view, Clock: run.clock}
	go func() { run.done <- l.Run(ctx) }()
	return run
}

func (r *landingRun) waitTimer(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-r.clock.created:
		return timer
	case <-time.After(2 * time.Second):
		t.Fatal("redirect timer was never started")
		return nil
	}
}

func (r *landingRun) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("landing flow did not finish")
		return nil
	}
}

func TestLandingWithSessionNavigatesAfterDelay(t *testing.T) {
	p := newFakeProvider()
	p.session = &models.Session{AccessToken: "a"}
	p.user = &models.User{ID: "u1", Email: "a@b.com"}

	run := startLanding(t, p)
	timer := run.waitTimer(t)
	require.Equal(t, RedirectDelay, timer.at)

	welcomed, failures, navigations, _ := run.view.snapshot()
	require.Equal(t, []string{"a@b.com"}, welcomed)
	require.Empty(t, failures)
	require.Empty(t, navigations)

	run.clock.Advance(999 * time.Millisecond)
	_, _, navigations, _ = run.view.snapshot()
	require.Empty(t, navigations)

	run.clock.Advance(time.Millisecond)
	require.NoError(t, run.wait(t))

	_, _, navigations, _ = run.view.snapshot()
	require.Equal(t, []string{"/docs"}, navigations)
	subs, _ := p.counts()
	require.Zero(t, subs)
}

func TestLandingTeardownBeforeRedirect(t *testing.T) {
	p := newFakeProvider()
	p.session = &models.Session{AccessToken: "a"}
	p.user = &models.User{ID: "u1", Email: "a@b.com"}

	run := startLanding(t, p)
	timer := run.waitTimer(t)

	run.clock.Advance(500 * time.Millisecond)
	run.cancel()
	require.ErrorIs(t, run.wait(t), context.Canceled)
	require.True(t, timer.isStopped())

	run.clock.Advance(time.Second)
	_, _, navigations, _ := run.view.snapshot()
	require.Empty(t, navigations)
}

func TestLandingWaitsForAuthEvent(t *testing.T) {
	p := newFakeProvider()
	p.user = &models.User{ID: "u1", Email: "a@b.com"}

	run := startLanding(t, p)
	p.events <- models.AuthEvent{
		Type:    models.EventSignedIn,
		Session: &models.Session{AccessToken: "a"},
	}

	run.waitTimer(t)
	run.clock.Advance(RedirectDelay)
	require.NoError(t, run.wait(t))

	welcomed, failures, navigations, waiting := run.view.snapshot()
	require.Equal(t, 1, waiting)
	require.Equal(t, []string{"a@b.com"}, welcomed)
	require.Empty(t, failures)
	require.Equal(t, []string{"/docs"}, navigations)

	subs, unsubs := p.counts()
	require.Equal(t, 1, subs)
	require.Equal(t, 1, unsubs)
}

func TestLandingEventWithoutSession(t *testing.T) {
	p := newFakeProvider()
	p.user = &models.User{ID: "u1", Email: "a@b.com"}

	run := startLanding(t, p)
	p.events <- models.AuthEvent{Type: models.EventSignedOut}
	require.NoError(t, run.wait(t))

	welcomed, failures, navigations, _ := run.view.snapshot()
	require.Empty(t, welcomed)
	require.Equal(t, []string{"No session after auth state change"}, failures)
	require.Empty(t, navigations)

	_, unsubs := p.counts()
	require.Equal(t, 1, unsubs)
}

func TestLandingUserMissing(t *testing.T) {
	tests := []struct {
		name    string
		user    *models.User
		userErr error
		want    string
	}{
		{"no user", nil, nil, "User not found"},
		{"provider error", nil, errors.New("invalid JWT"), "invalid JWT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			p.session = &models.Session{AccessToken: "a"}
			p.user = tt.user
			p.userErr = tt.userErr

			run := startLanding(t, p)
			require.NoError(t, run.wait(t))

			welcomed, failures, navigations, _ := run.view.snapshot()
			require.Empty(t, welcomed)
			require.Equal(t, []string{tt.want}, failures)
			require.Empty(t, navigations)
			require.Empty(t, run.clock.created)
		})
	}
}

func TestLandingSessionLookupErrorIsShown(t *testing.T) {
	p := newFakeProvider()
	p.sessionErr = errors.New("redis: connection refused")

	run := startLanding(t, p)
	require.Error(t, run.wait(t))

	_, failures, navigations, _ := run.view.snapshot()
	require.Equal(t, []string{"redis: connection refused"}, failures)
	require.Empty(t, navigations)
}

func TestLandingClosedEventStream(t *testing.T) {
	p := newFakeProvider()
	close(p.events)

	run := startLanding(t, p)
	require.ErrorIs(t, run.wait(t), ErrEventStreamClosed)

	_, unsubs := p.counts()
	require.Equal(t, 1, unsubs)
}

func TestLandingUnsubscribesOncePerMount(t *testing.T) {
	p := newFakeProvider()

	for i := 0; i < 3; i++ {
		run := startLanding(t, p)
		require.Eventually(t, func() bool {
			_, _, _, waiting := run.view.snapshot()
			return waiting == 1
		}, 2*time.Second, 5*time.Millisecond)
		run.cancel()
		require.ErrorIs(t, run.wait(t), context.Canceled)
	}

	subs, unsubs := p.counts()
	require.Equal(t, 3, subs)
	require.Equal(t, 3, unsubs)
}
