package gate

import (
	"context"
	"sync"
	"time"

	"docgate/identity"
	"docgate/models"
)

type fakeProvider struct {
	mu         sync.Mutex
	session    *models.Session
	sessionErr error
	user       *models.User
	userErr    error
	linkErr    error
	subErr     error

	events       chan models.AuthEvent
	links        []string
	subscribes   int
	unsubscribes int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: make(chan models.AuthEvent, 4)}
}

func (p *fakeProvider) GetSession(context.Context) (*models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.sessionErr
}

func (p *fakeProvider) GetUser(context.Context) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user, p.userErr
}

func (p *fakeProvider) Subscribe(context.Context) (identity.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subErr != nil {
		return nil, p.subErr
	}
	p.subscribes++
	return &fakeSubscription{p: p}, nil
}

func (p *fakeProvider) RequestLink(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links = append(p.links, email)
	return p.linkErr
}

func (p *fakeProvider) counts() (subs, unsubs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribes, p.unsubscribes
}

// fakeSubscription counts every Unsubscribe call so double releases show up.
type fakeSubscription struct{ p *fakeProvider }

func (s *fakeSubscription) Events() <-chan models.AuthEvent { return s.p.events }

func (s *fakeSubscription) Unsubscribe() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.unsubscribes++
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Duration
	timers  []*fakeTimer
	created chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{created: make(chan *fakeTimer, 8)}
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	t := &fakeTimer{clock: c, c: make(chan time.Time, 1), at: c.now + d}
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.created <- t
	return t
}

// Advance moves time forward and fires every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			t.c <- time.Time{}
		}
	}
}

type fakeTimer struct {
	clock   *fakeClock
	c       chan time.Time
	at      time.Duration
	stopped bool
	fired   bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) isStopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopped
}

type recordingView struct {
	mu          sync.Mutex
	waiting     int
	welcomed    []string
	failures    []string
	navigations []string
}

func (v *recordingView) Waiting() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.waiting++
}

func (v *recordingView) Welcome(user *models.User) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.welcomed = append(v.welcomed, user.Email)
}

func (v *recordingView) Fail(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures = append(v.failures, msg)
}

func (v *recordingView) Navigate(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.navigations = append(v.navigations, path)
}

func (v *recordingView) snapshot() (welcomed, failures, navigations []string, waiting int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.welcomed...),
		append([]string(nil), v.failures...),
		append([]string(nil), v.navigations...),
		v.waiting
}
