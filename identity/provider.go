package identity

import (
	"context"
	"docgate/models"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrNoSession is returned by GetUser when the browser holds no session.
var ErrNoSession = errors.New("auth session missing")

// refreshWindow is how long a stored session outlives its access token so it
// can still be refreshed.
const refreshWindow = 30 * 24 * time.Hour

// sessionTTL is the remaining life of the access token plus the refresh window.
func sessionTTL(session *models.Session, now time.Time) time.Duration {
	if session.ExpiresAt.IsZero() {
		return refreshWindow
	}
	remaining := session.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining + refreshWindow
}

// Provider is everything the site needs from the identity service, scoped to
// one browser.
type Provider interface {
	// GetSession returns nil, nil when the browser has no live session.
	GetSession(ctx context.Context) (*models.Session, error)
	GetUser(ctx context.Context) (*models.User, error)
	// Subscribe starts delivering auth state changes. The caller owns the
	// returned handle and must Unsubscribe it.
	Subscribe(ctx context.Context) (Subscription, error)
	RequestLink(ctx context.Context, email string) error
}

type Subscription interface {
	Events() <-chan models.AuthEvent
	Unsubscribe()
}

// Store keeps provider sessions per browser digest and fans out auth events.
type Store interface {
	Save(ctx context.Context, digest string, session *models.Session, ttl time.Duration) error
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context, digest string) (*models.Session, error)
	Delete(ctx context.Context, digest string) error
	Publish(ctx context.Context, digest string, event models.AuthEvent) error
	Subscribe(ctx context.Context, digest string) (Subscription, error)
}

// Browser is the Provider for one browser, identified by the digest of its
// session cookie. An empty digest means the browser never got a cookie.
type Browser struct {
	client     *Client
	store      Store
	digest     string
	redirectTo string
}

func NewBrowser(client *Client, store Store, digest, redirectTo string) *Browser {
	return &Browser{client: client, store: store, digest: digest, redirectTo: redirectTo}
}

func (b *Browser) GetSession(ctx context.Context) (*models.Session, error) {
	if b.digest == "" {
		return nil, nil
	}
	session, err := b.store.Load(ctx, b.digest)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.Expired(b.client.now()) {
		return session, nil
	}

	if session.RefreshToken == "" {
		b.forget(ctx)
		return nil, nil
	}
	return b.refresh(ctx, session)
}

// refresh rotates an expired session. Concurrent lookups for the same browser
// share one call to the provider, since a refresh token redeems only once.
func (b *Browser) refresh(ctx context.Context, stale *models.Session) (*models.Session, error) {
	v, err, _ := b.client.refreshes.Do(b.digest, func() (any, error) {
		return b.refreshStored(context.WithoutCancel(ctx), stale)
	})
	if err != nil {
		return nil, err
	}
	session, _ := v.(*models.Session)
	if session == nil {
		return nil, nil
	}
	out := *session
	return &out, nil
}

func (b *Browser) refreshStored(ctx context.Context, stale *models.Session) (*models.Session, error) {
	current, err := b.store.Load(ctx, b.digest)
	if err != nil || current == nil {
		return nil, err
	}
	if current.RefreshToken != stale.RefreshToken && !current.Expired(b.client.now()) {
		return current, nil
	}

	refreshed, err := b.client.Refresh(ctx, current.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			// another server may have rotated the token in the meantime
			latest, loadErr := b.store.Load(ctx, b.digest)
			if loadErr == nil && latest != nil && latest.RefreshToken != current.RefreshToken {
				return latest, nil
			}
			log.Println("refresh rejected, dropping session: ", err)
			b.forget(ctx)
			return nil, nil
		}
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	if refreshed.User == nil {
		refreshed.User = current.User
	}
	if err := b.store.Save(ctx, b.digest, refreshed, sessionTTL(refreshed, b.client.now())); err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (b *Browser) GetUser(ctx context.Context) (*models.User, error) {
	session, err := b.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return b.client.GetUser(ctx, session.AccessToken)
}

func (b *Browser) Subscribe(ctx context.Context) (Subscription, error) {
	if b.digest == "" {
		return nil, errors.New("browser has no session cookie to listen on")
	}
	sub, err := b.store.Subscribe(ctx, b.digest)
	if err != nil {
		return nil, err
	}
	return Once(sub), nil
}

func (b *Browser) RequestLink(ctx context.Context, email string) error {
	return b.client.SendOTP(ctx, email, b.redirectTo)
}

// VerifyLink completes a token_hash style magic link for this browser.
func (b *Browser) VerifyLink(ctx context.Context, tokenHash, verifyType string) error {
	session, err := b.client.Verify(ctx, tokenHash, verifyType)
	if err != nil {
		return err
	}
	return b.Establish(ctx, session)
}

// EstablishTokens accepts tokens the provider put in a redirect fragment. The
// access token is checked against the provider before it is stored.
func (b *Browser) EstablishTokens(ctx context.Context, accessToken, refreshToken, tokenType string, expiresIn time.Duration) error {
	user, err := b.client.GetUser(ctx, accessToken)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNoSession
	}
	session := &models.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		User:         user,
	}
	if expiresIn > 0 {
		session.ExpiresAt = b.client.now().Add(expiresIn).UTC()
	}
	return b.Establish(ctx, session)
}

// Establish stores session for this browser and announces SIGNED_IN.
func (b *Browser) Establish(ctx context.Context, session *models.Session) error {
	if b.digest == "" {
		return errors.New("browser has no session cookie to store under")
	}
	if err := b.store.Save(ctx, b.digest, session, sessionTTL(session, b.client.now())); err != nil {
		return err
	}
	return b.store.Publish(ctx, b.digest, models.AuthEvent{Type: models.EventSignedIn, Session: session})
}

// SignOut revokes the session at the provider (best effort), drops it locally
// and announces SIGNED_OUT.
func (b *Browser) SignOut(ctx context.Context) error {
	if b.digest == "" {
		return nil
	}
	session, err := b.store.Load(ctx, b.digest)
	if err != nil {
		return err
	}
	if session != nil {
		if err := b.client.Logout(ctx, session.AccessToken); err != nil {
			log.Println("provider logout failed: ", err)
		}
	}
	if err := b.store.Delete(ctx, b.digest); err != nil {
		return err
	}
	return b.store.Publish(ctx, b.digest, models.AuthEvent{Type: models.EventSignedOut})
}

// Abandon wakes a waiting landing page without a session, after the provider
// redirected back with an error instead of tokens.
func (b *Browser) Abandon(ctx context.Context) error {
	if b.digest == "" {
		return nil
	}
	return b.store.Publish(ctx, b.digest, models.AuthEvent{Type: models.EventSignedOut})
}

func (b *Browser) forget(ctx context.Context) {
	if err := b.store.Delete(ctx, b.digest); err != nil {
		log.Println("error deleting stale session: ", err)
	}
}

// Once wraps sub so repeated Unsubscribe calls release it a single time.
func Once(sub Subscription) Subscription {
	if o, ok := sub.(*onceSubscription); ok {
		return o
	}
	return &onceSubscription{sub: sub}
}

type onceSubscription struct {
	sub  Subscription
	once sync.Once
}

func (o *onceSubscription) Events() <-chan models.AuthEvent { return o.sub.Events() }

func (o *onceSubscription) Unsubscribe() {
	o.once.Do(o.sub.Unsubscribe)
}
