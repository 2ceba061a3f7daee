package utils

import (
	"context"
	"docgate/models"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// OpenRedis initializes a Redis connection pool
func OpenRedisPool(dsn string) *redis.Client {
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		log.Fatalf("Failed to parse Redis DSN: %v", err)
	}

	// Configure connection pooling
	opt.PoolSize = 100
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err = client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to ping redis db 0: %v", err)
	}

	return client
}

func sessionKey(digest string) string {
	return "session:" + digest
}

func eventChannel(digest string) string {
	return "auth_events:" + digest
}

// StoreSession saves a provider session under the browser digest.
func StoreSession(ctx context.Context, client *redis.Client, digest string, session *models.Session, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := sessionKey(digest)
	pipe := client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, SessionFields(session))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// GetSession returns the stored session, or nil when there is none.
func GetSession(ctx context.Context, client *redis.Client, digest string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := client.HGetAll(ctx, sessionKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return ParseSessionFields(data)
}

// DeleteSession removes the stored session for a browser.
func DeleteSession(ctx context.Context, client *redis.Client, digest string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return client.Del(ctx, sessionKey(digest)).Err()
}

// PublishAuthEvent notifies every subscriber waiting on this browser.
func PublishAuthEvent(ctx context.Context, client *redis.Client, digest string, event models.AuthEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return client.Publish(ctx, eventChannel(digest), payload).Err()
}

// SubscribeAuthEvents opens a subscription and waits for Redis to confirm it,
// so events published after this returns are never missed.
func SubscribeAuthEvents(ctx context.Context, client *redis.Client, digest string) (*redis.PubSub, error) {
	pubsub := client.Subscribe(ctx, eventChannel(digest))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to auth events: %w", err)
	}
	return pubsub, nil
}

// SessionFields flattens a session into the hash layout kept in Redis.
func SessionFields(s *models.Session) map[string]any {
	fields := map[string]any{
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"token_type":    s.TokenType,
		"expires_at":    s.ExpiresAt.UTC().Format(time.RFC3339),
		"user_id":       "",
		"user_email":    "",
	}
	if s.User != nil {
		fields["user_id"] = s.User.ID
		fields["user_email"] = s.User.Email
	}
	return fields
}

func ParseSessionFields(data map[string]string) (*models.Session, error) {
	if data["access_token"] == "" {
		return nil, fmt.Errorf("stored session has no access token")
	}
	session := &models.Session{
		AccessToken:  data["access_token"],
		RefreshToken: data["refresh_token"],
		TokenType:    data["token_type"],
	}
	if raw := data["expires_at"]; raw != "" {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("stored session expiry: %w", err)
		}
		session.ExpiresAt = expiresAt
	}
	if data["user_id"] != "" || data["user_email"] != "" {
		session.User = &models.User{ID: data["user_id"], Email: data["user_email"]}
	}
	return session, nil
}
