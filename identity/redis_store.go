package identity

import (
	"context"
	"docgate/models"
	"docgate/utils"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as Redis hashes and carries auth events over
// Redis pub/sub, so any server instance can complete a login another started.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, digest string, session *models.Session, ttl time.Duration) error {
	return utils.StoreSession(ctx, s.client, digest, session, ttl)
}

func (s *RedisStore) Load(ctx context.Context, digest string) (*models.Session, error) {
	return utils.GetSession(ctx, s.client, digest)
}

func (s *RedisStore) Delete(ctx context.Context, digest string) error {
	return utils.DeleteSession(ctx, s.client, digest)
}

func (s *RedisStore) Publish(ctx context.Context, digest string, event models.AuthEvent) error {
	return utils.PublishAuthEvent(ctx, s.client, digest, event)
}

func (s *RedisStore) Subscribe(ctx context.Context, digest string) (Subscription, error) {
	pubsub, err := utils.SubscribeAuthEvents(ctx, s.client, digest)
	if err != nil {
		return nil, err
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan models.AuthEvent),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return Once(sub), nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan models.AuthEvent
	done   chan struct{}
}

func (s *redisSubscription) pump() {
	defer close(s.events)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event models.AuthEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Println("dropping malformed auth event: ", err)
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan models.AuthEvent { return s.events }

func (s *redisSubscription) Unsubscribe() {
	close(s.done)
	if err := s.pubsub.Close(); err != nil {
		log.Println("error closing auth event subscription: ", err)
	}
}
