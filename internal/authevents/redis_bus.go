package authevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/barberadmin/internal/model"
)

// channelPrefix はユーザー単位のPub/Subチャネル名の接頭辞。
const channelPrefix = "auth:events:"

// redisPubSubClient はRedisBusが使用するRedisコマンドの部分集合。
type redisPubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// envelope はRedis上で送受信するイベント表現。
// model.AuthEventはユーザーIDとセッションIDをJSONに含めないため別構造で運ぶ。
type envelope struct {
	Type      model.AuthEventType `json:"event"`
	UserID    string              `json:"user_id"`
	SessionID string              `json:"session_id,omitempty"`
	Origin    string              `json:"origin,omitempty"`
	Session   *model.Session      `json:"session"`
}

// RedisBus はRedis Pub/Subを使用するBus実装。
// 複数のサーバープロセス間でイベントを共有できる。
type RedisBus struct {
	client redisPubSubClient

	mu     sync.Mutex
	active map[*redis.PubSub]struct{}
}

// NewRedisBus はRedisBusを生成する。clientがnilの場合はnilを返す。
func NewRedisBus(client *redis.Client) *RedisBus {
	if client == nil {
		return nil
	}
	return newRedisBus(client)
}

func newRedisBus(client redisPubSubClient) *RedisBus {
	return &RedisBus{
		client: client,
		active: make(map[*redis.PubSub]struct{}),
	}
}

// Publish はイベントをユーザーのチャネルへ送信する。
func (b *RedisBus) Publish(ctx context.Context, event model.AuthEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channelName(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}
	return nil
}

// Subscribe はユーザーのチャネルを購読する。
// 購読の確立を待ってから返すため、以降にPublishされたイベントは取りこぼさない。
func (b *RedisBus) Subscribe(ctx context.Context, userID string) (<-chan model.AuthEvent, func(), error) {
	pubsub := b.client.Subscribe(ctx, channelName(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe auth events: %w", err)
	}

	b.mu.Lock()
	b.active[pubsub] = struct{}{}
	b.mu.Unlock()

	out := make(chan model.AuthEvent, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.active, pubsub)
			b.mu.Unlock()
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				event, err := decodeEvent(msg.Payload)
				if err != nil {
					slog.Warn("invalid auth event payload",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Close は全ての購読を閉じる。Redisクライアント自体は閉じない。
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for pubsub := range b.active {
		_ = pubsub.Close()
		delete(b.active, pubsub)
	}
	return nil
}

func channelName(userID string) string {
	return channelPrefix + userID
}

func encodeEvent(event model.AuthEvent) (string, error) {
	b, err := json.Marshal(envelope{
		Type:      event.Type,
		UserID:    event.UserID,
		SessionID: event.SessionID,
		Origin:    event.Origin,
		Session:   event.Session,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode auth event: %w", err)
	}
	return string(b), nil
}

func decodeEvent(payload string) (model.AuthEvent, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return model.AuthEvent{}, fmt.Errorf("failed to decode auth event: %w", err)
	}
	if env.Type == "" || env.UserID == "" {
		return model.AuthEvent{}, fmt.Errorf("auth event is missing type or user")
	}
	return model.AuthEvent{
		Type:      env.Type,
		UserID:    env.UserID,
		SessionID: env.SessionID,
		Origin:    env.Origin,
		Session:   env.Session,
	}, nil
}

// compile-time interface check
var _ Bus = (*RedisBus)(nil)
