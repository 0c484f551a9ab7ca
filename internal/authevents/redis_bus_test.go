package authevents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/barberadmin/internal/model"
)

type mockPubSubClient struct {
	lastChannel string
	lastMessage interface{}
	publishErr  error
}

func (m *mockPubSubClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.lastChannel = channel
	m.lastMessage = message
	cmd := redis.NewIntCmd(ctx)
	if m.publishErr != nil {
		cmd.SetErr(m.publishErr)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func (m *mockPubSubClient) Subscribe(_ context.Context, _ ...string) *redis.PubSub {
	return nil
}

func TestNewRedisBus_NilClient(t *testing.T) {
	if bus := NewRedisBus(nil); bus != nil {
		t.Error("expected nil bus for nil client")
	}
}

func TestRedisBus_PublishUsesUserChannel(t *testing.T) {
	client := &mockPubSubClient{}
	bus := newRedisBus(client)

	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := bus.Publish(context.Background(), model.AuthEvent{
		Type:      model.AuthEventSignedIn,
		UserID:    "user-1",
		SessionID: "sess-1",
		Session:   &model.Session{ID: "sess-1", UserID: "user-1", ExpiresAt: expires},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if client.lastChannel != "auth:events:user-1" {
		t.Errorf("channel = %q, want auth:events:user-1", client.lastChannel)
	}
	payload, ok := client.lastMessage.(string)
	if !ok {
		t.Fatalf("payload type = %T, want string", client.lastMessage)
	}
	if !strings.Contains(payload, `"event":"SIGNED_IN"`) || !strings.Contains(payload, `"session_id":"sess-1"`) {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestRedisBus_PublishError(t *testing.T) {
	client := &mockPubSubClient{publishErr: errors.New("connection refused")}
	bus := newRedisBus(client)

	err := bus.Publish(context.Background(), model.AuthEvent{Type: model.AuthEventSignedOut, UserID: "u"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error should wrap cause: %v", err)
	}
}

func TestEncodeDecodeEvent_KeepsRoutingFields(t *testing.T) {
	in := model.AuthEvent{
		Type:      model.AuthEventTokenRefreshed,
		UserID:    "user-1",
		SessionID: "sess-1",
		Origin:    "client-9",
		Session:   &model.Session{UserID: "user-1"},
	}

	payload, err := encodeEvent(in)
	if err != nil {
		t.Fatalf("encodeEvent failed: %v", err)
	}
	out, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent failed: %v", err)
	}

	if out.Type != in.Type || out.UserID != in.UserID || out.SessionID != in.SessionID || out.Origin != in.Origin {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}
	if out.Session == nil || out.Session.UserID != "user-1" {
		t.Errorf("session not preserved: %+v", out.Session)
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	tests := []string{
		"not json",
		`{"event":"","user_id":"u"}`,
		`{"event":"SIGNED_IN"}`,
	}
	for _, payload := range tests {
		if _, err := decodeEvent(payload); err == nil {
			t.Errorf("decodeEvent(%q) should fail", payload)
		}
	}
}

func TestOriginContext(t *testing.T) {
	ctx := context.Background()
	if got := OriginFromContext(ctx); got != "" {
		t.Errorf("OriginFromContext = %q, want empty", got)
	}
	if got := OriginFromContext(WithOrigin(ctx, "")); got != "" {
		t.Errorf("empty origin should not be stored, got %q", got)
	}
	if got := OriginFromContext(WithOrigin(ctx, "client-1")); got != "client-1" {
		t.Errorf("OriginFromContext = %q, want %q", got, "client-1")
	}
}
