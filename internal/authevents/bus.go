// Package authevents は認証状態変化イベントの配信を提供する。
//
// サインイン・サインアウト等のイベントはユーザー単位で配信され、
// /auth/v1/events のSSEストリームが購読者となる。
// 単一プロセスではメモリ実装、複数プロセス構成ではRedis Pub/Sub実装を使用する。
package authevents

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/barberadmin/internal/model"
)

// subscriberBuffer は購読者ごとのチャネルバッファ数。
const subscriberBuffer = 16

// Bus は認証イベントの配信インターフェース。
type Bus interface {
	// Publish はイベントを対象ユーザーの全購読者へ配信する。
	Publish(ctx context.Context, event model.AuthEvent) error
	// Subscribe は指定ユーザーのイベントを受信するチャネルを返す。
	// 返されたcancelを呼ぶか、ctxが終了すると購読を解除しチャネルを閉じる。
	Subscribe(ctx context.Context, userID string) (<-chan model.AuthEvent, func(), error)
	// Close は全ての購読を終了する。
	Close() error
}

// MemoryBus はプロセス内で完結するBus実装。
// 購読者のバッファが満杯の場合、そのイベントは破棄される。
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan model.AuthEvent
	nextID int
	closed bool
}

// NewMemoryBus はMemoryBusを生成する。
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[int]chan model.AuthEvent),
	}
}

// Publish はイベントを購読者へ配信する。送信はブロックしない。
func (b *MemoryBus) Publish(_ context.Context, event model.AuthEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs[event.UserID] {
		select {
		case ch <- event:
		default:
			slog.Warn("auth event dropped for slow subscriber",
				slog.String("user_id", event.UserID),
				slog.String("event", string(event.Type)),
				slog.Int("subscriber", id),
			)
		}
	}
	return nil
}

// Subscribe は指定ユーザーのイベント購読を開始する。
func (b *MemoryBus) Subscribe(ctx context.Context, userID string) (<-chan model.AuthEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.AuthEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}, nil
	}

	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan model.AuthEvent)
	}
	b.subs[userID][id] = ch

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.unsubscribe(userID, id)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

func (b *MemoryBus) unsubscribe(userID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[userID][id]
	if !ok {
		return
	}
	delete(b.subs[userID], id)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
	close(ch)
}

// SubscriberCount は指定ユーザーの購読者数を返す。
func (b *MemoryBus) SubscriberCount(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// Close は全ての購読チャネルを閉じる。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for userID, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, userID)
	}
	b.closed = true
	return nil
}

// compile-time interface check
var _ Bus = (*MemoryBus)(nil)
